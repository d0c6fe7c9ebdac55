package reward

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

const (
	pointsPerLevel = 250

	baseScanXP          = 10
	correctGuessBonus   = 20
	attemptedGuessBonus = 5

	// Scans before this local hour count for "before lunch" challenges.
	lunchHour = 12
	// Confidence threshold used when a confidence challenge carries no value.
	defaultConfidenceThreshold = 90
)

// scanNamespace seeds name-based scan record ids.
var scanNamespace = uuid.MustParse("5b1f4a52-8f2e-4a7c-9d7e-2f6c1b3e9a10")

// Outcome describes the effect of one ApplyScan call.
type Outcome struct {
	Progress           UserProgress `json:"progress"`
	Record             ScanRecord   `json:"record"`
	XPAwarded          int          `json:"xpAwarded"`
	PredictionMade     bool         `json:"predictionMade"`
	PredictionCorrect  bool         `json:"predictionCorrect"`
	LeveledUp          bool         `json:"leveledUp"`
	NewBadges          []string     `json:"newBadges,omitempty"`
	ChallengeCompleted bool         `json:"challengeCompleted"`
}

// PredictionCorrect reports whether the user's guess matches the bin category.
//
// The match is a case-insensitive substring test, not equality, so a guess of
// "Waste" is accepted for "E-Waste" and "Recycle" for "Recycle - Plastic".
// Reward totals depend on this; do not tighten it to exact matching.
func PredictionCorrect(binCategory, predicted string) bool {
	if predicted == "" {
		return false
	}
	return strings.Contains(strings.ToLower(binCategory), strings.ToLower(predicted))
}

// XPFor returns the experience awarded for a scan.
func XPFor(predictionMade, correct bool) int {
	switch {
	case correct:
		return baseScanXP + correctGuessBonus
	case predictionMade:
		return baseScanXP + attemptedGuessBonus
	default:
		return baseScanXP
	}
}

// ApplyScan computes the progress after one completed scan evaluated at now.
// now must already be in the user's local timezone; its calendar date is "today".
// predicted is the guess made before the result was revealed, or "" for none.
//
// ApplyScan panics when c has no bin category; validate with Classification.Validate first.
func ApplyScan(p UserProgress, c Classification, predicted string, now time.Time) Outcome {
	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("reward.ApplyScan: %v", err))
	}

	today := civil.DateOf(now)
	yesterday := today.AddDays(-1)

	next := p.Clone()
	predictionMade := predicted != ""
	correct := PredictionCorrect(c.BinCategory, predicted)
	award := XPFor(predictionMade, correct)

	switch {
	case p.LastScanDate != nil && *p.LastScanDate == yesterday:
		next.StreakDays = p.StreakDays + 1
	case p.LastScanDate == nil || *p.LastScanDate != today:
		next.StreakDays = 1
	}

	next.TotalScans = p.TotalScans + 1
	next.LastScanDate = &today
	next.ExperiencePoints = p.ExperiencePoints + award
	next.Level = LevelFor(next.ExperiencePoints)

	if predictionMade {
		if correct {
			next.ConsecutivePredictionCorrectCount = p.ConsecutivePredictionCorrectCount + 1
			next.CorrectPredictions = p.CorrectPredictions + 1
		} else {
			next.ConsecutivePredictionCorrectCount = 0
		}
	}

	record := ScanRecord{
		ID:          scanRecordID(next.TotalScans, today, c),
		ItemLabel:   c.ItemLabel,
		BinCategory: c.BinCategory,
		Date:        today,
	}
	next.ScanHistory = append([]ScanRecord{record}, next.ScanHistory...)

	completed := advanceChallenge(&next, c, predictionMade, now, today)
	badges := awardBadges(&next)

	return Outcome{
		Progress:           next,
		Record:             record,
		XPAwarded:          award,
		PredictionMade:     predictionMade,
		PredictionCorrect:  correct,
		LeveledUp:          next.Level > LevelFor(p.ExperiencePoints),
		NewBadges:          badges,
		ChallengeCompleted: completed,
	}
}

// advanceChallenge updates the active challenge for a scan and reports whether it completed.
func advanceChallenge(p *UserProgress, c Classification, predictionMade bool, now time.Time, today civil.Date) bool {
	ch := p.ActiveChallenge
	if ch == nil {
		return false
	}

	switch ch.Kind {
	case ChallengeCategory:
		if matchesValue(c.BinCategory, ch.Value) {
			ch.CurrentProgress++
		}
	case ChallengeTime:
		if now.Hour() < lunchHour && matchesValue(c.BinCategory, ch.Value) {
			ch.CurrentProgress++
		}
	case ChallengePrediction:
		if predictionMade {
			ch.CurrentProgress = p.ConsecutivePredictionCorrectCount
		}
	case ChallengeCount:
		ch.CurrentProgress++
	case ChallengeStreak:
		ch.CurrentProgress = p.StreakDays
	case ChallengeConfidence:
		if c.ConfidencePercent >= confidenceThreshold(ch.Value) {
			ch.CurrentProgress++
		}
	}
	ch.CurrentProgress = clamp(ch.CurrentProgress, 0, ch.Target)

	if !ch.Done() {
		return false
	}
	if !p.ChallengeCompletedOn(today) {
		p.CompletedChallengeDates = append(p.CompletedChallengeDates, today)
	}
	p.ActiveChallenge = nil
	return true
}

func matchesValue(binCategory, value string) bool {
	if value == "" {
		return false
	}
	return strings.Contains(strings.ToLower(binCategory), strings.ToLower(value))
}

func confidenceThreshold(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return defaultConfidenceThreshold
	}
	return n
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func scanRecordID(ordinal int, day civil.Date, c Classification) string {
	name := fmt.Sprintf("%d|%s|%s|%s", ordinal, day, c.ItemLabel, c.BinCategory)
	return uuid.NewSHA1(scanNamespace, []byte(name)).String()
}

// TrimHistory keeps only the newest limit scan records. limit <= 0 keeps everything.
func TrimHistory(p UserProgress, limit int) UserProgress {
	if limit <= 0 || len(p.ScanHistory) <= limit {
		return p
	}
	out := p.Clone()
	out.ScanHistory = out.ScanHistory[:limit]
	return out
}
