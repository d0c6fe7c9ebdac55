// Package reward turns completed scans into experience, streak, challenge and
// badge updates. Every function here is pure: callers pass in the current
// progress and the evaluation instant and receive a new value back.
package reward

import (
	"strings"

	"cloud.google.com/go/civil"
)

// StorageKey identifies persisted progress records.
const StorageKey = "sort_it_user_data_v2"

// Classification is the vision provider's verdict for one image.
type Classification struct {
	ItemLabel         string `json:"itemLabel"`
	BinCategory       string `json:"binCategory"`
	ConfidencePercent int    `json:"confidencePercent"`
	Tip               string `json:"tip"`
	FunFact           string `json:"funFact"`
}

// Validate rejects classifications the ledger cannot score.
func (c Classification) Validate() error {
	if strings.TrimSpace(c.BinCategory) == "" {
		return ErrMissingBinCategory
	}
	return nil
}

// ChallengeKind identifies how a challenge measures progress.
type ChallengeKind string

const (
	ChallengeCategory   ChallengeKind = "category"
	ChallengeTime       ChallengeKind = "time"
	ChallengePrediction ChallengeKind = "prediction"
	ChallengeCount      ChallengeKind = "count"
	ChallengeStreak     ChallengeKind = "streak"
	ChallengeConfidence ChallengeKind = "confidence"
)

// ChallengeTemplate is a static daily challenge definition.
type ChallengeTemplate struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Target      int           `json:"target"`
	Kind        ChallengeKind `json:"type"`
	Value       string        `json:"value,omitempty"`
}

// ChallengeProgress is a template being tracked for the user.
type ChallengeProgress struct {
	ChallengeTemplate
	CurrentProgress int `json:"current"`
}

// Done reports whether the target has been reached.
func (c ChallengeProgress) Done() bool {
	return c.CurrentProgress >= c.Target
}

// ScanRecord is one entry of the scan history.
type ScanRecord struct {
	ID          string     `json:"id"`
	ItemLabel   string     `json:"itemLabel"`
	BinCategory string     `json:"binCategory"`
	Date        civil.Date `json:"date"`
}

// UserProgress is the persisted gamification state of one user.
type UserProgress struct {
	ExperiencePoints                  int                `json:"experiencePoints"`
	Level                             int                `json:"level"`
	StreakDays                        int                `json:"streakDays"`
	LastScanDate                      *civil.Date        `json:"lastScanDate"`
	TotalScans                        int                `json:"totalScans"`
	CorrectPredictions                int                `json:"correctPredictions"`
	ConsecutivePredictionCorrectCount int                `json:"consecutivePredictionCorrectCount"`
	EarnedBadgeIDs                    []string           `json:"earnedBadgeIds"`
	CompletedChallengeDates           []civil.Date       `json:"completedChallengeDates"`
	ActiveChallenge                   *ChallengeProgress `json:"activeChallenge"`
	ScanHistory                       []ScanRecord       `json:"scanHistory"`
}

// NewUserProgress returns the first-launch state.
func NewUserProgress() UserProgress {
	return UserProgress{Level: LevelFor(0)}
}

// LevelFor derives the level from experience points.
func LevelFor(xp int) int {
	return xp/pointsPerLevel + 1
}

// NextLevelAt returns the experience total at which the next level starts.
func NextLevelAt(xp int) int {
	return LevelFor(xp) * pointsPerLevel
}

// HasBadge reports whether id was already earned.
func (p UserProgress) HasBadge(id string) bool {
	for _, b := range p.EarnedBadgeIDs {
		if b == id {
			return true
		}
	}
	return false
}

// ChallengeCompletedOn reports whether a daily challenge was completed on day.
func (p UserProgress) ChallengeCompletedOn(day civil.Date) bool {
	for _, d := range p.CompletedChallengeDates {
		if d == day {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can derive new states without aliasing.
func (p UserProgress) Clone() UserProgress {
	out := p
	if p.LastScanDate != nil {
		d := *p.LastScanDate
		out.LastScanDate = &d
	}
	if p.ActiveChallenge != nil {
		c := *p.ActiveChallenge
		out.ActiveChallenge = &c
	}
	if p.EarnedBadgeIDs != nil {
		out.EarnedBadgeIDs = append([]string(nil), p.EarnedBadgeIDs...)
	}
	if p.CompletedChallengeDates != nil {
		out.CompletedChallengeDates = append([]civil.Date(nil), p.CompletedChallengeDates...)
	}
	if p.ScanHistory != nil {
		out.ScanHistory = append([]ScanRecord(nil), p.ScanHistory...)
	}
	return out
}
