package httpapi

import (
	"github.com/sortit/sortit-services/scan-service/internal/reward"
	"github.com/sortit/sortit-services/scan-service/internal/scan"
)

type badgeView struct {
	reward.Badge
	Earned bool `json:"earned"`
}

type progressView struct {
	reward.UserProgress
	NextLevelAt int         `json:"nextLevelAt"`
	Badges      []badgeView `json:"badges"`
}

func newProgressView(p reward.UserProgress) progressView {
	catalog := reward.Badges()
	badges := make([]badgeView, 0, len(catalog))
	for _, b := range catalog {
		badges = append(badges, badgeView{Badge: b, Earned: p.HasBadge(b.ID)})
	}
	if p.ScanHistory == nil {
		p.ScanHistory = []reward.ScanRecord{}
	}
	return progressView{UserProgress: p, NextLevelAt: reward.NextLevelAt(p.ExperiencePoints), Badges: badges}
}

type scanResponse struct {
	Classification     reward.Classification     `json:"classification"`
	Record             reward.ScanRecord         `json:"record"`
	XPAwarded          int                       `json:"xpAwarded"`
	PredictionMade     bool                      `json:"predictionMade"`
	PredictionCorrect  bool                      `json:"predictionCorrect"`
	LeveledUp          bool                      `json:"leveledUp"`
	NewBadges          []string                  `json:"newBadges"`
	ChallengeAssigned  bool                      `json:"challengeAssigned"`
	ChallengeCompleted bool                      `json:"challengeCompleted"`
	ActiveChallenge    *reward.ChallengeProgress `json:"activeChallenge"`
	Progress           progressView              `json:"progress"`
	Saved              bool                      `json:"saved"`
	Warning            string                    `json:"warning,omitempty"`
}

func newScanResponse(res *scan.Result) scanResponse {
	badges := res.NewBadges
	if badges == nil {
		badges = []string{}
	}
	return scanResponse{
		Classification:     res.Classification,
		Record:             res.Record,
		XPAwarded:          res.XPAwarded,
		PredictionMade:     res.PredictionMade,
		PredictionCorrect:  res.PredictionCorrect,
		LeveledUp:          res.LeveledUp,
		NewBadges:          badges,
		ChallengeAssigned:  res.ChallengeAssigned,
		ChallengeCompleted: res.ChallengeCompleted,
		ActiveChallenge:    res.Progress.ActiveChallenge,
		Progress:           newProgressView(res.Progress),
		Saved:              res.Saved,
	}
}
