package reward

import "cloud.google.com/go/civil"

// Picker returns an index in [0, n). Production code passes rand.IntN.
type Picker func(n int) int

// challengeTemplates is the canonical daily challenge catalog.
// Keep IDs stable because persisted progress references them.
func challengeTemplates() []ChallengeTemplate {
	return []ChallengeTemplate{
		{ID: "1", Description: "Sort 3 Plastic items today", Target: 3, Kind: ChallengeCategory, Value: "Plastic"},
		{ID: "2", Description: "Find a Paper item before lunch", Target: 1, Kind: ChallengeTime, Value: "Paper"},
		{ID: "3", Description: "Get 2 correct predictions in a row", Target: 2, Kind: ChallengePrediction},
		{ID: "4", Description: "Scan a Metal item", Target: 1, Kind: ChallengeCategory, Value: "Metal"},
		{ID: "5", Description: "Complete your first scan of the day", Target: 1, Kind: ChallengeCount},
		{ID: "6", Description: "Scan something for the Compost bin", Target: 1, Kind: ChallengeCategory, Value: "Compost"},
		{ID: "7", Description: "Correctly identify a Landfill item", Target: 1, Kind: ChallengeCategory, Value: "Landfill"},
		{ID: "8", Description: "Scan 5 items total", Target: 5, Kind: ChallengeCount},
		{ID: "9", Description: "Reach a 3-day streak", Target: 3, Kind: ChallengeStreak},
		{ID: "10", Description: "Scan an item with 90% confidence", Target: 1, Kind: ChallengeConfidence, Value: "90"},
	}
}

// ChallengeCatalog returns a copy of the daily challenge templates.
func ChallengeCatalog() []ChallengeTemplate {
	return challengeTemplates()
}

// NeedsDailyChallenge reports whether a new challenge should be assigned for today:
// no scan has been logged today and there is either no active challenge or
// today's challenge was already completed.
func NeedsDailyChallenge(p UserProgress, today civil.Date) bool {
	if p.LastScanDate != nil && *p.LastScanDate == today {
		return false
	}
	return p.ActiveChallenge == nil || p.ChallengeCompletedOn(today)
}

// SelectDailyChallenge returns the challenge that should be active today and
// whether it was freshly assigned. When no assignment is due the current
// challenge (possibly nil) is returned unchanged.
func SelectDailyChallenge(p UserProgress, today civil.Date, pick Picker) (*ChallengeProgress, bool) {
	if !NeedsDailyChallenge(p, today) {
		if p.ActiveChallenge == nil {
			return nil, false
		}
		current := *p.ActiveChallenge
		return &current, false
	}

	templates := challengeTemplates()
	idx := pick(len(templates))
	if idx < 0 || idx >= len(templates) {
		idx = 0
	}
	return &ChallengeProgress{ChallengeTemplate: templates[idx]}, true
}

// WithDailyChallenge returns p with SelectDailyChallenge applied.
func WithDailyChallenge(p UserProgress, today civil.Date, pick Picker) (UserProgress, bool) {
	ch, assigned := SelectDailyChallenge(p, today, pick)
	if !assigned {
		return p, false
	}
	next := p.Clone()
	next.ActiveChallenge = ch
	return next, true
}
