package reward

// Badge is a milestone unlocked by progress.
type Badge struct {
	ID    string `json:"id"`
	Label string `json:"label"`

	earned func(UserProgress) bool
}

// badgeCatalog lists badges in award order. IDs are persisted; keep them stable.
func badgeCatalog() []Badge {
	return []Badge{
		{ID: "first_sort", Label: "First Sort", earned: func(p UserProgress) bool { return p.TotalScans >= 1 }},
		{ID: "ten_sorts", Label: "Sorting Rookie", earned: func(p UserProgress) bool { return p.TotalScans >= 10 }},
		{ID: "fifty_sorts", Label: "Sorting Pro", earned: func(p UserProgress) bool { return p.TotalScans >= 50 }},
		{ID: "streak_3", Label: "On Fire", earned: func(p UserProgress) bool { return p.StreakDays >= 3 }},
		{ID: "streak_7", Label: "Week Warrior", earned: func(p UserProgress) bool { return p.StreakDays >= 7 }},
		{ID: "sharp_eye", Label: "Sharp Eye", earned: func(p UserProgress) bool { return p.ConsecutivePredictionCorrectCount >= 5 }},
		{ID: "level_5", Label: "Eco Hero", earned: func(p UserProgress) bool { return p.Level >= 5 }},
	}
}

// Badges returns the badge catalog.
func Badges() []Badge {
	return badgeCatalog()
}

// awardBadges appends newly unlocked badges to p and returns their IDs.
// Earned badges are never removed.
func awardBadges(p *UserProgress) []string {
	var unlocked []string
	for _, b := range badgeCatalog() {
		if p.HasBadge(b.ID) || !b.earned(*p) {
			continue
		}
		p.EarnedBadgeIDs = append(p.EarnedBadgeIDs, b.ID)
		unlocked = append(unlocked, b.ID)
	}
	return unlocked
}
