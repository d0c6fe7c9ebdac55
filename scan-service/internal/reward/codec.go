package reward

import (
	"encoding/json"
	"fmt"
)

// Encode serializes progress for storage.
func Encode(p UserProgress) ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode progress: %w", err)
	}
	return b, nil
}

// Decode parses stored progress and checks it with Verify.
func Decode(data []byte) (UserProgress, error) {
	var p UserProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return UserProgress{}, fmt.Errorf("%w: %v", ErrCorruptProgress, err)
	}
	if err := p.Verify(); err != nil {
		return UserProgress{}, err
	}
	return p, nil
}

// Verify checks the invariants the ledger maintains. A failure means the
// record was altered outside the ledger.
func (p UserProgress) Verify() error {
	switch {
	case p.ExperiencePoints < 0, p.StreakDays < 0, p.TotalScans < 0,
		p.CorrectPredictions < 0, p.ConsecutivePredictionCorrectCount < 0:
		return fmt.Errorf("%w: negative counter", ErrCorruptProgress)
	case p.Level != LevelFor(p.ExperiencePoints):
		return fmt.Errorf("%w: level %d does not match %d experience points", ErrCorruptProgress, p.Level, p.ExperiencePoints)
	}
	if ch := p.ActiveChallenge; ch != nil {
		if ch.Target <= 0 || ch.CurrentProgress < 0 || ch.CurrentProgress > ch.Target {
			return fmt.Errorf("%w: challenge %s progress %d outside [0,%d]", ErrCorruptProgress, ch.ID, ch.CurrentProgress, ch.Target)
		}
	}
	return nil
}
