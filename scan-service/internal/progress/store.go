// Package progress persists one reward ledger document per user.
package progress

import (
	"context"
	"errors"
	"strings"

	"github.com/sortit/sortit-services/scan-service/internal/reward"
)

// ErrMissingUserID indicates a required user id was absent.
var ErrMissingUserID = errors.New("user id is required")

// Store loads and saves user progress. Load reports found=false for users
// without a stored document; a stored document that fails verification yields
// reward.ErrCorruptProgress.
type Store interface {
	Load(ctx context.Context, userID string) (reward.UserProgress, bool, error)
	Save(ctx context.Context, userID string, p reward.UserProgress) error
	Delete(ctx context.Context, userID string) error
	Close() error
}

// Key returns the per-user storage key.
func Key(userID string) string {
	return reward.StorageKey + ":" + userID
}

func checkUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrMissingUserID
	}
	return nil
}
