package progress

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/sortit/sortit-services/scan-service/internal/reward"
)

// newPostgresStore connects to the database named by SORTIT_TEST_DATABASE_URL.
func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("SORTIT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SORTIT_TEST_DATABASE_URL not set")
	}
	store, err := NewPostgresStore(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	store := newPostgresStore(t)
	exerciseStore(t, store, "kid-"+uuid.NewString())
}

func TestPostgresStoreReportsCorruptDocument(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	userID := "kid-" + uuid.NewString()

	_, err := store.db.Exec(ctx,
		`INSERT INTO user_progress (user_id, storage_key, payload) VALUES ($1, $2, $3::jsonb)`,
		userID, reward.StorageKey, `{"experiencePoints":300,"level":1}`)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	t.Cleanup(func() { _ = store.Delete(ctx, userID) })

	_, found, err := store.Load(ctx, userID)
	if !found || !errors.Is(err, reward.ErrCorruptProgress) {
		t.Fatalf("expected corrupt document, found=%v err=%v", found, err)
	}
}
