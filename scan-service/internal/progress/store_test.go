package progress

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sortit/sortit-services/scan-service/internal/reward"
)

func sampleProgress() reward.UserProgress {
	now := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)
	p := reward.NewUserProgress()
	p, _ = reward.WithDailyChallenge(p, civil.DateOf(now), func(int) int { return 0 })
	c := reward.Classification{ItemLabel: "Plastic Bottle", BinCategory: "Recycle - Plastic", ConfidencePercent: 95}
	return reward.ApplyScan(p, c, "plastic", now).Progress
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "progress.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoresRoundTrip(t *testing.T) {
	redisStore, _ := newRedisStore(t)
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
		"sqlite": newSQLiteStore(t),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			exerciseStore(t, store, "kid-1")
		})
	}
}

// exerciseStore runs the load, save, overwrite and delete cycle against store.
func exerciseStore(t *testing.T, store Store, userID string) {
	t.Helper()
	ctx := context.Background()

	if _, found, err := store.Load(ctx, userID); err != nil || found {
		t.Fatalf("expected empty store, found=%v err=%v", found, err)
	}

	want := sampleProgress()
	if err := store.Save(ctx, userID, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, found, err := store.Load(ctx, userID)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch\n got %+v\nwant %+v", got, want)
	}

	want.ExperiencePoints += 250
	want.Level = reward.LevelFor(want.ExperiencePoints)
	if err := store.Save(ctx, userID, want); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _, _ = store.Load(ctx, userID)
	if got.Level != want.Level {
		t.Fatalf("expected overwrite to win, level %d", got.Level)
	}

	if err := store.Delete(ctx, userID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := store.Load(ctx, userID); found {
		t.Fatalf("expected document to be gone")
	}
	if err := store.Delete(ctx, userID); err != nil {
		t.Fatalf("deleting a missing document should succeed: %v", err)
	}
}

func TestStoresRequireUserID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, _, err := store.Load(ctx, " "); !errors.Is(err, ErrMissingUserID) {
		t.Fatalf("expected ErrMissingUserID, got %v", err)
	}
	if err := store.Save(ctx, "", reward.NewUserProgress()); !errors.Is(err, ErrMissingUserID) {
		t.Fatalf("expected ErrMissingUserID, got %v", err)
	}
}

func TestRedisStoreReportsCorruptDocument(t *testing.T) {
	store, mr := newRedisStore(t)
	if err := mr.Set(Key("kid-2"), `{"experiencePoints":300,"level":1}`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, found, err := store.Load(context.Background(), "kid-2")
	if !found || !errors.Is(err, reward.ErrCorruptProgress) {
		t.Fatalf("expected corrupt document, found=%v err=%v", found, err)
	}
}

func TestRedisStoreUsesNamespacedKey(t *testing.T) {
	store, mr := newRedisStore(t)
	if err := store.Save(context.Background(), "kid-3", reward.NewUserProgress()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("sort_it_user_data_v2:kid-3") {
		t.Fatalf("expected key %q, have %v", "sort_it_user_data_v2:kid-3", mr.Keys())
	}
}
