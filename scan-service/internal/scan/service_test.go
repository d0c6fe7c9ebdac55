package scan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sortit/sortit-services/scan-service/internal/classify"
	"github.com/sortit/sortit-services/scan-service/internal/progress"
	"github.com/sortit/sortit-services/scan-service/internal/reward"
)

type fakeStore struct {
	loadFn   func(ctx context.Context, userID string) (reward.UserProgress, bool, error)
	saveFn   func(ctx context.Context, userID string, p reward.UserProgress) error
	deleteFn func(ctx context.Context, userID string) error
}

func (f *fakeStore) Load(ctx context.Context, userID string) (reward.UserProgress, bool, error) {
	if f.loadFn != nil {
		return f.loadFn(ctx, userID)
	}
	return reward.UserProgress{}, false, nil
}

func (f *fakeStore) Save(ctx context.Context, userID string, p reward.UserProgress) error {
	if f.saveFn != nil {
		return f.saveFn(ctx, userID, p)
	}
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, userID string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, userID)
	}
	return nil
}

func (f *fakeStore) Close() error { return nil }

type fakeClassifier struct {
	classifyFn func(ctx context.Context, img classify.Image, language string) (reward.Classification, error)
}

func (f *fakeClassifier) Classify(ctx context.Context, img classify.Image, language string) (reward.Classification, error) {
	return f.classifyFn(ctx, img, language)
}

func (f *fakeClassifier) Close() error { return nil }

var bottle = reward.Classification{ItemLabel: "Plastic Bottle", BinCategory: "Recycle - Plastic", ConfidencePercent: 95}

func fixedClassifier(c reward.Classification) *fakeClassifier {
	return &fakeClassifier{classifyFn: func(context.Context, classify.Image, string) (reward.Classification, error) {
		return c, nil
	}}
}

func testOptions(now time.Time) Options {
	return Options{
		Clock:  func() time.Time { return now },
		Picker: func(int) int { return 0 },
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newTestService(t *testing.T, store progress.Store, c classify.Classifier, opts Options) *Service {
	t.Helper()
	svc, err := NewService(store, c, opts)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestScanPersistsReward(t *testing.T) {
	store := progress.NewMemoryStore()
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, store, fixedClassifier(bottle), testOptions(now))

	res, err := svc.Scan(context.Background(), "kid-1", Input{Language: "en", Prediction: "plastic"})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !res.Saved || res.XPAwarded != 30 || !res.PredictionCorrect || !res.ChallengeAssigned {
		t.Fatalf("unexpected result %+v", res)
	}

	stored, found, err := store.Load(context.Background(), "kid-1")
	if err != nil || !found {
		t.Fatalf("expected stored progress, found=%v err=%v", found, err)
	}
	if stored.TotalScans != 1 || stored.ExperiencePoints != 30 || len(stored.ScanHistory) != 1 {
		t.Fatalf("unexpected stored progress %+v", stored)
	}
}

func TestScanSaveFailureReturnsResult(t *testing.T) {
	storeErr := errors.New("firestore unavailable")
	store := &fakeStore{saveFn: func(context.Context, string, reward.UserProgress) error { return storeErr }}
	reg := prometheus.NewRegistry()
	opts := testOptions(time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC))
	opts.Metrics = NewMetrics(reg)
	svc := newTestService(t, store, fixedClassifier(bottle), opts)

	res, err := svc.Scan(context.Background(), "kid-1", Input{})
	if !errors.Is(err, ErrProgressNotSaved) || !errors.Is(err, storeErr) {
		t.Fatalf("expected ErrProgressNotSaved wrapping store error, got %v", err)
	}
	if res == nil || res.Saved || res.XPAwarded != 10 || res.Progress.TotalScans != 1 {
		t.Fatalf("expected computed but unsaved result, got %+v", res)
	}
	if got := testutil.ToFloat64(opts.Metrics.saveFails); got != 1 {
		t.Fatalf("expected one save failure, got %v", got)
	}
}

func TestScanLoadFailureAbortsWithoutSaving(t *testing.T) {
	saved := false
	store := &fakeStore{
		loadFn: func(context.Context, string) (reward.UserProgress, bool, error) {
			return reward.UserProgress{}, true, reward.ErrCorruptProgress
		},
		saveFn: func(context.Context, string, reward.UserProgress) error { saved = true; return nil },
	}
	svc := newTestService(t, store, fixedClassifier(bottle), testOptions(time.Now()))

	if _, err := svc.Scan(context.Background(), "kid-1", Input{}); !errors.Is(err, reward.ErrCorruptProgress) {
		t.Fatalf("expected corrupt progress error, got %v", err)
	}
	if saved {
		t.Fatalf("corrupt progress must not be overwritten")
	}
}

func TestScanRejectsClassificationWithoutBin(t *testing.T) {
	svc := newTestService(t, progress.NewMemoryStore(), fixedClassifier(reward.Classification{ItemLabel: "Cup"}), testOptions(time.Now()))
	if _, err := svc.Scan(context.Background(), "kid-1", Input{}); !errors.Is(err, reward.ErrMissingBinCategory) {
		t.Fatalf("expected ErrMissingBinCategory, got %v", err)
	}
}

func TestScanUsesFallbackThroughWrapper(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	failing := &fakeClassifier{classifyFn: func(context.Context, classify.Image, string) (reward.Classification, error) {
		return reward.Classification{}, context.DeadlineExceeded
	}}
	opts := testOptions(time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC))
	opts.Metrics = metrics
	c := classify.WithFallback(failing, opts.Logger, metrics.ObserveFallback)
	svc := newTestService(t, progress.NewMemoryStore(), c, opts)

	res, err := svc.Scan(context.Background(), "kid-1", Input{Language: "ja-JP", Prediction: "埋め立て"})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Classification != classify.Fallback("日本語") {
		t.Fatalf("expected Japanese fallback, got %+v", res.Classification)
	}
	if !res.PredictionCorrect || res.XPAwarded != 30 {
		t.Fatalf("prediction should match the fallback bin: %+v", res.Outcome)
	}
	if got := testutil.ToFloat64(metrics.fallbacks); got != 1 {
		t.Fatalf("expected one fallback, got %v", got)
	}
}

func TestScanUsesClientLocationForDates(t *testing.T) {
	store := progress.NewMemoryStore()
	// 23:30 UTC on May 10 is already May 11 in Tokyo.
	now := time.Date(2024, 5, 10, 23, 30, 0, 0, time.UTC)
	svc := newTestService(t, store, fixedClassifier(bottle), testOptions(now))

	tokyo := time.FixedZone("JST", 9*60*60)
	res, err := svc.Scan(context.Background(), "kid-1", Input{Location: tokyo})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := res.Record.Date.String(); got != "2024-05-11" {
		t.Fatalf("expected Tokyo date, got %s", got)
	}
}

func TestScanStreakAcrossDays(t *testing.T) {
	store := progress.NewMemoryStore()
	day := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	opts := testOptions(day)
	opts.Clock = func() time.Time { return day }
	svc := newTestService(t, store, fixedClassifier(bottle), opts)

	for i := 0; i < 3; i++ {
		if _, err := svc.Scan(context.Background(), "kid-1", Input{}); err != nil {
			t.Fatalf("Scan day %d: %v", i, err)
		}
		day = day.AddDate(0, 0, 1)
	}
	p, err := svc.Progress(context.Background(), "kid-1", nil)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if p.StreakDays != 3 || p.TotalScans != 3 {
		t.Fatalf("expected streak 3 after three days, got %+v", p)
	}
}

func TestConcurrentScansForOneUserAreSerialized(t *testing.T) {
	store := progress.NewMemoryStore()
	svc := newTestService(t, store, fixedClassifier(bottle), testOptions(time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)))

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Scan(context.Background(), "kid-1", Input{}); err != nil {
				t.Errorf("Scan: %v", err)
			}
		}()
	}
	wg.Wait()

	p, _, _ := store.Load(context.Background(), "kid-1")
	if p.TotalScans != n {
		t.Fatalf("expected %d scans, got %d", n, p.TotalScans)
	}
}

func TestHistoryLimitTrimsStoredHistory(t *testing.T) {
	store := progress.NewMemoryStore()
	opts := testOptions(time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC))
	opts.HistoryLimit = 2
	svc := newTestService(t, store, fixedClassifier(bottle), opts)

	for i := 0; i < 4; i++ {
		if _, err := svc.Scan(context.Background(), "kid-1", Input{}); err != nil {
			t.Fatalf("Scan: %v", err)
		}
	}
	all, err := svc.History(context.Background(), "kid-1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected history trimmed to 2, got %d", len(all))
	}
	one, _ := svc.History(context.Background(), "kid-1", 1)
	if len(one) != 1 || one[0].ID != all[0].ID {
		t.Fatalf("expected newest record first")
	}
	if _, err := svc.History(context.Background(), "kid-1", -1); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
}

func TestDailyChallengeAssignedOncePerDay(t *testing.T) {
	saves := 0
	var stored *reward.UserProgress
	store := &fakeStore{
		loadFn: func(context.Context, string) (reward.UserProgress, bool, error) {
			if stored == nil {
				return reward.UserProgress{}, false, nil
			}
			return *stored, true, nil
		},
		saveFn: func(_ context.Context, _ string, p reward.UserProgress) error {
			saves++
			stored = &p
			return nil
		},
	}
	svc := newTestService(t, store, fixedClassifier(bottle), testOptions(time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)))

	p, assigned, err := svc.DailyChallenge(context.Background(), "kid-1", nil)
	if err != nil || !assigned || p.ActiveChallenge == nil {
		t.Fatalf("expected a new challenge, assigned=%v err=%v", assigned, err)
	}
	if _, assigned, _ := svc.DailyChallenge(context.Background(), "kid-1", nil); assigned {
		t.Fatalf("challenge must not be reassigned on the same day")
	}
	if saves != 1 {
		t.Fatalf("expected exactly one save, got %d", saves)
	}
}

func TestResetDeletesProgress(t *testing.T) {
	store := progress.NewMemoryStore()
	svc := newTestService(t, store, fixedClassifier(bottle), testOptions(time.Now()))
	if _, err := svc.Scan(context.Background(), "kid-1", Input{}); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if err := svc.Reset(context.Background(), "kid-1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, found, _ := store.Load(context.Background(), "kid-1"); found {
		t.Fatalf("expected progress to be deleted")
	}
}

func TestLocationFallsBackToDefault(t *testing.T) {
	opts := testOptions(time.Now())
	opts.Location = time.FixedZone("X", 3600)
	svc := newTestService(t, progress.NewMemoryStore(), nil, opts)
	if svc.Location("Not/AZone") != opts.Location || svc.Location("") != opts.Location {
		t.Fatalf("expected default location")
	}
	if loc := svc.Location("UTC"); loc.String() != "UTC" {
		t.Fatalf("expected UTC, got %s", loc)
	}
}

// ctxAwareStore fails like a network store once its context is done.
func ctxAwareStore(mem *progress.MemoryStore) *fakeStore {
	return &fakeStore{
		loadFn: func(ctx context.Context, userID string) (reward.UserProgress, bool, error) {
			if err := ctx.Err(); err != nil {
				return reward.UserProgress{}, false, err
			}
			return mem.Load(ctx, userID)
		},
		saveFn: func(ctx context.Context, userID string, p reward.UserProgress) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return mem.Save(ctx, userID, p)
		},
	}
}

func TestScanScoresFallbackWhenClassifierTimesOut(t *testing.T) {
	tests := []struct {
		name            string
		callerTimeout   time.Duration
		classifyTimeout time.Duration
	}{
		{"caller deadline expires during classification", 30 * time.Millisecond, time.Minute},
		{"classify timeout expires first", time.Minute, 30 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hanging := &fakeClassifier{classifyFn: func(ctx context.Context, _ classify.Image, _ string) (reward.Classification, error) {
				<-ctx.Done()
				return reward.Classification{}, ctx.Err()
			}}
			opts := testOptions(time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC))
			opts.ClassifyTimeout = tt.classifyTimeout
			mem := progress.NewMemoryStore()
			svc := newTestService(t, ctxAwareStore(mem), classify.WithFallback(hanging, opts.Logger, nil), opts)

			ctx, cancel := context.WithTimeout(context.Background(), tt.callerTimeout)
			defer cancel()

			res, err := svc.Scan(ctx, "kid-1", Input{Language: "English"})
			if err != nil {
				t.Fatalf("Scan: %v", err)
			}
			if !res.Saved || res.Classification != classify.Fallback("English") || res.XPAwarded != 10 {
				t.Fatalf("expected a saved fallback scan, got %+v", res)
			}
			stored, found, _ := mem.Load(context.Background(), "kid-1")
			if !found || stored.TotalScans != 1 || len(stored.ScanHistory) != 1 {
				t.Fatalf("expected the scan to be persisted, got found=%v %+v", found, stored)
			}
		})
	}
}

func TestScanMetricsUseCanonicalBinLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	opts := testOptions(time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC))
	opts.Metrics = NewMetrics(reg)

	for _, c := range []reward.Classification{
		bottle,
		{ItemLabel: "Can", BinCategory: "recycle - metal"},
		classify.Fallback("日本語"),
		{ItemLabel: "Sock", BinCategory: "Donate it to a friend"},
	} {
		svc := newTestService(t, progress.NewMemoryStore(), fixedClassifier(c), opts)
		if _, err := svc.Scan(context.Background(), "kid-1", Input{}); err != nil {
			t.Fatalf("Scan: %v", err)
		}
	}

	if got := testutil.ToFloat64(opts.Metrics.scans.WithLabelValues("Recycle - Metal")); got != 1 {
		t.Fatalf("expected case-insensitive canonical label, got %v", got)
	}
	if got := testutil.ToFloat64(opts.Metrics.scans.WithLabelValues("other")); got != 2 {
		t.Fatalf("expected localized and unknown bins under other, got %v", got)
	}
	if got := testutil.CollectAndCount(opts.Metrics.scans); got != 3 {
		t.Fatalf("expected 3 label values, got %d", got)
	}
}
