// Package scan runs a scan end to end: classify, reward, persist.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"cloud.google.com/go/civil"

	"github.com/sortit/sortit-services/scan-service/internal/classify"
	"github.com/sortit/sortit-services/scan-service/internal/progress"
	"github.com/sortit/sortit-services/scan-service/internal/reward"
)

const (
	defaultClassifyTimeout = 20 * time.Second
	defaultStoreTimeout    = 8 * time.Second
)

// Options tune a Service. Zero values select defaults.
type Options struct {
	Clock        func() time.Time
	Location     *time.Location
	Picker       reward.Picker
	HistoryLimit int
	// ClassifyTimeout bounds the classifier call only.
	ClassifyTimeout time.Duration
	// StoreTimeout bounds the load and save of a scan. Those run detached
	// from the caller's cancellation so a scored scan is not lost.
	StoreTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *Metrics
}

// Input is one scan request.
type Input struct {
	Image      classify.Image
	Language   string
	Prediction string
	// Location is the user's timezone; nil selects the service default.
	Location *time.Location
}

// Result is the classification together with its reward.
type Result struct {
	Classification reward.Classification
	reward.Outcome
	ChallengeAssigned bool
	Saved             bool
}

// Service coordinates classification, the reward ledger and the progress store.
type Service struct {
	store      progress.Store
	classifier classify.Classifier
	opts       Options
	locks      *userLocks
}

// NewService wires a scan service.
func NewService(store progress.Store, classifier classify.Classifier, opts Options) (*Service, error) {
	if store == nil {
		return nil, errors.New("progress store is required")
	}
	if classifier == nil {
		classifier = classify.NewFallbackClassifier()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Picker == nil {
		opts.Picker = rand.IntN
	}
	if opts.ClassifyTimeout <= 0 {
		opts.ClassifyTimeout = defaultClassifyTimeout
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.HistoryLimit < 0 {
		opts.HistoryLimit = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{store: store, classifier: classifier, opts: opts, locks: newUserLocks()}, nil
}

// Scan classifies the image and applies the reward to the user's progress.
// When saving fails the computed result is still returned, with an error
// wrapping ErrProgressNotSaved.
func (s *Service) Scan(ctx context.Context, userID string, in Input) (*Result, error) {
	c, err := s.Classify(ctx, in.Image, in.Language)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
	defer cancel()

	unlock := s.locks.lock(userID)
	defer unlock()

	now := s.now(in.Location)
	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	p, assigned := reward.WithDailyChallenge(p, civil.DateOf(now), s.opts.Picker)

	outcome := reward.ApplyScan(p, c, in.Prediction, now)
	outcome.Progress = reward.TrimHistory(outcome.Progress, s.opts.HistoryLimit)
	s.opts.Metrics.observeScan(c.BinCategory, outcome.PredictionMade, outcome.PredictionCorrect, outcome.ChallengeCompleted)

	result := &Result{Classification: c, Outcome: outcome, ChallengeAssigned: assigned, Saved: true}
	if err := s.save(ctx, userID, outcome.Progress); err != nil {
		result.Saved = false
		return result, err
	}

	s.opts.Logger.InfoContext(ctx, "scan recorded",
		slog.String("user_id", userID),
		slog.String("bin", c.BinCategory),
		slog.Int("xp_awarded", outcome.XPAwarded),
		slog.Int("level", outcome.Progress.Level),
		slog.Bool("challenge_completed", outcome.ChallengeCompleted),
	)
	return result, nil
}

// Classify identifies the item without touching progress.
func (s *Service) Classify(ctx context.Context, img classify.Image, language string) (reward.Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ClassifyTimeout)
	defer cancel()

	c, err := s.classifier.Classify(ctx, img, classify.NormalizeLanguage(language))
	if err != nil {
		return reward.Classification{}, fmt.Errorf("classify: %w", err)
	}
	if err := c.Validate(); err != nil {
		return reward.Classification{}, err
	}
	return c, nil
}

// Progress returns the user's progress with today's challenge selected,
// persisting it when a challenge was newly assigned.
func (s *Service) Progress(ctx context.Context, userID string, loc *time.Location) (reward.UserProgress, error) {
	p, _, err := s.DailyChallenge(ctx, userID, loc)
	return p, err
}

// DailyChallenge runs challenge selection for today and reports whether a
// new challenge was assigned.
func (s *Service) DailyChallenge(ctx context.Context, userID string, loc *time.Location) (reward.UserProgress, bool, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	p, err := s.load(ctx, userID)
	if err != nil {
		return reward.UserProgress{}, false, err
	}
	p, assigned := reward.WithDailyChallenge(p, civil.DateOf(s.now(loc)), s.opts.Picker)
	if !assigned {
		return p, false, nil
	}
	if err := s.save(ctx, userID, p); err != nil {
		return p, true, err
	}
	return p, true, nil
}

// History returns up to limit scan records, newest first. limit 0 returns all.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]reward.ScanRecord, error) {
	if limit < 0 {
		return nil, ErrInvalidLimit
	}
	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	history := p.ScanHistory
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	if history == nil {
		history = []reward.ScanRecord{}
	}
	return history, nil
}

// Reset deletes the user's stored progress.
func (s *Service) Reset(ctx context.Context, userID string) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	if err := s.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}
	s.opts.Logger.InfoContext(ctx, "progress reset", slog.String("user_id", userID))
	return nil
}

// Challenges lists the daily challenge catalog.
func (s *Service) Challenges() []reward.ChallengeTemplate {
	return reward.ChallengeCatalog()
}

// Location resolves a client timezone name, falling back to the service default.
func (s *Service) Location(name string) *time.Location {
	if name == "" {
		return s.opts.Location
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return s.opts.Location
	}
	return loc
}

func (s *Service) now(loc *time.Location) time.Time {
	if loc == nil {
		loc = s.opts.Location
	}
	return s.opts.Clock().In(loc)
}

func (s *Service) load(ctx context.Context, userID string) (reward.UserProgress, error) {
	p, found, err := s.store.Load(ctx, userID)
	if err != nil {
		return reward.UserProgress{}, fmt.Errorf("load progress: %w", err)
	}
	if !found {
		return reward.NewUserProgress(), nil
	}
	return p, nil
}

func (s *Service) save(ctx context.Context, userID string, p reward.UserProgress) error {
	if err := s.store.Save(ctx, userID, p); err != nil {
		s.opts.Metrics.observeSaveFailure()
		s.opts.Logger.ErrorContext(ctx, "save progress failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: %w", ErrProgressNotSaved, err)
	}
	return nil
}
