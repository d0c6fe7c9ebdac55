package classify

import (
	"context"
	"log/slog"

	"github.com/sortit/sortit-services/scan-service/internal/reward"
)

const languageJapanese = "日本語"

// Fallback is the fixed result used whenever classification fails.
func Fallback(language string) reward.Classification {
	if language == languageJapanese {
		return reward.Classification{
			ItemLabel:         "不明なアイテム",
			BinCategory:       "埋め立てゴミ",
			ConfidencePercent: 0,
			Tip:               "確信が持てない場合は、汚染を防ぐためにゴミ箱に入れるのが安全です。",
			FunFact:           "地域のルールを必ず確認しましょう！",
		}
	}
	return reward.Classification{
		ItemLabel:         "Unknown Item",
		BinCategory:       "Landfill",
		ConfidencePercent: 0,
		Tip:               "If you aren't sure, it's safer to put it in the trash to avoid contamination.",
		FunFact:           "Always check your local recycling rules!",
	}
}

// FallbackHook observes substitutions, e.g. for metrics.
type FallbackHook func(err error)

type fallbackClassifier struct {
	next   Classifier
	logger *slog.Logger
	hook   FallbackHook
}

// WithFallback wraps c so that every failure yields Fallback(language) and a nil error.
// Context cancellation is also absorbed: the caller always gets a result it can score.
func WithFallback(c Classifier, logger *slog.Logger, hook FallbackHook) Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &fallbackClassifier{next: c, logger: logger, hook: hook}
}

func (f *fallbackClassifier) Classify(ctx context.Context, img Image, language string) (reward.Classification, error) {
	result, err := f.next.Classify(ctx, img, language)
	if err == nil {
		err = result.Validate()
	}
	if err != nil {
		f.logger.WarnContext(ctx, "classification failed, using fallback",
			slog.String("language", language),
			slog.Any("error", err),
		)
		if f.hook != nil {
			f.hook(err)
		}
		return Fallback(language), nil
	}
	return result, nil
}

func (f *fallbackClassifier) Close() error {
	return f.next.Close()
}

// staticClassifier always answers with the fallback result.
type staticClassifier struct{}

// NewFallbackClassifier returns a Classifier for deployments without a vision provider.
func NewFallbackClassifier() Classifier {
	return staticClassifier{}
}

func (staticClassifier) Classify(_ context.Context, _ Image, language string) (reward.Classification, error) {
	return Fallback(language), nil
}

func (staticClassifier) Close() error { return nil }
