// Package classify identifies waste items in images.
package classify

import (
	"context"
	"errors"

	"github.com/sortit/sortit-services/scan-service/internal/reward"
)

// DefaultLanguage is used when callers do not name one.
const DefaultLanguage = "English"

// ErrMalformedResponse indicates the provider answered without a usable classification.
var ErrMalformedResponse = errors.New("malformed classification response")

// Image is a raw image payload.
type Image struct {
	Data     []byte
	MIMEType string
}

// Classifier identifies the main waste item in an image. Text fields in the
// result are written in the requested language.
type Classifier interface {
	Classify(ctx context.Context, img Image, language string) (reward.Classification, error)
	Close() error
}
