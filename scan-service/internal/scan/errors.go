package scan

import "errors"

var (
	// ErrProgressNotSaved indicates the reward was computed but could not be persisted.
	ErrProgressNotSaved = errors.New("progress not saved")
	// ErrInvalidLimit indicates a negative history limit.
	ErrInvalidLimit = errors.New("limit must not be negative")
)
