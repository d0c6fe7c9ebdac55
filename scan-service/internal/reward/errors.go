package reward

import "errors"

var (
	// ErrMissingBinCategory indicates a classification without a bin category.
	ErrMissingBinCategory = errors.New("classification is missing a bin category")
	// ErrCorruptProgress indicates persisted progress that violates ledger invariants.
	ErrCorruptProgress = errors.New("corrupt user progress")
)
