package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sortit/sortit-services/scan-service/internal/classify"
	"github.com/sortit/sortit-services/scan-service/internal/progress"
	"github.com/sortit/sortit-services/scan-service/internal/reward"
	"github.com/sortit/sortit-services/scan-service/internal/scan"
	sharederrors "github.com/sortit/sortit-services/shared-libs/errors"
	"github.com/sortit/sortit-services/shared-libs/logging"
)

// codeProgressCorrupt marks a stored ledger that failed verification.
const codeProgressCorrupt = "progress_corrupt"

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, code, message string) {
	writeJSON(w, sharederrors.ToStatusCode(code), sharederrors.ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// respondServiceError maps service errors onto the shared envelope.
func respondServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, message string, err error, userID string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, classify.ErrInvalidImage):
		writeError(w, r, sharederrors.CodeBadRequest, "image must be a base64 encoded png, jpeg or webp")
	case errors.As(err, &tooLarge):
		writeError(w, r, sharederrors.CodeTooLarge, "image too large")
	case errors.Is(err, scan.ErrInvalidLimit):
		writeError(w, r, sharederrors.CodeBadRequest, err.Error())
	case errors.Is(err, progress.ErrMissingUserID):
		writeError(w, r, sharederrors.CodeUnauthorized, "missing user")
	case errors.Is(err, reward.ErrCorruptProgress):
		logRequestError(r.Context(), logger, message, err, userID)
		writeJSON(w, http.StatusInternalServerError, sharederrors.ErrorResponse{
			Code:      codeProgressCorrupt,
			Message:   "stored progress is unreadable; reset it to start over",
			RequestID: middleware.GetReqID(r.Context()),
		})
	case errors.Is(err, context.DeadlineExceeded):
		logRequestError(r.Context(), logger, message, err, userID)
		writeError(w, r, sharederrors.CodeUnavailable, "request timed out")
	default:
		logRequestError(r.Context(), logger, message, err, userID)
		writeError(w, r, sharederrors.CodeInternal, message)
	}
}

func logRequestError(ctx context.Context, logger *slog.Logger, message string, err error, userID string) {
	if logger == nil || err == nil {
		return
	}
	logging.FromRequest(ctx, logger).ErrorContext(ctx, message,
		slog.String("userId", userID),
		slog.Any("error", err),
	)
}
