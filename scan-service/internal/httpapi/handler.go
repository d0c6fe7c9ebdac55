package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sortit/sortit-services/scan-service/internal/classify"
	"github.com/sortit/sortit-services/scan-service/internal/identity"
	"github.com/sortit/sortit-services/scan-service/internal/reward"
	"github.com/sortit/sortit-services/scan-service/internal/scan"
	"github.com/sortit/sortit-services/shared-libs/auth"
	sharederrors "github.com/sortit/sortit-services/shared-libs/errors"
	"github.com/sortit/sortit-services/shared-libs/ratelimit"
)

const (
	serviceTimeout = 8 * time.Second
	maxImageBytes  = 10 << 20
	// base64 inflates by 4/3, plus room for the other JSON fields.
	maxJSONBodyBytes = maxImageBytes*4/3 + 64<<10
	maxSignInBody    = 4 << 10
	timezoneHeader   = "X-Timezone"
)

// Service is the scan service as seen by the handlers.
type Service interface {
	Scan(ctx context.Context, userID string, in scan.Input) (*scan.Result, error)
	Classify(ctx context.Context, img classify.Image, language string) (reward.Classification, error)
	Progress(ctx context.Context, userID string, loc *time.Location) (reward.UserProgress, error)
	DailyChallenge(ctx context.Context, userID string, loc *time.Location) (reward.UserProgress, bool, error)
	History(ctx context.Context, userID string, limit int) ([]reward.ScanRecord, error)
	Reset(ctx context.Context, userID string) error
	Challenges() []reward.ChallengeTemplate
	Location(name string) *time.Location
}

// Options carries route dependencies. A nil Limiter disables rate limiting.
type Options struct {
	Verifier auth.Verifier
	Limiter  *ratelimit.Limiter
	Logger   *slog.Logger
}

// RegisterRoutes registers all scan service routes.
func RegisterRoutes(r chi.Router, service Service, opts Options) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger
	limit := func(next http.Handler) http.Handler { return next }
	if opts.Limiter != nil {
		limit = opts.Limiter.Middleware(requestUserID)
	}

	r.Route("/v1/session", func(r chi.Router) {
		r.Use(auth.OptionalMiddleware(opts.Verifier))

		r.Get("/", getSession())
		r.Post("/errors", describeSignInError())
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(opts.Verifier))

		r.Get("/v1/challenges", listChallenges(service))

		r.Route("/v1/progress/me", func(r chi.Router) {
			r.Get("/", getProgress(service, logger))
			r.Delete("/", resetProgress(service, logger))
			r.Post("/daily-challenge", selectDailyChallenge(service, logger))
		})

		r.Get("/v1/scans", listScans(service, logger))
		r.With(limit).Post("/v1/scans", createScan(service, logger))
		r.With(limit).Post("/v1/classifications", createClassification(service, logger))
	})
}

func requestUserID(r *http.Request) string {
	user, _ := auth.UserFromContext(r.Context())
	return user.UserID
}

func getSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.UserFromContext(r.Context())
		writeJSON(w, http.StatusOK, identity.StateOf(user, ok))
	}
}

func describeSignInError() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code string `json:"code"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSignInBody)).Decode(&req); err != nil {
			writeError(w, r, sharederrors.CodeBadRequest, "invalid request body")
			return
		}
		writeJSON(w, http.StatusOK, identity.Describe(req.Code))
	}
}

func listChallenges(service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"challenges": service.Challenges()})
	}
}

func getProgress(service Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		p, err := service.Progress(ctx, userID, service.Location(r.Header.Get(timezoneHeader)))
		if err != nil && !errors.Is(err, scan.ErrProgressNotSaved) {
			respondServiceError(w, r, logger, "failed to load progress", err, userID)
			return
		}
		writeJSON(w, http.StatusOK, newProgressView(p))
	}
}

func resetProgress(service Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		if err := service.Reset(ctx, userID); err != nil {
			respondServiceError(w, r, logger, "failed to reset progress", err, userID)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func selectDailyChallenge(service Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		p, assigned, err := service.DailyChallenge(ctx, userID, service.Location(r.Header.Get(timezoneHeader)))
		saved := true
		if errors.Is(err, scan.ErrProgressNotSaved) {
			saved = false
		} else if err != nil {
			respondServiceError(w, r, logger, "failed to select daily challenge", err, userID)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"challenge": p.ActiveChallenge,
			"assigned":  assigned,
			"saved":     saved,
		})
	}
}

func listScans(service Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		limit := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, r, sharederrors.CodeBadRequest, "limit must be an integer")
				return
			}
			limit = n
		}

		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		history, err := service.History(ctx, userID, limit)
		if err != nil {
			respondServiceError(w, r, logger, "failed to load scan history", err, userID)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"scans": history})
	}
}

func createClassification(service Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		req, err := readScanRequest(w, r)
		if err != nil {
			respondServiceError(w, r, logger, "invalid classification request", err, userID)
			return
		}

		// The service bounds the classifier call with its own timeout.
		c, err := service.Classify(r.Context(), req.Image, req.Language)
		if err != nil {
			respondServiceError(w, r, logger, "failed to classify image", err, userID)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func createScan(service Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		req, err := readScanRequest(w, r)
		if err != nil {
			respondServiceError(w, r, logger, "invalid scan request", err, userID)
			return
		}

		res, err := service.Scan(r.Context(), userID, scan.Input{
			Image:      req.Image,
			Language:   req.Language,
			Prediction: req.Prediction,
			Location:   service.Location(r.Header.Get(timezoneHeader)),
		})
		if err != nil && !(errors.Is(err, scan.ErrProgressNotSaved) && res != nil) {
			respondServiceError(w, r, logger, "failed to record scan", err, userID)
			return
		}

		resp := newScanResponse(res)
		if err != nil {
			resp.Warning = "progress could not be saved; this reward may be lost"
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type scanRequest struct {
	Image      classify.Image
	Language   string
	Prediction string
}

// readScanRequest accepts JSON {image, language, prediction} with a base64
// or data URL image, or a multipart form with an "image" file part.
func readScanRequest(w http.ResponseWriter, r *http.Request) (scanRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return readMultipartScan(w, r)
	}

	var body struct {
		Image      string `json:"image"`
		Language   string `json:"language"`
		Prediction string `json:"prediction"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return scanRequest{}, err
		}
		return scanRequest{}, classify.ErrInvalidImage
	}
	img, err := classify.DecodeImage(body.Image)
	if err != nil {
		return scanRequest{}, err
	}
	if len(img.Data) > maxImageBytes {
		return scanRequest{}, &http.MaxBytesError{Limit: maxImageBytes}
	}
	return scanRequest{
		Image:      img,
		Language:   requestLanguage(r, body.Language),
		Prediction: strings.TrimSpace(body.Prediction),
	}, nil
}

func readMultipartScan(w http.ResponseWriter, r *http.Request) (scanRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+64<<10)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return scanRequest{}, err
		}
		return scanRequest{}, classify.ErrInvalidImage
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		return scanRequest{}, classify.ErrInvalidImage
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return scanRequest{}, err
	}
	img, err := classify.NewImage(data)
	if err != nil {
		return scanRequest{}, err
	}
	return scanRequest{
		Image:      img,
		Language:   requestLanguage(r, r.FormValue("language")),
		Prediction: strings.TrimSpace(r.FormValue("prediction")),
	}, nil
}

func requestLanguage(r *http.Request, explicit string) string {
	if strings.TrimSpace(explicit) != "" {
		return classify.NormalizeLanguage(explicit)
	}
	return classify.LanguageFromAcceptHeader(r.Header.Get("Accept-Language"))
}
