package question

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/trivia-pipeline/pkg/http/errors"
)

const maxSubmissionBytes = 64 << 10

// HTTPHandlers exposes the submission and retrieval endpoints.
type HTTPHandlers struct {
	svc    *Service
	logger zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for question endpoints.
func NewHTTPHandlers(svc *Service, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		svc:    svc,
		logger: logger.With().Str("component", "question_http").Logger(),
	}
}

// Categories handles GET /categories
func (h *HTTPHandlers) Categories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httperrors.RespondMethodNotAllowed(w)
		return
	}

	categories, err := h.svc.Categories(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to fetch categories")
		httperrors.RespondInternalError(w, "Failed to fetch categories")
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, categories)
}

// Questions handles GET /question/{category}?count=N
func (h *HTTPHandlers) Questions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httperrors.RespondMethodNotAllowed(w)
		return
	}

	category := r.PathValue("category")
	if category == "" {
		category = strings.TrimPrefix(r.URL.Path, "/question/")
	}
	count := ParseCount(r.URL.Query().Get("count"))

	questions, err := h.svc.Questions(r.Context(), category, count)
	if err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			httperrors.RespondNotFound(w, httperrors.ErrCodeCategoryNotFound, "No questions found for this category")
			return
		}
		httperrors.RespondInternalError(w, "Failed to fetch random questions")
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, questions)
}

// Submit handles POST /submit
func (h *HTTPHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httperrors.RespondMethodNotAllowed(w)
		return
	}

	var req SubmissionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmissionBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}

	receipt, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			httperrors.RespondValidationError(w, verr.Reason, verr.Message, verr.Field)
		case errors.Is(err, ErrBrokerUnavailable), errors.Is(err, ErrPublishTimeout), errors.Is(err, ErrBrokerPublish):
			httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeServiceUnavailable, "Submission service is temporarily unavailable")
		default:
			httperrors.RespondInternalError(w, "Failed to submit question")
		}
		return
	}

	httperrors.RespondJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":       "Question submitted successfully!",
		"submission_id": receipt.SubmissionID,
		"category":      receipt.Category,
	})
}
