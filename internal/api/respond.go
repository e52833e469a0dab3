package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/MikeSquared-Agency/curator/internal/ingest"
	"github.com/MikeSquared-Agency/curator/internal/processor"
	"github.com/MikeSquared-Agency/curator/internal/prompt"
	"github.com/MikeSquared-Agency/curator/internal/review"
	"github.com/MikeSquared-Agency/curator/internal/rowstore"
	"github.com/MikeSquared-Agency/curator/internal/session"
)

var (
	ErrBadRequest = errors.New("bad request")
	ErrInvalidID  = errors.New("invalid row id")
)

func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func RespondError(w http.ResponseWriter, logger *slog.Logger, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	}
	RespondJSON(w, status, map[string]string{"error": err.Error()})
}

// MapHTTPStatus maps domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	var verrs validator.ValidationErrors
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, session.ErrNotLoaded),
		errors.Is(err, rowstore.ErrNotFound),
		errors.Is(err, review.ErrNoCurrentRow):
		return http.StatusNotFound
	case errors.Is(err, session.ErrAlreadyLoaded),
		errors.Is(err, processor.ErrInvalidTransition):
		return http.StatusConflict
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &verrs),
		errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrInvalidID),
		errors.Is(err, ingest.ErrNoRows),
		errors.Is(err, review.ErrUnknownField),
		errors.Is(err, prompt.ErrEmptyInstruction):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	RespondError(w, s.logger, MapHTTPStatus(err), err)
}
