package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/linfan/backend/internal/apperr"
)

// RespondError maps domain errors to HTTP responses. Forbidden and NotFound
// never carry detail so callers cannot probe for ledger or entity existence.
// Unclassified errors are logged and answered with 500.
func RespondError(w http.ResponseWriter, log *slog.Logger, err error) {
	var (
		fieldErr    *apperr.FieldError
		conflictErr *apperr.ConflictError
		decodeErr   *DecodeError
		bodyErr     *InvalidBodyError
	)
	switch {
	case errors.As(err, &bodyErr):
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Fields: bodyErr.Fields,
		})
	case errors.As(err, &decodeErr):
		Problem(w, http.StatusBadRequest, "Bad Request", decodeErr.Error())
	case errors.As(err, &fieldErr):
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: fieldErr.Message,
			Fields: map[string]string{fieldErr.Field: fieldErr.Message},
		})
	case errors.Is(err, apperr.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, apperr.ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "")
	case errors.Is(err, apperr.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "")
	case errors.Is(err, apperr.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "")
	case errors.As(err, &conflictErr):
		Problem(w, http.StatusConflict, "Conflict", conflictErr.Reason)
	case errors.Is(err, apperr.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		if log == nil {
			log = slog.Default()
		}
		log.Error("request failed", "error", err)
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
