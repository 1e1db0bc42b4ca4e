package auth

import (
	"log/slog"
	"net/http"

	"github.com/linfan/backend/internal/access"
	"github.com/linfan/backend/internal/apperr"
	"github.com/linfan/backend/internal/platform/httpx"
)

type Handler struct {
	log *slog.Logger
}

func NewHandler(log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log}
}

// Me returns the caller's profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u := access.UserFromContext(r.Context())
	if u == nil {
		httpx.RespondError(w, h.log, apperr.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}
