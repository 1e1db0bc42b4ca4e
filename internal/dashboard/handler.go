package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/linfan/backend/internal/access"
	"github.com/linfan/backend/internal/platform/httpx"
)

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// GET /api/v1/dashboard
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	sum, err := h.svc.Summary(r.Context(), scope)
	if err != nil {
		httpx.RespondError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}
