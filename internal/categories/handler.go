package categories

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/linfan/backend/internal/access"
	"github.com/linfan/backend/internal/models"
	"github.com/linfan/backend/internal/platform/httpx"
)

type CreateRequest struct {
	Name string              `json:"name" validate:"required,max=50"`
	Kind models.CategoryKind `json:"kind" validate:"required,oneof=income expense"`
	Icon *string             `json:"icon,omitempty" validate:"omitempty,max=50"`
}

type SeedResponse struct {
	Inserted int `json:"inserted"`
}

type Handler struct {
	svc      *Service
	validate *validator.Validate
	log      *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, validate: validator.New(validator.WithRequiredStructEnabled()), log: log}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/seed", h.Seed)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	list, err := h.svc.List(r.Context(), scope)
	if err != nil {
		httpx.RespondError(w, h.log, err)
		return
	}
	if list == nil {
		list = []*models.Category{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	var req CreateRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, h.log, err)
		return
	}
	c, err := h.svc.Create(r.Context(), scope, req.Name, req.Kind, req.Icon)
	if err != nil {
		httpx.RespondError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	n, err := h.svc.Seed(r.Context(), scope)
	if err != nil {
		httpx.RespondError(w, h.log, err)
		return
	}
	if n > 0 {
		h.log.Info("categories seeded", "ledger_id", scope.LedgerID, "count", n)
	}
	httpx.JSON(w, http.StatusOK, SeedResponse{Inserted: n})
}
