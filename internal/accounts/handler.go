package accounts

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
	Name     string             `json:"name" validate:"required,max=100"`
	Kind     models.AccountKind `json:"kind" validate:"required,oneof=cash bank digital"`
	Currency string             `json:"currency,omitempty" validate:"omitempty,len=3"`
	Balance  models.Amount      `json:"balance"`
	Hidden   bool               `json:"hidden"`
}

type PatchRequest struct {
	Name     *string             `json:"name,omitempty" validate:"omitempty,max=100"`
	Kind     *models.AccountKind `json:"kind,omitempty" validate:"omitempty,oneof=cash bank digital"`
	Currency *string             `json:"currency,omitempty" validate:"omitempty,len=3"`
	Balance  *models.Amount      `json:"balance,omitempty"`
	Hidden   *bool               `json:"hidden,omitempty"`
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

// Routes mounts the account endpoints on a ledger-scoped router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Patch)
	r.Delete("/{id}", h.Delete)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	list, err := h.svc.List(r.Context(), scope)
	if err != nil {
		httpx.RespondError(w, h.log, err)
		return
	}
	if list == nil {
		list = []*models.Account{}
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
	a, err := h.svc.Create(r.Context(), scope, CreateInput(req))
	if err != nil {
		httpx.RespondError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.log, err)
		return
	}
	a, err := h.svc.Get(r.Context(), scope, id)
	if err != nil {
		httpx.RespondError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) Patch(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.log, err)
		return
	}
	var req PatchRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, h.log, err)
		return
	}
	a, err := h.svc.Patch(r.Context(), scope, id, PatchInput(req))
	if err != nil {
		httpx.RespondError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.log, err)
		return
	}
	if err := h.svc.Delete(r.Context(), scope, id); err != nil {
		httpx.RespondError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
