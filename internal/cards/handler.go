package cards

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/linfan/backend/internal/access"
	"github.com/linfan/backend/internal/models"
	"github.com/linfan/backend/internal/platform/httpx"
)

type CardRequest struct {
	Name        string        `json:"name" validate:"required,max=100"`
	BillingDay  int           `json:"billing_day" validate:"min=1,max=31"`
	PaymentDay  int           `json:"payment_day" validate:"min=1,max=31"`
	CreditLimit models.Amount `json:"credit_limit"`
}

type PayRequest struct {
	SourceAccountID uuid.UUID     `json:"source_account_id" validate:"required"`
	Amount          models.Amount `json:"amount" validate:"gt=0"`
	Date            *models.Day   `json:"date,omitempty"`
	Description     string        `json:"description,omitempty" validate:"max=200"`
}

type LiabilityResponse struct {
	CardID    uuid.UUID     `json:"card_id"`
	Liability models.Amount `json:"liability"`
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
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/pay", h.Pay)
	r.Get("/{id}/liability", h.Liability)
	r.Get("/{id}/installments", h.Installments)
}

func (h *Handler) fail(w http.ResponseWriter, err error) { httpx.RespondError(w, h.log, err) }

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	list, err := h.svc.List(r.Context(), scope, includeDeleted)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	var req CardRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		h.fail(w, err)
		return
	}
	c, err := h.svc.Create(r.Context(), scope, CardInput(req))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	c, err := h.svc.Get(r.Context(), scope, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req CardRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		h.fail(w, err)
		return
	}
	c, err := h.svc.Update(r.Context(), scope, id, CardInput(req))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.svc.Delete(r.Context(), scope, id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req PayRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		h.fail(w, err)
		return
	}
	in := PayInput{SourceAccountID: req.SourceAccountID, Amount: req.Amount, Description: req.Description}
	if req.Date != nil {
		in.Date = req.Date.Time
	}
	t, err := h.svc.Pay(r.Context(), scope, id, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) Liability(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	total, err := h.svc.ComputeLiability(r.Context(), scope, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, LiabilityResponse{CardID: id, Liability: total})
}

func (h *Handler) Installments(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	list, err := h.svc.Installments(r.Context(), scope, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}
