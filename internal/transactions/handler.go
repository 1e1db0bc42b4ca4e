package transactions

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

type TransactionRequest struct {
	Type                 Type          `json:"type" validate:"required,oneof=expense income transfer card_payment"`
	Amount               models.Amount `json:"amount" validate:"gt=0"`
	Date                 *models.Day   `json:"date,omitempty"`
	Description          string        `json:"description,omitempty" validate:"max=200"`
	CategoryID           *uuid.UUID    `json:"category_id,omitempty"`
	SourceAccountID      *uuid.UUID    `json:"source_account_id,omitempty"`
	DestinationAccountID *uuid.UUID    `json:"destination_account_id,omitempty"`
	CreditCardID         *uuid.UUID    `json:"credit_card_id,omitempty"`
	InstallmentMonths    int           `json:"installment_months,omitempty" validate:"min=0,max=120"`
}

func (req TransactionRequest) input() Input {
	in := Input{
		Type:                 req.Type,
		Amount:               req.Amount,
		Description:          req.Description,
		CategoryID:           req.CategoryID,
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		CreditCardID:         req.CreditCardID,
		InstallmentMonths:    req.InstallmentMonths,
	}
	if req.Date != nil {
		in.Date = req.Date.Time
	}
	return in
}

type Handler struct {
	engine   *Engine
	validate *validator.Validate
	log      *slog.Logger
}

func NewHandler(engine *Engine, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{engine: engine, validate: validator.New(validator.WithRequiredStructEnabled()), log: log}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Edit)
	r.Delete("/{id}", h.Delete)
}

func (h *Handler) fail(w http.ResponseWriter, err error) { httpx.RespondError(w, h.log, err) }

// List handles GET /transactions?limit=&offset=&account_id=&card_id=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	var (
		f   models.TransactionFilter
		err error
	)
	if f.Limit, err = httpx.QueryInt(r, "limit", models.DefaultListLimit); err != nil {
		h.fail(w, err)
		return
	}
	if f.Offset, err = httpx.QueryInt(r, "offset", 0); err != nil {
		h.fail(w, err)
		return
	}
	if f.AccountID, err = httpx.QueryUUID(r, "account_id"); err != nil {
		h.fail(w, err)
		return
	}
	if f.CardID, err = httpx.QueryUUID(r, "card_id"); err != nil {
		h.fail(w, err)
		return
	}
	list, err := h.engine.List(r.Context(), scope, f)
	if err != nil {
		h.fail(w, err)
		return
	}
	if list == nil {
		list = []*models.Transaction{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	var req TransactionRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		h.fail(w, err)
		return
	}
	t, err := h.engine.Create(r.Context(), scope, req.input())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.log.Info("transaction recorded", "ledger_id", scope.LedgerID, "transaction_id", t.ID, "kind", t.Kind)
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	t, err := h.engine.Get(r.Context(), scope, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req TransactionRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		h.fail(w, err)
		return
	}
	t, err := h.engine.Edit(r.Context(), scope, id, req.input())
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.engine.Delete(r.Context(), scope, id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
