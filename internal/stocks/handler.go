package stocks

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

type TradeRequest struct {
	Ticker     string        `json:"ticker" validate:"required,max=16"`
	OwnerLabel string        `json:"owner_label,omitempty" validate:"max=50"`
	Shares     models.Amount `json:"shares" validate:"gt=0"`
	Price      models.Amount `json:"price" validate:"gt=0"`
	Date       *models.Day   `json:"date,omitempty"`
	AccountID  uuid.UUID     `json:"account_id" validate:"required"`
}

func (req TradeRequest) input() TradeInput {
	in := TradeInput{
		Ticker:     req.Ticker,
		OwnerLabel: req.OwnerLabel,
		Shares:     req.Shares,
		Price:      req.Price,
		AccountID:  req.AccountID,
	}
	if req.Date != nil {
		in.Date = req.Date.Time
	}
	return in
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
	r.Post("/buy", h.Buy)
	r.Post("/sell", h.Sell)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	list, err := h.svc.List(r.Context(), scope)
	if err != nil {
		httpx.RespondError(w, h.log, err)
		return
	}
	if list == nil {
		list = []*models.Stock{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	var req TradeRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, h.log, err)
		return
	}
	res, err := h.svc.Buy(r.Context(), scope, req.input())
	if err != nil {
		httpx.RespondError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	scope, _ := access.ScopeFromContext(r.Context())
	var req TradeRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, h.log, err)
		return
	}
	res, err := h.svc.Sell(r.Context(), scope, req.input())
	if err != nil {
		httpx.RespondError(w, h.log, err)
		return
	}
	h.log.Info("shares sold", "ledger_id", scope.LedgerID, "ticker", res.Holding.Ticker, "realized_pnl", res.RealizedPnL.String())
	httpx.JSON(w, http.StatusCreated, res)
}
