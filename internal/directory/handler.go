package directory

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/linfan/backend/internal/access"
	"github.com/linfan/backend/internal/apperr"
	"github.com/linfan/backend/internal/models"
	"github.com/linfan/backend/internal/platform/httpx"
)

type CreateLedgerRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password,omitempty" validate:"max=128"`
}

type UpdateLedgerRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,max=100"`
	Password *string `json:"password,omitempty" validate:"omitempty,max=128"`
}

type PasswordRequest struct {
	Password string `json:"password,omitempty"`
}

type AddMemberRequest struct {
	Email string      `json:"email" validate:"required,email"`
	Role  models.Role `json:"role" validate:"required,oneof=editor viewer"`
}

type UpdateMemberRequest struct {
	Role models.Role `json:"role" validate:"required,oneof=editor viewer"`
}

type successResponse struct {
	Success bool `json:"success"`
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

// Routes mounts the ledger endpoints. Callers must already be authenticated.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{ledgerID}", func(r chi.Router) {
		r.Patch("/", h.Update)
		r.Delete("/", h.Delete)
		r.Post("/verify", h.Verify)
		r.Get("/members", h.ListMembers)
		r.Post("/members", h.AddMember)
		r.Patch("/members/{userID}", h.UpdateMember)
		r.Delete("/members/{userID}", h.RemoveMember)
	})
}

func (h *Handler) fail(w http.ResponseWriter, err error) { httpx.RespondError(w, h.log, err) }

func caller(r *http.Request) (*models.User, error) {
	u := access.UserFromContext(r.Context())
	if u == nil {
		return nil, apperr.ErrUnauthorized
	}
	return u, nil
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	u, err := caller(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	list, err := h.svc.ListLedgers(r.Context(), u.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	if list == nil {
		list = []models.LedgerSummary{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	u, err := caller(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req CreateLedgerRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		h.fail(w, err)
		return
	}
	l, err := h.svc.CreateLedger(r.Context(), u.ID, req.Name, req.Password)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ledgerResponse(l))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	u, ledgerID, err := scoped(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req UpdateLedgerRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		h.fail(w, err)
		return
	}
	l, err := h.svc.UpdateLedger(r.Context(), u.ID, ledgerID, UpdateLedgerInput{Name: req.Name, Password: req.Password})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledgerResponse(l))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	u, ledgerID, err := scoped(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req PasswordRequest
	if err := httpx.DecodeOptionalJSON(r, nil, &req); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.svc.DeleteLedger(r.Context(), u.ID, ledgerID, req.Password); err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	u, ledgerID, err := scoped(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req PasswordRequest
	if err := httpx.DecodeOptionalJSON(r, nil, &req); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.svc.VerifyEntry(r.Context(), u.ID, ledgerID, req.Password); err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	u, ledgerID, err := scoped(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	list, err := h.svc.ListMembers(r.Context(), u.ID, ledgerID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	u, ledgerID, err := scoped(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req AddMemberRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		h.fail(w, err)
		return
	}
	m, err := h.svc.AddMember(r.Context(), u.ID, ledgerID, req.Email, req.Role)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	u, ledgerID, err := scoped(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	memberID, err := httpx.URLParamUUID(r, "userID")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req UpdateMemberRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.svc.UpdateMemberRole(r.Context(), u.ID, ledgerID, memberID, req.Role); err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	u, ledgerID, err := scoped(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	memberID, err := httpx.URLParamUUID(r, "userID")
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.svc.RemoveMember(r.Context(), u.ID, ledgerID, memberID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// scoped returns the caller and the path ledger id. A malformed id is
// Forbidden like any ledger the caller cannot see.
func scoped(r *http.Request) (*models.User, uuid.UUID, error) {
	u, err := caller(r)
	if err != nil {
		return nil, uuid.Nil, err
	}
	ledgerID, err := uuid.Parse(chi.URLParam(r, "ledgerID"))
	if err != nil {
		return nil, uuid.Nil, apperr.ErrForbidden
	}
	return u, ledgerID, nil
}

type LedgerResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	HasPassword bool      `json:"has_password"`
	CreatedAt   time.Time `json:"created_at"`
}

func ledgerResponse(l *models.Ledger) LedgerResponse {
	return LedgerResponse{ID: l.ID, Name: l.Name, HasPassword: l.HasPassword(), CreatedAt: l.CreatedAt}
}
