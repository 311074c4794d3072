package settlement

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/printhub/printhub/internal/ledger"
	"github.com/printhub/printhub/internal/platform/httpx"
	"github.com/printhub/printhub/internal/shared"
)

// Handler wires HTTP endpoints for clearance and credit operations.
type Handler struct {
	logger    *slog.Logger
	clearance *Clearance
	credits   *CreditLedger
	validator *validator.Validate
}

// NewHandler constructs settlement handler.
func NewHandler(logger *slog.Logger, clearance *Clearance, credits *CreditLedger) *Handler {
	return &Handler{logger: logger, clearance: clearance, credits: credits, validator: validator.New()}
}

// MountTaskRoutes registers clearance routes below /tasks.
func (h *Handler) MountTaskRoutes(r chi.Router) {
	r.Post("/{id}/cheque", h.handleResolveCheque)
	r.Post("/{id}/online-payment", h.handleResolveOnline)
	r.Post("/{id}/credit-settlement", h.handleCompleteCredit)
}

// MountCreditRoutes registers credit ledger routes.
func (h *Handler) MountCreditRoutes(r chi.Router) {
	r.Post("/", h.handleApplyCredit)
	r.Get("/{customerKey}", h.handleGetBalance)
}

// MountDeferredRoutes registers the deferred payment review queue.
func (h *Handler) MountDeferredRoutes(r chi.Router) {
	r.Get("/", h.handleListDeferred)
}

type resolveRequest struct {
	Outcome string `json:"outcome" validate:"required"`
	Notes   string `json:"notes" validate:"max=1000"`
}

type applyCreditRequest struct {
	CustomerKey string          `json:"customer_key" validate:"required,max=64"`
	Name        string          `json:"name" validate:"max=200"`
	Amount      decimal.Decimal `json:"amount"`
}

type balanceResponse struct {
	Balance
	History []ledger.CreditEntry `json:"history,omitempty"`
}

func (h *Handler) handleResolveCheque(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	task, err := h.clearance.ResolveCheque(r.Context(), Resolution{
		TaskID:  chi.URLParam(r, "id"),
		Outcome: ledger.ClearanceStatus(req.Outcome),
		Notes:   req.Notes,
		Branch:  shared.BranchFromContext(r.Context()),
	})
	h.respondTask(w, task, err, "resolve cheque")
}

func (h *Handler) handleResolveOnline(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	task, err := h.clearance.ResolveOnlinePayment(r.Context(), Resolution{
		TaskID:  chi.URLParam(r, "id"),
		Outcome: ledger.ClearanceStatus(req.Outcome),
		Notes:   req.Notes,
		Branch:  shared.BranchFromContext(r.Context()),
	})
	h.respondTask(w, task, err, "resolve online payment")
}

func (h *Handler) handleCompleteCredit(w http.ResponseWriter, r *http.Request) {
	task, err := h.clearance.CompleteCreditSettlement(r.Context(), chi.URLParam(r, "id"), shared.BranchFromContext(r.Context()))
	h.respondTask(w, task, err, "complete credit settlement")
}

func (h *Handler) respondTask(w http.ResponseWriter, task ledger.Task, err error, op string) {
	if err != nil {
		if shared.KindOf(err) == shared.KindInternal {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) handleApplyCredit(w http.ResponseWriter, r *http.Request) {
	var req applyCreditRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	balance, err := h.credits.ApplyCredit(r.Context(), req.CustomerKey, req.Name, req.Amount)
	if err != nil {
		if shared.KindOf(err) == shared.KindInternal {
			h.logger.Error("apply credit", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "customerKey")
	balance, err := h.credits.GetBalance(r.Context(), key)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := balanceResponse{Balance: balance}
	if raw := r.URL.Query().Get("history"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httpx.RespondError(w, shared.Invalidf("history must be a number"))
			return
		}
		resp.History, err = h.credits.History(r.Context(), key, limit)
		if err != nil {
			h.logger.Error("credit history", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListDeferred(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.DeferredFilter{
		Branch: shared.BranchFromContext(r.Context()),
		Status: ledger.ClearanceStatus(q.Get("status")),
		Method: ledger.PaymentMethod(q.Get("method")),
	}
	if raw := q.Get("before"); raw != "" {
		before, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.RespondError(w, shared.Invalidf("before must be RFC3339"))
			return
		}
		filter.CreatedBefore = before
	}
	if raw := q.Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			filter.Limit = limit
		}
	}
	payments, err := h.clearance.ListDeferred(r.Context(), filter)
	if err != nil {
		if shared.KindOf(err) == shared.KindInternal {
			h.logger.Error("list deferred payments", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	if payments == nil {
		payments = []ledger.DeferredPayment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": payments})
}
