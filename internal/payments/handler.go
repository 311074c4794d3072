package payments

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/printhub/printhub/internal/ledger"
	"github.com/printhub/printhub/internal/platform/httpx"
	"github.com/printhub/printhub/internal/shared"
)

// IdempotencyPort guards against replayed payment requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Handler wires HTTP endpoints for payment recording.
type Handler struct {
	logger      *slog.Logger
	engine      *Engine
	idempotency IdempotencyPort
	validator   *validator.Validate
}

// NewHandler constructs payments handler. idem may be nil.
func NewHandler(logger *slog.Logger, engine *Engine, idem IdempotencyPort) *Handler {
	return &Handler{logger: logger, engine: engine, idempotency: idem, validator: validator.New()}
}

// MountRoutes registers payment routes below /tasks.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{id}/payments", h.handleRecordPayment)
}

type paymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method" validate:"required,oneof=cash card cheque credits online"`
	ChequeNumber  string          `json:"cheque_number" validate:"max=64"`
	BankName      string          `json:"bank_name" validate:"max=120"`
	ChequeDate    *time.Time      `json:"cheque_date"`
	BillNumber    string          `json:"bill_number" validate:"max=64"`
	DeclaredTotal decimal.Decimal `json:"declared_total"`
}

func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	taskID := chi.URLParam(r, "id")

	idemKey := ""
	if key := r.Header.Get("Idempotency-Key"); key != "" && h.idempotency != nil {
		idemKey = "payments:" + taskID + ":" + key
		if err := h.idempotency.CheckAndInsert(r.Context(), idemKey, "payments"); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}

	result, err := h.engine.RecordPayment(r.Context(), PaymentInput{
		TaskID: taskID,
		Amount: req.Amount,
		Method: ledger.PaymentMethod(req.Method),
		Details: Details{
			ChequeNumber: req.ChequeNumber,
			BankName:     req.BankName,
			ChequeDate:   req.ChequeDate,
			BillNumber:   req.BillNumber,
		},
		DeclaredTotal: req.DeclaredTotal,
		Branch:        shared.BranchFromContext(r.Context()),
	})
	if err != nil {
		if idemKey != "" {
			if delErr := h.idempotency.Delete(context.WithoutCancel(r.Context()), idemKey); delErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
