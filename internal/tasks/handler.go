package tasks

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/printhub/printhub/internal/ledger"
	"github.com/printhub/printhub/internal/platform/httpx"
	"github.com/printhub/printhub/internal/shared"
)

// Handler wires HTTP endpoints for task intake.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs tasks handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers task routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/start", h.handleStart)
	r.Post("/{id}/send-to-main", h.handleSendToMain)
}

type lineRequest struct {
	ProductRef string          `json:"product_ref" validate:"required,max=120"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Waste      decimal.Decimal `json:"waste"`
}

type createRequest struct {
	CustomerName  string          `json:"customer_name" validate:"required,max=160"`
	CustomerPhone string          `json:"customer_phone" validate:"max=32"`
	Title         string          `json:"title" validate:"max=200"`
	Products      []lineRequest   `json:"products" validate:"dive"`
	ProductRef    string          `json:"product_ref" validate:"max=120"`
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
	Waste         decimal.Decimal `json:"waste"`
	TotalPrice    decimal.Decimal `json:"total_price"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	products := make([]ledger.LineItem, 0, len(req.Products))
	for _, line := range req.Products {
		products = append(products, ledger.LineItem{
			ProductRef: line.ProductRef,
			UnitPrice:  line.UnitPrice,
			Quantity:   line.Quantity,
			Waste:      line.Waste,
		})
	}
	created, err := h.service.Create(r.Context(), CreateInput{
		Branch:        shared.BranchFromContext(r.Context()),
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Title:         req.Title,
		Products:      products,
		ProductRef:    req.ProductRef,
		Price:         req.Price,
		Quantity:      req.Quantity,
		Waste:         req.Waste,
		TotalPrice:    req.TotalPrice,
	})
	if err != nil {
		h.respondError(w, "create task", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), shared.BranchFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "get task", err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.Start(r.Context(), chi.URLParam(r, "id"), shared.BranchFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "start task", err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) handleSendToMain(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.SendToMainBranch(r.Context(), chi.URLParam(r, "id"), shared.BranchFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "send task to main branch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
