package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/printhub/printhub/internal/platform/httpx"
	"github.com/printhub/printhub/internal/shared"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/adjustments", h.handleAdjustment)
}

type adjustmentRequest struct {
	ProductRef string          `json:"product_ref" validate:"required,max=120"`
	Quantity   decimal.Decimal `json:"quantity"`
	Note       string          `json:"note" validate:"max=500"`
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	branch := shared.BranchFromContext(r.Context())
	movement, err := h.service.Adjust(r.Context(), AdjustmentInput{
		Branch:     branch,
		ProductRef: req.ProductRef,
		Quantity:   req.Quantity,
		Note:       req.Note,
	})
	if err != nil {
		if shared.KindOf(err) == shared.KindInternal {
			h.logger.Error("inventory adjustment", slog.Any("error", err), slog.String("branch", branch))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movement)
}
