package orders

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/monocart/internal/auth"
	"github.com/joao-fontenele/monocart/internal/domain"
	"github.com/joao-fontenele/monocart/internal/httpx"
)

const (
	IdempotencyHeader    = "Idempotency-Key"
	maxIdempotencyKeyLen = 255
)

type Placer interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error)
}

type Reader interface {
	ListByUser(ctx context.Context, userID int64) ([]domain.Order, error)
	GetForUser(ctx context.Context, userID, orderID int64) (*domain.Order, error)
}

type Handler struct {
	placer Placer
	reader Reader
	logger *slog.Logger
}

func NewHandler(placer Placer, reader Reader, logger *slog.Logger) *Handler {
	return &Handler{
		placer: placer,
		reader: reader,
		logger: logger,
	}
}

// HandleCreate places an order from the caller's cart. It takes no body.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		httpx.WriteError(h.logger, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if len(key) > maxIdempotencyKeyLen {
		httpx.WriteError(h.logger, w, http.StatusBadRequest, "idempotency key too long")
		return
	}

	res, err := h.placer.PlaceOrder(r.Context(), PlaceOrderRequest{
		UserID:         claims.ID,
		Email:          claims.Email,
		IdempotencyKey: key,
	})
	if err != nil {
		var stockErr *domain.InsufficientStockError
		switch {
		case errors.Is(err, domain.ErrEmptyCart):
			httpx.WriteError(h.logger, w, http.StatusBadRequest, "cart is empty")
		case errors.As(err, &stockErr):
			httpx.WriteError(h.logger, w, http.StatusConflict, stockErr.Error())
		default:
			httpx.WriteInternal(h.logger, w, "failed to place order", err, "user_id", claims.ID)
		}
		return
	}

	if res.Replayed {
		httpx.WriteJSON(h.logger, w, http.StatusOK, res.Order)
		return
	}
	httpx.WriteJSON(h.logger, w, http.StatusCreated, res.Order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		httpx.WriteError(h.logger, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orders, err := h.reader.ListByUser(r.Context(), claims.ID)
	if err != nil {
		httpx.WriteInternal(h.logger, w, "failed to list orders", err, "user_id", claims.ID)
		return
	}

	h.logger.Info("orders listed", "user_id", claims.ID, "count", len(orders))
	httpx.WriteJSON(h.logger, w, http.StatusOK, orders)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		httpx.WriteError(h.logger, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := httpx.PathID(r, "id")
	if !ok {
		httpx.WriteError(h.logger, w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.reader.GetForUser(r.Context(), claims.ID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			httpx.WriteError(h.logger, w, http.StatusNotFound, "order not found")
			return
		}
		httpx.WriteInternal(h.logger, w, "failed to get order", err, "order_id", id)
		return
	}

	httpx.WriteJSON(h.logger, w, http.StatusOK, order)
}
