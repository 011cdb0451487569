package cart

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/monocart/internal/auth"
	"github.com/joao-fontenele/monocart/internal/domain"
	"github.com/joao-fontenele/monocart/internal/httpx"
)

type Carts interface {
	Get(ctx context.Context, userID int64) (*domain.Cart, error)
	AddItem(ctx context.Context, userID, productID int64, qty int) (*domain.CartItem, bool, error)
	UpdateItem(ctx context.Context, userID, itemID int64, qty int) (*domain.CartItem, error)
	RemoveItem(ctx context.Context, userID, itemID int64) error
}

type addItemRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,min=1"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

type Handler struct {
	carts  Carts
	logger *slog.Logger
}

func NewHandler(carts Carts, logger *slog.Logger) *Handler {
	return &Handler{carts: carts, logger: logger}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		httpx.WriteError(h.logger, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cart, err := h.carts.Get(r.Context(), claims.ID)
	if err != nil {
		httpx.WriteInternal(h.logger, w, "failed to get cart", err, "user_id", claims.ID)
		return
	}
	httpx.WriteJSON(h.logger, w, http.StatusOK, cart)
}

// HandleAdd answers 201 when a new line was created and 200 when an existing
// line was incremented.
func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		httpx.WriteError(h.logger, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req addItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(h.logger, w, err)
		return
	}

	item, created, err := h.carts.AddItem(r.Context(), claims.ID, req.ProductID, req.Quantity)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			httpx.WriteError(h.logger, w, http.StatusNotFound, "product not found")
			return
		}
		httpx.WriteInternal(h.logger, w, "failed to add cart item", err, "user_id", claims.ID, "product_id", req.ProductID)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.WriteJSON(h.logger, w, status, item)
}

func (h *Handler) HandleUpdateItem(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		httpx.WriteError(h.logger, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	itemID, ok := httpx.PathID(r, "itemId")
	if !ok {
		httpx.WriteError(h.logger, w, http.StatusBadRequest, "invalid item id")
		return
	}

	var req updateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(h.logger, w, err)
		return
	}

	item, err := h.carts.UpdateItem(r.Context(), claims.ID, itemID, req.Quantity)
	if err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			httpx.WriteError(h.logger, w, http.StatusForbidden, "forbidden")
			return
		}
		httpx.WriteInternal(h.logger, w, "failed to update cart item", err, "item_id", itemID)
		return
	}
	httpx.WriteJSON(h.logger, w, http.StatusOK, item)
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		httpx.WriteError(h.logger, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	itemID, ok := httpx.PathID(r, "itemId")
	if !ok {
		httpx.WriteError(h.logger, w, http.StatusBadRequest, "invalid item id")
		return
	}

	if err := h.carts.RemoveItem(r.Context(), claims.ID, itemID); err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			httpx.WriteError(h.logger, w, http.StatusForbidden, "forbidden")
			return
		}
		httpx.WriteInternal(h.logger, w, "failed to remove cart item", err, "item_id", itemID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
