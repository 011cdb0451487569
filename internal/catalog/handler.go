package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/monocart/internal/domain"
	"github.com/joao-fontenele/monocart/internal/httpx"
)

type Store interface {
	CreateCategory(ctx context.Context, name string) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateProduct(ctx context.Context, p *domain.Product) error
	ListProducts(ctx context.Context, q ListQuery) ([]domain.Product, error)
}

type createCategoryRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

type createProductRequest struct {
	Name          string   `json:"name" validate:"required,max=255"`
	Description   string   `json:"description"`
	Price         int64    `json:"price" validate:"gte=0"`
	StockQuantity int      `json:"stockQuantity" validate:"gte=0"`
	CategoryID    int64    `json:"categoryId" validate:"required,gte=1"`
	Images        []string `json:"images" validate:"omitempty,dive,url"`
}

type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) HandleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(h.logger, w, err)
		return
	}

	category, err := h.store.CreateCategory(r.Context(), req.Name)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			httpx.WriteError(h.logger, w, http.StatusConflict, "category already exists")
			return
		}
		httpx.WriteInternal(h.logger, w, "failed to create category", err)
		return
	}

	h.logger.Info("category created", "category_id", category.ID)
	httpx.WriteJSON(h.logger, w, http.StatusCreated, category)
}

func (h *Handler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context())
	if err != nil {
		httpx.WriteInternal(h.logger, w, "failed to list categories", err)
		return
	}
	httpx.WriteJSON(h.logger, w, http.StatusOK, categories)
}

func (h *Handler) HandleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDecodeError(h.logger, w, err)
		return
	}

	product := &domain.Product{
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
		CategoryID:    req.CategoryID,
		Images:        req.Images,
	}
	if err := h.store.CreateProduct(r.Context(), product); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			httpx.WriteError(h.logger, w, http.StatusBadRequest, "category does not exist")
			return
		}
		httpx.WriteInternal(h.logger, w, "failed to create product", err)
		return
	}

	h.logger.Info("product created", "product_id", product.ID, "category_id", product.CategoryID)
	httpx.WriteJSON(h.logger, w, http.StatusCreated, product)
}

func (h *Handler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	q, err := ParseListQuery(r.URL.Query())
	if err != nil {
		httpx.WriteError(h.logger, w, http.StatusBadRequest, err.Error())
		return
	}

	products, err := h.store.ListProducts(r.Context(), q)
	if err != nil {
		httpx.WriteInternal(h.logger, w, "failed to list products", err)
		return
	}
	httpx.WriteJSON(h.logger, w, http.StatusOK, products)
}
