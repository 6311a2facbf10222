package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/stock-reservation/internal/catalog/domain"
	"github.com/dmehra2102/stock-reservation/internal/platform/httpapi"
)

type CatalogService interface {
	Create(ctx context.Context, name string, price decimal.Decimal, stock int) (domain.Product, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
	Update(ctx context.Context, id uuid.UUID, d domain.Details) (domain.Product, error)
	Restock(ctx context.Context, id uuid.UUID, quantity int) (domain.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Handler struct {
	log     *slog.Logger
	service CatalogService
}

func NewHandler(log *slog.Logger, service CatalogService) *Handler {
	return &Handler{log: log, service: service}
}

type productDTO struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	StockAmount int             `json:"stock_amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toDTO(p domain.Product) productDTO {
	return productDTO{ID: p.ID, Name: p.Name, Price: p.Price, StockAmount: p.StockAmount, CreatedAt: p.CreatedAt}
}

type createProductReq struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	StockAmount int             `json:"stock_amount"`
}

type updateProductReq struct {
	Name  *string          `json:"name"`
	Price *decimal.Decimal `json:"price"`
}

type restockReq struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Patch("/", h.update)
		r.Post("/restock", h.restock)
		r.Delete("/", h.delete)
	})
	return r
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.BadRequest(w, "invalid body")
		return
	}
	p, err := h.service.Create(r.Context(), req.Name, req.Price, req.StockAmount)
	if err != nil {
		h.fail(w, "create product failed", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, toDTO(p))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list products failed", err)
		return
	}
	out := make([]productDTO, 0, len(products))
	for _, p := range products {
		out = append(out, toDTO(p))
	}
	httpapi.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get product failed", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toDTO(p))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	var req updateProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.BadRequest(w, "invalid body")
		return
	}
	p, err := h.service.Update(r.Context(), id, domain.Details{Name: req.Name, Price: req.Price})
	if err != nil {
		h.fail(w, "update product failed", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toDTO(p))
}

func (h *Handler) restock(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	var req restockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.BadRequest(w, "invalid body")
		return
	}
	p, err := h.service.Restock(r.Context(), id, req.Quantity)
	if err != nil {
		h.fail(w, "restock product failed", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toDTO(p))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete product failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if status, _ := httpapi.StatusFor(err); status >= http.StatusInternalServerError {
		h.log.Error(msg, "err", err)
	}
	httpapi.WriteError(w, err)
}

func productID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpapi.BadRequest(w, "invalid product id")
		return uuid.Nil, false
	}
	return id, true
}
