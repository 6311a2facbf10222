package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmehra2102/stock-reservation/internal/order/domain"
	"github.com/dmehra2102/stock-reservation/internal/platform/httpapi"
)

type OrderService interface {
	CreateOrder(ctx context.Context, items []domain.OrderItem) (domain.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (domain.Order, error)
	PayOrder(ctx context.Context, id uuid.UUID) (domain.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error)
	ListOrders(ctx context.Context, f domain.ListFilter) ([]domain.Order, error)
}

type Handler struct {
	log     *slog.Logger
	service OrderService
	create  []func(http.Handler) http.Handler
}

// NewHandler builds the order routes. createMiddleware wraps only order
// creation, e.g. idempotency-key handling.
func NewHandler(log *slog.Logger, service OrderService, createMiddleware ...func(http.Handler) http.Handler) *Handler {
	return &Handler{
		log:     log,
		service: service,
		create:  createMiddleware,
	}
}

type itemDTO struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

type createOrderReq struct {
	Items []itemDTO `json:"items"`
}

type orderDTO struct {
	ID        uuid.UUID  `json:"id"`
	Status    string     `json:"status"`
	Items     []itemDTO  `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	Version   int        `json:"version"`
}

func toDTO(o domain.Order) orderDTO {
	items := make([]itemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, itemDTO{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return orderDTO{
		ID:        o.ID,
		Status:    string(o.Status),
		Items:     items,
		CreatedAt: o.CreatedAt,
		PaidAt:    o.PaidAt,
		Version:   o.Version,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.With(h.create...).Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{id}", h.getOrder)
	r.Post("/{id}/cancel", h.cancelOrder)
	r.Post("/{id}/pay", h.payOrder)

	return r
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.BadRequest(w, "invalid body")
		return
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	o, err := h.service.CreateOrder(r.Context(), items)
	if err != nil {
		h.respondErr(w, "create order failed", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, toDTO(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	var f domain.ListFilter
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		status := domain.OrderStatus(v)
		if !status.Valid() {
			httpapi.BadRequest(w, "unknown status")
			return
		}
		f.Status = &status
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		httpapi.BadRequest(w, "invalid limit")
		return
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		httpapi.BadRequest(w, "invalid offset")
		return
	}

	orders, err := h.service.ListOrders(r.Context(), f)
	if err != nil {
		h.respondErr(w, "list orders failed", err)
		return
	}
	out := make([]orderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, toDTO(o))
	}
	httpapi.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, "get order failed", h.service.GetOrder)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, "cancel order failed", h.service.CancelOrder)
}

func (h *Handler) payOrder(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, "pay order failed", h.service.PayOrder)
}

func (h *Handler) byID(w http.ResponseWriter, r *http.Request, msg string, op func(context.Context, uuid.UUID) (domain.Order, error)) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpapi.BadRequest(w, "invalid order id")
		return
	}
	o, err := op(r.Context(), id)
	if err != nil {
		h.respondErr(w, msg, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toDTO(o))
}

func (h *Handler) respondErr(w http.ResponseWriter, msg string, err error) {
	if status, _ := httpapi.StatusFor(err); status >= http.StatusInternalServerError {
		h.log.Error(msg, "err", err)
	} else {
		h.log.Debug(msg, "err", err)
	}
	httpapi.WriteError(w, err)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
