package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated  = "OrderCreated"
	EventOrderCanceled = "OrderCanceled"
	EventOrderPaid     = "OrderPaid"
)

type OrderCreated struct {
	OrderID uuid.UUID   `json:"order_id"`
	Items   []EventItem `json:"items"`
}

type OrderCanceled struct {
	OrderID uuid.UUID    `json:"order_id"`
	Reason  CancelReason `json:"reason"`
	Items   []EventItem  `json:"items"`
}

type OrderPaid struct {
	OrderID uuid.UUID `json:"order_id"`
	PaidAt  time.Time `json:"paid_at"`
}

type EventItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

func EventItems(items []OrderItem) []EventItem {
	out := make([]EventItem, 0, len(items))
	for _, item := range items {
		out = append(out, EventItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}
