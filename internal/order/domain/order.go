package domain

import (
	"bytes"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusPending  OrderStatus = "PENDING"
	StatusPaid     OrderStatus = "PAID"
	StatusCanceled OrderStatus = "CANCELED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s OrderStatus) Terminal() bool {
	return s == StatusPaid || s == StatusCanceled
}

// CanTransitionTo encodes the one-directional state machine:
// PENDING -> PAID and PENDING -> CANCELED.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return s == StatusPending && (next == StatusPaid || next == StatusCanceled)
}

type CancelReason string

const (
	ReasonCustomer      CancelReason = "customer"
	ReasonUnpaidTimeout CancelReason = "unpaid_timeout"
)

type Order struct {
	ID        uuid.UUID
	Status    OrderStatus
	Items     []OrderItem
	CreatedAt time.Time
	UpdatedAt time.Time
	PaidAt    *time.Time
	// Version is bumped by the store on every successful update; an update
	// carrying a stale Version is rejected.
	Version int
}

type OrderItem struct {
	ProductID uuid.UUID
	Quantity  int
}

// ValidateItems rejects empty requests, non-positive quantities and repeated
// products. It never touches storage.
func ValidateItems(items []OrderItem) error {
	if len(items) == 0 {
		return &validationError{cause: ErrEmptyOrder}
	}
	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return &validationError{cause: ErrInvalidQuantity, detail: fmt.Sprintf("product %s quantity %d", item.ProductID, item.Quantity)}
		}
		if _, ok := seen[item.ProductID]; ok {
			return &validationError{cause: ErrDuplicateLineItem, detail: "product " + item.ProductID.String()}
		}
		seen[item.ProductID] = struct{}{}
	}
	return nil
}

// NewOrder builds a PENDING order. CreatedAt and Version are assigned by the
// store when the order is persisted.
func NewOrder(items []OrderItem) (Order, error) {
	if err := ValidateItems(items); err != nil {
		return Order{}, err
	}
	return Order{
		ID:     uuid.New(),
		Status: StatusPending,
		Items:  append([]OrderItem(nil), items...),
	}, nil
}

func (o *Order) transition(next OrderStatus) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, o.Status, next)
	}
	o.Status = next
	return nil
}

func (o *Order) Cancel() error {
	return o.transition(StatusCanceled)
}

func (o *Order) MarkPaid(at time.Time) error {
	if err := o.transition(StatusPaid); err != nil {
		return err
	}
	paidAt := at.UTC()
	o.PaidAt = &paidAt
	return nil
}

// ItemsInLockOrder returns a copy of the items sorted by product ID. Every
// operation that adjusts stock for several products walks them in this order
// so concurrent transactions take product row locks in the same sequence.
// o.Items keeps the order the client placed them in.
func (o Order) ItemsInLockOrder() []OrderItem {
	items := slices.Clone(o.Items)
	slices.SortFunc(items, func(a, b OrderItem) int {
		return bytes.Compare(a.ProductID[:], b.ProductID[:])
	})
	return items
}

func (o Order) TotalQuantity() int {
	var n int
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

type ListFilter struct {
	Status *OrderStatus
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
