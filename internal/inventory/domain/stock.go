package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrInsufficientStock = errors.New("insufficient stock")

// InsufficientStockError names the product whose adjustment would have driven
// the available quantity below zero.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Delta     int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (delta %d)", e.ProductID, e.Delta)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Adjustment is one signed change applied to a product's available quantity.
type Adjustment struct {
	ProductID uuid.UUID
	Delta     int
}

func Reserve(productID uuid.UUID, quantity int) Adjustment {
	return Adjustment{ProductID: productID, Delta: -quantity}
}

func Release(productID uuid.UUID, quantity int) Adjustment {
	return Adjustment{ProductID: productID, Delta: quantity}
}
