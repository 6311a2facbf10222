package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidProduct  = errors.New("invalid product")
	ErrProductInUse    = errors.New("product is referenced by pending orders")
)

type Product struct {
	ID          uuid.UUID
	Name        string
	Price       decimal.Decimal
	StockAmount int
	CreatedAt   time.Time
}

// NewProduct validates the catalog fields. StockAmount is the opening stock;
// afterwards it only moves through the stock ledger.
func NewProduct(name string, price decimal.Decimal, stock int) (Product, error) {
	p := Product{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(name),
		Price:       price,
		StockAmount: stock,
	}
	if err := p.validate(); err != nil {
		return Product{}, err
	}
	return p, nil
}

func (p Product) validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price must be >= 0", ErrInvalidProduct)
	}
	if p.StockAmount < 0 {
		return fmt.Errorf("%w: stock amount must be >= 0", ErrInvalidProduct)
	}
	return nil
}

// Details is the mutable catalog part of a product.
type Details struct {
	Name  *string
	Price *decimal.Decimal
}

func (p Product) WithDetails(d Details) (Product, error) {
	if d.Name != nil {
		p.Name = strings.TrimSpace(*d.Name)
	}
	if d.Price != nil {
		p.Price = *d.Price
	}
	if err := p.validate(); err != nil {
		return Product{}, err
	}
	return p, nil
}
