package memory

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"

	catalog "github.com/dmehra2102/stock-reservation/internal/catalog/domain"
	"github.com/dmehra2102/stock-reservation/internal/order/domain"
)

// Products exposes the catalog side of the store.
func (s *Store) Products() *Products { return &Products{s: s} }

type Products struct{ s *Store }

func (p *Products) Create(_ context.Context, product catalog.Product) (catalog.Product, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, exists := p.s.st.products[product.ID]; exists {
		return catalog.Product{}, errors.New("product with this ID already exists")
	}
	product.CreatedAt = p.s.now().UTC()
	p.s.st.products[product.ID] = productRow{Product: product}
	return product, nil
}

func (p *Products) FindProduct(_ context.Context, id uuid.UUID) (catalog.Product, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return p.s.findProduct(id)
}

func (p *Products) List(_ context.Context) ([]catalog.Product, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	out := make([]catalog.Product, 0, len(p.s.st.products))
	for _, row := range p.s.st.products {
		if !row.deleted {
			out = append(out, row.Product)
		}
	}
	slices.SortFunc(out, func(a, b catalog.Product) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return out, nil
}

func (p *Products) UpdateDetails(_ context.Context, product catalog.Product) (catalog.Product, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	row, ok := p.s.st.products[product.ID]
	if !ok || row.deleted {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	row.Name = product.Name
	row.Price = product.Price
	p.s.st.products[product.ID] = row
	return row.Product, nil
}

func (p *Products) Delete(_ context.Context, id uuid.UUID) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	row, ok := p.s.st.products[id]
	if !ok || row.deleted {
		return catalog.ErrProductNotFound
	}
	for _, o := range p.s.st.orders {
		if o.Status != domain.StatusPending {
			continue
		}
		for _, item := range o.Items {
			if item.ProductID == id {
				return catalog.ErrProductInUse
			}
		}
	}
	row.deleted = true
	p.s.st.products[id] = row
	return nil
}
