package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/stock-reservation/internal/catalog/domain"
)

type Service struct {
	log    *slog.Logger
	repo   ProductRepository
	ledger StockLedger
}

func NewService(log *slog.Logger, repo ProductRepository, ledger StockLedger) *Service {
	return &Service{log: log, repo: repo, ledger: ledger}
}

func (s *Service) Create(ctx context.Context, name string, price decimal.Decimal, stock int) (domain.Product, error) {
	p, err := domain.NewProduct(name, price, stock)
	if err != nil {
		return domain.Product{}, err
	}
	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	s.log.Info("product created", "product_id", created.ID, "stock", created.StockAmount)
	return created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Product, error) {
	return s.repo.FindProduct(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]domain.Product, error) {
	return s.repo.List(ctx)
}

// Update changes name and price only; stock is owned by the ledger.
func (s *Service) Update(ctx context.Context, id uuid.UUID, d domain.Details) (domain.Product, error) {
	p, err := s.repo.FindProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	p, err = p.WithDetails(d)
	if err != nil {
		return domain.Product{}, err
	}
	return s.repo.UpdateDetails(ctx, p)
}

func (s *Service) Restock(ctx context.Context, id uuid.UUID, quantity int) (domain.Product, error) {
	if quantity <= 0 {
		return domain.Product{}, fmt.Errorf("%w: restock quantity must be > 0", domain.ErrInvalidProduct)
	}
	if _, err := s.repo.FindProduct(ctx, id); err != nil {
		return domain.Product{}, err
	}
	stock, err := s.ledger.Adjust(ctx, id, quantity)
	if err != nil {
		return domain.Product{}, fmt.Errorf("restock product %s: %w", id, err)
	}
	s.log.Info("product restocked", "product_id", id, "added", quantity, "stock", stock)
	return s.repo.FindProduct(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	s.log.Info("product deleted", "product_id", id)
	return nil
}
