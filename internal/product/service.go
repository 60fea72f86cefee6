package product

import (
	"context"

	"storefront/internal/domain"
	"storefront/internal/inventory"
	"storefront/internal/storage"
)

type productService struct {
	tx     storage.TxManager
	ledger *inventory.Ledger
}

func NewService(tx storage.TxManager, ledger *inventory.Ledger) Service {
	return &productService{tx: tx, ledger: ledger}
}

func (s *productService) Lookup(ctx context.Context, ids []int) ([]domain.Product, []int, error) {
	found, err := s.tx.Reader().Products().FindByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	foundSet := make(map[int]struct{}, len(found))
	for _, p := range found {
		foundSet[p.ID] = struct{}{}
	}

	var notFoundIDs []int
	for _, id := range ids {
		if _, ok := foundSet[id]; !ok {
			notFoundIDs = append(notFoundIDs, id)
		}
	}

	return found, notFoundIDs, nil
}

// Restock adds units in a transaction of its own.
func (s *productService) Restock(ctx context.Context, productID int, quantity int) (*domain.Product, error) {
	var restocked *domain.Product
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		p, err := s.ledger.Restock(ctx, tx.Products(), productID, quantity)
		restocked = p
		return err
	})
	if err != nil {
		return nil, err
	}
	return restocked, nil
}
