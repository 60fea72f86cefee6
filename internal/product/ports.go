package product

import (
	"context"

	"storefront/internal/domain"
)

type SearchUseCase interface {
	SearchProducts(ctx context.Context, req SearchProductsRequest) (*SearchProductsResponse, error)
	Restock(ctx context.Context, productID int, req RestockRequest) (*ProductDTO, error)
}

type Service interface {
	Lookup(ctx context.Context, ids []int) (found []domain.Product, notFoundIDs []int, err error)
	Restock(ctx context.Context, productID int, quantity int) (*domain.Product, error)
}
