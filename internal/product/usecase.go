package product

import (
	"context"

	"storefront/internal/domain"
	apperrors "storefront/internal/errors"
)

const maxSearchIDs = 100

type searchUseCase struct {
	service Service
}

func NewSearchUseCase(service Service) SearchUseCase {
	return &searchUseCase{service: service}
}

func (uc *searchUseCase) SearchProducts(ctx context.Context, req SearchProductsRequest) (*SearchProductsResponse, error) {
	if err := validateSearchRequest(req); err != nil {
		return nil, err
	}

	found, notFoundIDs, err := uc.service.Lookup(ctx, req.ProductIDs)
	if err != nil {
		return nil, err
	}

	products := make([]ProductDTO, 0, len(found))
	for _, p := range found {
		products = append(products, toDTO(p))
	}

	if notFoundIDs == nil {
		notFoundIDs = []int{}
	}

	return &SearchProductsResponse{
		Products: products,
		NotFound: notFoundIDs,
	}, nil
}

func (uc *searchUseCase) Restock(ctx context.Context, productID int, req RestockRequest) (*ProductDTO, error) {
	if req.Quantity < 1 {
		return nil, apperrors.NewValidationError("invalid quantity", apperrors.ValidationDetail{
			Field:   "quantity",
			Message: "quantity must be at least 1",
		})
	}

	p, err := uc.service.Restock(ctx, productID, req.Quantity)
	if err != nil {
		return nil, err
	}

	out := toDTO(*p)
	return &out, nil
}

func toDTO(p domain.Product) ProductDTO {
	return ProductDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Category:    p.Category,
		HasStock:    p.Stock > 0,
	}
}

func validateSearchRequest(req SearchProductsRequest) error {
	if len(req.ProductIDs) == 0 {
		return apperrors.NewValidationError("productIds is required", apperrors.ValidationDetail{
			Field:   "productIds",
			Message: "productIds must not be empty",
		})
	}

	if len(req.ProductIDs) > maxSearchIDs {
		msg := "productIds exceeds maximum of 100"
		return apperrors.NewValidationError(msg, apperrors.ValidationDetail{
			Field:   "productIds",
			Message: msg,
		})
	}

	for _, id := range req.ProductIDs {
		if id <= 0 {
			msg := "each productId must be a positive integer"
			return apperrors.NewValidationError(msg, apperrors.ValidationDetail{
				Field:   "productIds",
				Message: msg,
			})
		}
	}

	return nil
}
