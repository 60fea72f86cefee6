package product

import "github.com/shopspring/decimal"

type SearchProductsRequest struct {
	ProductIDs []int `json:"productIds"`
}

type SearchProductsResponse struct {
	Products []ProductDTO `json:"products"`
	NotFound []int        `json:"notFound"`
}

type RestockRequest struct {
	Quantity int `json:"quantity"`
}

type ProductDTO struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	HasStock    bool            `json:"hasStock"`
}
