package dto

import (
	"github.com/shopspring/decimal"

	"storefront/internal/cart"
)

type CartItemRequest struct {
	ProductID int `json:"productId"`
	Quantity  int `json:"quantity"`
}

type CheckoutRequest struct {
	Reservation bool `json:"reservation"`
}

type CartLineResponse struct {
	ProductID int             `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type CartResponse struct {
	Lines    []CartLineResponse `json:"lines"`
	Subtotal decimal.Decimal    `json:"subtotal"`
}

func FromCart(v *cart.View) CartResponse {
	lines := make([]CartLineResponse, 0, len(v.Lines))
	for _, l := range v.Lines {
		lines = append(lines, CartLineResponse{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal,
		})
	}
	return CartResponse{Lines: lines, Subtotal: v.Subtotal}
}
