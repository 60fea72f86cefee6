// Package cart keeps a per-session basket until checkout turns it into an order.
package cart

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

type Line struct {
	ProductID int `json:"productId"`
	Quantity  int `json:"quantity"`
}

// Cart is owned by one session. It is never shared across sessions.
type Cart struct {
	Lines []Line `json:"lines"`
}

func (c *Cart) quantityOf(productID int) int {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l.Quantity
		}
	}
	return 0
}

// set replaces the line quantity; zero removes the line.
func (c *Cart) set(productID, quantity int) {
	out := c.Lines[:0]
	for _, l := range c.Lines {
		if l.ProductID != productID {
			out = append(out, l)
		}
	}
	if quantity > 0 {
		out = append(out, Line{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	c.Lines = out
}

// Store persists carts by session id. Load returns an empty cart for unknown sessions.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Cart, error)
	Save(ctx context.Context, sessionID string, cart *Cart) error
	Delete(ctx context.Context, sessionID string) error
}

// ViewLine is a cart line priced at the current catalog price.
type ViewLine struct {
	ProductID int
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

type View struct {
	Lines    []ViewLine
	Subtotal decimal.Decimal
}
