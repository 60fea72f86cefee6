// Package payment adapts the external card gateway. Calls are made outside any
// database transaction and never mutate order state themselves.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// ResponseCodeApproved is the gateway's approval code. Anything else is a decline.
const ResponseCodeApproved = 0

type CreateRequest struct {
	BuyOrder  string
	SessionID string
	Amount    int64
	ReturnURL string
}

type CreateResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

type CommitResponse struct {
	BuyOrder          string
	SessionID         string
	Amount            int64
	Status            string
	ResponseCode      int
	AuthorizationCode string
}

func (r CommitResponse) Approved() bool {
	return r.ResponseCode == ResponseCodeApproved && (r.Status == "" || r.Status == "AUTHORIZED")
}

type Gateway interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResponse, error)
	Commit(ctx context.Context, token string) (*CommitResponse, error)
}

// MinorUnits converts an amount to the gateway's integer unit. CLP has exponent 0.
func MinorUnits(amount decimal.Decimal, exponent int32) int64 {
	return amount.Shift(exponent).Round(0).IntPart()
}
