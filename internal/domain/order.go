package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type Phase string

const (
	PhaseAwaitingShipmentChoice Phase = "AWAITING_SHIPMENT_CHOICE"
	PhaseAwaitingPayment        Phase = "AWAITING_PAYMENT"
	PhasePaymentPendingReview   Phase = "PAYMENT_PENDING_REVIEW"
	PhasePaid                   Phase = "PAID"
	PhaseInPreparation          Phase = "IN_PREPARATION"
	PhaseShortageReported       Phase = "SHORTAGE_REPORTED"
	PhaseDispatched             Phase = "DISPATCHED"
	PhaseRefunded               Phase = "REFUNDED"
	PhaseReservationRequested   Phase = "RESERVATION_REQUESTED"
	PhaseReservationAvailable   Phase = "RESERVATION_AVAILABLE"
)

var phases = map[Phase]struct{}{
	PhaseAwaitingShipmentChoice: {},
	PhaseAwaitingPayment:        {},
	PhasePaymentPendingReview:   {},
	PhasePaid:                   {},
	PhaseInPreparation:          {},
	PhaseShortageReported:       {},
	PhaseDispatched:             {},
	PhaseRefunded:               {},
	PhaseReservationRequested:   {},
	PhaseReservationAvailable:   {},
}

func (p Phase) Valid() bool {
	_, ok := phases[p]
	return ok
}

// Terminal phases admit no further transition.
func (p Phase) Terminal() bool {
	return p == PhaseDispatched || p == PhaseRefunded
}

type PaymentMethod string

const (
	PaymentMethodUnset         PaymentMethod = "UNSET"
	PaymentMethodOnlineGateway PaymentMethod = "ONLINE_GATEWAY"
	PaymentMethodBankTransfer  PaymentMethod = "BANK_TRANSFER"
)

type DeliveryMode string

const (
	DeliveryModePickup   DeliveryMode = "PICKUP"
	DeliveryModeDelivery DeliveryMode = "DELIVERY"
)

func (m DeliveryMode) Valid() bool {
	return m == DeliveryModePickup || m == DeliveryModeDelivery
}

// Status is the order's tagged state. Each dimension is stored and compared on its own.
type Status struct {
	Phase         Phase
	PaymentMethod PaymentMethod
	DeliveryMode  DeliveryMode
}

type OrderLine struct {
	ID        int64
	OrderID   int64
	ProductID int
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID             int64
	CustomerID     string
	Status         Status
	IsReservation  bool
	StockCommitted bool
	Total          decimal.Decimal
	TrackingCode   *string
	GatewayToken   *string
	Lines          []OrderLine
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (o *Order) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Recalculate sets Total from the lines, the delivery mode and the shipping policy.
func (o *Order) Recalculate(policy ShippingPolicy) {
	subtotal := o.Subtotal()
	o.Total = subtotal.Add(policy.FeeFor(o.Status.DeliveryMode, subtotal))
}

// SortedLines returns a copy of the lines ordered by product id.
func (o *Order) SortedLines() []OrderLine {
	lines := make([]OrderLine, len(o.Lines))
	copy(lines, o.Lines)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines
}

func (o *Order) Clone() *Order {
	c := *o
	c.Lines = make([]OrderLine, len(o.Lines))
	copy(c.Lines, o.Lines)
	if o.TrackingCode != nil {
		tc := *o.TrackingCode
		c.TrackingCode = &tc
	}
	if o.GatewayToken != nil {
		gt := *o.GatewayToken
		c.GatewayToken = &gt
	}
	return &c
}

// ShippingPolicy prices delivery. Pickup is always free.
type ShippingPolicy struct {
	Fee                   decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

func (p ShippingPolicy) FeeFor(mode DeliveryMode, subtotal decimal.Decimal) decimal.Decimal {
	if mode != DeliveryModeDelivery {
		return decimal.Zero
	}
	if subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		return decimal.Zero
	}
	return p.Fee
}
