package domain

import "time"

type MessageKind string

const (
	MessagePaymentConfirmed     MessageKind = "PAYMENT_CONFIRMED"
	MessageReservationAvailable MessageKind = "RESERVATION_AVAILABLE"
	MessageDispatched           MessageKind = "DISPATCHED"
	MessageRefunded             MessageKind = "REFUNDED"
)

// CustomerMessage is an outbound notice to the order's customer.
type CustomerMessage struct {
	Kind         MessageKind
	OrderID      int64
	CustomerID   string
	TrackingCode string
	OccurredAt   time.Time
}
