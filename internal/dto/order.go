package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	"storefront/internal/order/service"
)

type LineRequest struct {
	ProductID int `json:"productId"`
	Quantity  int `json:"quantity"`
}

type ReservationRequest struct {
	Lines []LineRequest `json:"lines"`
}

type ShippingRequest struct {
	DeliveryMode string `json:"deliveryMode"`
}

type GatewayPaymentRequest struct {
	ReturnURL string `json:"returnUrl"`
}

type LineResponse struct {
	ProductID int             `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type StatusResponse struct {
	Phase         string `json:"phase"`
	PaymentMethod string `json:"paymentMethod"`
	DeliveryMode  string `json:"deliveryMode"`
}

type OrderResponse struct {
	ID            int64           `json:"id"`
	CustomerID    string          `json:"customerId"`
	Status        StatusResponse  `json:"status"`
	IsReservation bool            `json:"isReservation"`
	Total         decimal.Decimal `json:"total"`
	TrackingCode  *string         `json:"trackingCode,omitempty"`
	Lines         []LineResponse  `json:"lines"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type NotificationResponse struct {
	ID         int64     `json:"id"`
	TargetRole string    `json:"targetRole"`
	OrderID    int64     `json:"orderId"`
	Category   string    `json:"category"`
	Message    string    `json:"message"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// OutcomeResponse answers every state-changing request.
type OutcomeResponse struct {
	TraceID      string                `json:"traceId"`
	Order        *OrderResponse        `json:"order,omitempty"`
	Notification *NotificationResponse `json:"notification,omitempty"`
	Replayed     bool                  `json:"replayed"`
	Warnings     []string              `json:"warnings,omitempty"`
	Timestamp    time.Time             `json:"timestamp"`
}

type PaymentRedirectResponse struct {
	TraceID   string         `json:"traceId"`
	Order     *OrderResponse `json:"order"`
	URL       string         `json:"url"`
	Token     string         `json:"token"`
	Timestamp time.Time      `json:"timestamp"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
}

type OrderDetailResponse struct {
	Order         OrderResponse          `json:"order"`
	Notifications []NotificationResponse `json:"notifications"`
}

func FromOrder(o *domain.Order) *OrderResponse {
	if o == nil {
		return nil
	}
	lines := make([]LineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, LineResponse{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal(),
		})
	}
	return &OrderResponse{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		Status: StatusResponse{
			Phase:         string(o.Status.Phase),
			PaymentMethod: string(o.Status.PaymentMethod),
			DeliveryMode:  string(o.Status.DeliveryMode),
		},
		IsReservation: o.IsReservation,
		Total:         o.Total,
		TrackingCode:  o.TrackingCode,
		Lines:         lines,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func FromOrders(orders []domain.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, *FromOrder(&orders[i]))
	}
	return out
}

func FromNotification(n *domain.Notification) *NotificationResponse {
	if n == nil {
		return nil
	}
	return &NotificationResponse{
		ID:         n.ID,
		TargetRole: string(n.TargetRole),
		OrderID:    n.OrderID,
		Category:   string(n.Category),
		Message:    n.Message,
		Status:     string(n.Status),
		CreatedAt:  n.CreatedAt,
	}
}

func FromNotifications(list []domain.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(list))
	for i := range list {
		out = append(out, *FromNotification(&list[i]))
	}
	return out
}

func FromOutcome(traceID string, o *service.Outcome) OutcomeResponse {
	return OutcomeResponse{
		TraceID:      traceID,
		Order:        FromOrder(o.Order),
		Notification: FromNotification(o.Notification),
		Replayed:     o.Replayed,
		Warnings:     o.Warnings,
		Timestamp:    time.Now().UTC(),
	}
}
