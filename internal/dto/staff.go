package dto

import (
	"storefront/internal/order/service"
	"storefront/internal/workflow"
)

type AdvanceRequest struct {
	Action       string `json:"action"`
	TrackingCode string `json:"trackingCode"`
	Message      string `json:"message"`
}

type RaiseExceptionRequest struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

type ResolveExceptionRequest struct {
	Outcome string `json:"outcome"`
}

type BoardResponse struct {
	Role          string                 `json:"role"`
	Orders        []OrderResponse        `json:"orders"`
	Notifications []NotificationResponse `json:"notifications"`
	Counters      service.Counters       `json:"counters"`
}

func FromBoard(role string, b *workflow.Board) BoardResponse {
	return BoardResponse{
		Role:          role,
		Orders:        FromOrders(b.Orders),
		Notifications: FromNotifications(b.Notifications),
		Counters:      b.Counters,
	}
}
