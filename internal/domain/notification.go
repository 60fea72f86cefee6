package domain

import "time"

type Category string

const (
	CategoryShortageAlert         Category = "SHORTAGE_ALERT"
	CategoryTransferPendingReview Category = "TRANSFER_PENDING_REVIEW"
	CategoryReservationRequest    Category = "RESERVATION_REQUEST"
	CategoryReservationAvailable  Category = "RESERVATION_AVAILABLE"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryShortageAlert, CategoryTransferPendingReview, CategoryReservationRequest, CategoryReservationAvailable:
		return true
	}
	return false
}

type NotificationStatus string

const (
	NotificationOpen                  NotificationStatus = "OPEN"
	NotificationAwaitingCustomerReply NotificationStatus = "AWAITING_CUSTOMER_REPLY"
	NotificationResolved              NotificationStatus = "RESOLVED"
	NotificationCancelled             NotificationStatus = "CANCELLED"
)

// Active statuses count toward the one-per-(order, category) rule.
func (s NotificationStatus) Active() bool {
	return s == NotificationOpen || s == NotificationAwaitingCustomerReply
}

type Notification struct {
	ID         int64
	TargetRole Role
	OrderID    int64
	Category   Category
	Message    string
	Status     NotificationStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
