package service

import (
	"storefront/internal/domain"
	apperrors "storefront/internal/errors"
)

type Event string

const (
	EventChooseShipping           Event = "CHOOSE_SHIPPING"
	EventStartGatewayPayment      Event = "START_GATEWAY_PAYMENT"
	EventGatewayApproved          Event = "GATEWAY_APPROVED"
	EventSelectBankTransfer       Event = "SELECT_BANK_TRANSFER"
	EventConfirmTransfer          Event = "CONFIRM_TRANSFER"
	EventStartPreparation         Event = "START_PREPARATION"
	EventDispatch                 Event = "DISPATCH"
	EventReportShortage           Event = "REPORT_SHORTAGE"
	EventResolveShortage          Event = "RESOLVE_SHORTAGE"
	EventCancelShortage           Event = "CANCEL_SHORTAGE"
	EventMarkReservationAvailable Event = "MARK_RESERVATION_AVAILABLE"
)

// transitions is the complete table. A pair missing here is an invalid transition.
var transitions = map[domain.Phase]map[Event]domain.Phase{
	domain.PhaseAwaitingShipmentChoice: {
		EventChooseShipping: domain.PhaseAwaitingPayment,
	},
	domain.PhaseAwaitingPayment: {
		EventStartGatewayPayment: domain.PhaseAwaitingPayment,
		EventGatewayApproved:     domain.PhasePaid,
		EventSelectBankTransfer:  domain.PhasePaymentPendingReview,
	},
	domain.PhasePaymentPendingReview: {
		EventConfirmTransfer: domain.PhasePaid,
	},
	domain.PhasePaid: {
		EventStartPreparation: domain.PhaseInPreparation,
	},
	domain.PhaseInPreparation: {
		EventDispatch:       domain.PhaseDispatched,
		EventReportShortage: domain.PhaseShortageReported,
	},
	domain.PhaseShortageReported: {
		EventResolveShortage: domain.PhaseInPreparation,
		EventCancelShortage:  domain.PhaseRefunded,
	},
	domain.PhaseReservationRequested: {
		EventMarkReservationAvailable: domain.PhaseReservationAvailable,
	},
	domain.PhaseReservationAvailable: {
		EventChooseShipping:      domain.PhaseAwaitingPayment,
		EventStartGatewayPayment: domain.PhaseReservationAvailable,
		EventGatewayApproved:     domain.PhasePaid,
	},
}

// Next returns the phase event leads to from the order's current phase.
func Next(order *domain.Order, event Event) (domain.Phase, error) {
	next, ok := transitions[order.Status.Phase][event]
	if !ok {
		return "", apperrors.NewInvalidTransitionError(order.ID, string(order.Status.Phase), string(event))
	}
	return next, nil
}

// payable phases accept a gateway payment.
func payable(phase domain.Phase) bool {
	return phase == domain.PhaseAwaitingPayment || phase == domain.PhaseReservationAvailable
}

// settled phases are reached only after payment was taken.
func settled(phase domain.Phase) bool {
	switch phase {
	case domain.PhasePaid, domain.PhaseInPreparation, domain.PhaseShortageReported,
		domain.PhaseDispatched, domain.PhaseRefunded:
		return true
	}
	return false
}
