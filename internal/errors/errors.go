package errors

import (
	stderrors "errors"
	"fmt"
)

type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Message string
	Details []ValidationDetail
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(message string, details ...ValidationDetail) *ValidationError {
	return &ValidationError{
		Message: message,
		Details: details,
	}
}

func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if stderrors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{Message: message}
}

func IsNotFoundError(err error) (*NotFoundError, bool) {
	var nfe *NotFoundError
	if stderrors.As(err, &nfe) {
		return nfe, true
	}
	return nil, false
}

type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

func IsConflictError(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// AuthorizationError is returned when the actor lacks the role an operation requires.
type AuthorizationError struct {
	ActorID  string
	Required string
}

func (e *AuthorizationError) Error() string {
	if e.ActorID == "" {
		return fmt.Sprintf("role %s required", e.Required)
	}
	return fmt.Sprintf("actor %s lacks role %s", e.ActorID, e.Required)
}

func NewAuthorizationError(actorID, required string) *AuthorizationError {
	return &AuthorizationError{ActorID: actorID, Required: required}
}

func IsAuthorizationError(err error) (*AuthorizationError, bool) {
	var ae *AuthorizationError
	if stderrors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

type DeadlockError struct {
	Message string
	Cause   error
}

func (e *DeadlockError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *DeadlockError) Unwrap() error {
	return e.Cause
}

func NewDeadlockError(message string) *DeadlockError {
	return &DeadlockError{Message: message}
}

func WrapDeadlockError(cause error) *DeadlockError {
	return &DeadlockError{Message: "transaction deadlocked", Cause: cause}
}

func IsDeadlockError(err error) (*DeadlockError, bool) {
	var de *DeadlockError
	if stderrors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// StockInsufficientError reports the first product whose stock could not cover a line.
type StockInsufficientError struct {
	ProductID int
	Requested int
	Available int
}

func (e *StockInsufficientError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func NewStockInsufficientError(productID, requested, available int) *StockInsufficientError {
	return &StockInsufficientError{
		ProductID: productID,
		Requested: requested,
		Available: available,
	}
}

func IsStockInsufficientError(err error) (*StockInsufficientError, bool) {
	var se *StockInsufficientError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// InvalidTransitionError means no transition matches the order's current phase and the requested event.
type InvalidTransitionError struct {
	OrderID int64
	From    string
	Event   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %d: event %s is not allowed from phase %s", e.OrderID, e.Event, e.From)
}

func NewInvalidTransitionError(orderID int64, from, event string) *InvalidTransitionError {
	return &InvalidTransitionError{OrderID: orderID, From: from, Event: event}
}

func IsInvalidTransitionError(err error) (*InvalidTransitionError, bool) {
	var ite *InvalidTransitionError
	if stderrors.As(err, &ite) {
		return ite, true
	}
	return nil, false
}

type GatewayError struct {
	Op           string
	ResponseCode int
	Timeout      bool
	Cause        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("payment gateway %s timed out", e.Op)
	case e.Cause != nil:
		return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Cause)
	default:
		return fmt.Sprintf("payment gateway %s rejected with response code %d", e.Op, e.ResponseCode)
	}
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

func NewGatewayError(op string, cause error) *GatewayError {
	return &GatewayError{Op: op, Cause: cause}
}

func NewGatewayTimeoutError(op string, cause error) *GatewayError {
	return &GatewayError{Op: op, Timeout: true, Cause: cause}
}

func NewGatewayRejectedError(op string, responseCode int) *GatewayError {
	return &GatewayError{Op: op, ResponseCode: responseCode}
}

func IsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if stderrors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// NotificationDeliveryError wraps a failed outbound customer message. It never rolls back state.
type NotificationDeliveryError struct {
	Channel string
	Cause   error
}

func (e *NotificationDeliveryError) Error() string {
	return fmt.Sprintf("delivering notification via %s: %v", e.Channel, e.Cause)
}

func (e *NotificationDeliveryError) Unwrap() error {
	return e.Cause
}

func NewNotificationDeliveryError(channel string, cause error) *NotificationDeliveryError {
	return &NotificationDeliveryError{Channel: channel, Cause: cause}
}

func IsNotificationDeliveryError(err error) (*NotificationDeliveryError, bool) {
	var nde *NotificationDeliveryError
	if stderrors.As(err, &nde) {
		return nde, true
	}
	return nil, false
}

type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}

func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{
		Message: message,
		Cause:   cause,
	}
}
