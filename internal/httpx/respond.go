// Package httpx holds the JSON response helpers shared by every controller.
package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/dto"
	apperrors "storefront/internal/errors"
)

// TraceID reuses the request id set by the router middleware, or mints one.
func TraceID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return uuid.New().String()
}

type Responder struct {
	logger *zap.Logger
}

func NewResponder(logger *zap.Logger) *Responder {
	return &Responder{logger: logger}
}

func (rs *Responder) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		rs.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (rs *Responder) WriteErrorResponse(w http.ResponseWriter, traceID string, status int, code, message string, details ...apperrors.ValidationDetail) {
	rs.WriteJSON(w, status, dto.ErrorResponse{
		TraceID:   traceID,
		Status:    status,
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
	})
}

func (rs *Responder) WriteValidationError(w http.ResponseWriter, traceID string, message string, details ...apperrors.ValidationDetail) {
	rs.WriteErrorResponse(w, traceID, http.StatusBadRequest, "VALIDATION_ERROR", message, details...)
}

// HandleError maps typed errors to status codes. Unknown errors are logged and hidden.
func (rs *Responder) HandleError(w http.ResponseWriter, traceID string, err error, logger *zap.Logger) {
	if ve, ok := apperrors.IsValidationError(err); ok {
		rs.WriteValidationError(w, traceID, ve.Message, ve.Details...)
		return
	}

	if _, ok := apperrors.IsAuthorizationError(err); ok {
		rs.WriteErrorResponse(w, traceID, http.StatusForbidden, "FORBIDDEN", err.Error())
		return
	}

	if _, ok := apperrors.IsNotFoundError(err); ok {
		rs.WriteErrorResponse(w, traceID, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}

	if _, ok := apperrors.IsStockInsufficientError(err); ok {
		rs.WriteErrorResponse(w, traceID, http.StatusConflict, "STOCK_INSUFFICIENT", err.Error())
		return
	}

	if _, ok := apperrors.IsInvalidTransitionError(err); ok {
		rs.WriteErrorResponse(w, traceID, http.StatusConflict, "INVALID_TRANSITION", err.Error())
		return
	}

	if _, ok := apperrors.IsConflictError(err); ok {
		rs.WriteErrorResponse(w, traceID, http.StatusConflict, "CONFLICT", err.Error())
		return
	}

	if _, ok := apperrors.IsDeadlockError(err); ok {
		rs.WriteErrorResponse(w, traceID, http.StatusConflict, "DEADLOCK", "the request collided with another one, retry it")
		return
	}

	if ge, ok := apperrors.IsGatewayError(err); ok {
		logger.Warn("payment gateway error", zap.Error(err))
		if ge.Timeout {
			rs.WriteErrorResponse(w, traceID, http.StatusGatewayTimeout, "GATEWAY_TIMEOUT", err.Error())
			return
		}
		rs.WriteErrorResponse(w, traceID, http.StatusBadGateway, "GATEWAY_ERROR", err.Error())
		return
	}

	logger.Error("unexpected error", zap.Error(err))
	rs.WriteErrorResponse(w, traceID, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred")
}

// Int64Param parses a positive path parameter.
func Int64Param(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, apperrors.NewValidationError("invalid "+name, apperrors.ValidationDetail{
			Field:   name,
			Message: name + " must be a positive integer",
		})
	}
	return v, nil
}

// DecodeJSON reads the body into dst. An empty body leaves dst untouched.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.NewValidationError("invalid JSON body", apperrors.ValidationDetail{
			Field:   "body",
			Message: "request body must be valid JSON",
		})
	}
	return nil
}
