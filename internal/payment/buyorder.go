package payment

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	apperrors "storefront/internal/errors"
)

const (
	buyOrderPrefix  = "P"
	sessionIDPrefix = "S"
	// The gateway caps buy orders and session ids at 26 and 61 characters.
	maxBuyOrderLen  = 26
	maxSessionIDLen = 61
)

func newNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewBuyOrder encodes the order id with a nonce: P-<orderId>-<nonce>. The nonce is the
// base-36 unix time followed by random hex, cut to the gateway's length limit.
func NewBuyOrder(orderID int64, now time.Time) string {
	head := fmt.Sprintf("%s-%d-", buyOrderPrefix, orderID)
	nonce := strconv.FormatInt(now.Unix(), 36) + newNonce()
	if room := maxBuyOrderLen - len(head); len(nonce) > room {
		nonce = nonce[:room]
	}
	return head + nonce
}

// ParseBuyOrder recovers the order id from a token built by NewBuyOrder.
func ParseBuyOrder(buyOrder string) (int64, error) {
	invalid := func(msg string) error {
		return apperrors.NewValidationError("invalid buy order", apperrors.ValidationDetail{
			Field:   "buyOrder",
			Message: msg,
		})
	}

	if len(buyOrder) == 0 || len(buyOrder) > maxBuyOrderLen {
		return 0, invalid("buy order length out of range")
	}

	parts := strings.Split(buyOrder, "-")
	if len(parts) != 3 || parts[0] != buyOrderPrefix || parts[2] == "" {
		return 0, invalid("buy order must look like P-<orderId>-<nonce>")
	}

	orderID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || orderID <= 0 {
		return 0, invalid("buy order carries no valid order id")
	}

	return orderID, nil
}

// NewSessionID builds S-<customer>-<unix>, truncating the customer part to fit.
func NewSessionID(customerID string, now time.Time) string {
	suffix := fmt.Sprintf("-%d", now.Unix())
	room := maxSessionIDLen - len(sessionIDPrefix) - 1 - len(suffix)
	if len(customerID) > room {
		cut := room
		for cut > 0 && !utf8.RuneStart(customerID[cut]) {
			cut--
		}
		customerID = customerID[:cut]
	}
	return sessionIDPrefix + "-" + customerID + suffix
}
