// Package outbound delivers customer messages outside the order transaction.
package outbound

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"storefront/internal/domain"
	apperrors "storefront/internal/errors"
)

const (
	producerName = "storefront"
	eventVersion = 1
)

// Envelope wraps every customer event published to Kafka.
type Envelope struct {
	EventID      string          `json:"eventId"`
	EventType    string          `json:"eventType"`
	EventVersion int             `json:"eventVersion"`
	OccurredAt   time.Time       `json:"occurredAt"`
	Producer     string          `json:"producer"`
	Payload      json.RawMessage `json:"payload"`
}

type customerPayload struct {
	OrderID      int64  `json:"orderId"`
	CustomerID   string `json:"customerId"`
	TrackingCode string `json:"trackingCode,omitempty"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes synchronously so a broker failure reaches the caller as a warning.
type KafkaNotifier struct {
	w       messageWriter
	timeout time.Duration
	logger  *zap.Logger
}

func NewKafkaNotifier(brokers []string, topic string, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

func newKafkaNotifierWithWriter(w messageWriter, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{w: w, timeout: 5 * time.Second, logger: logger}
}

func (n *KafkaNotifier) NotifyCustomer(ctx context.Context, msg domain.CustomerMessage) error {
	value, err := encode(msg)
	if err != nil {
		return apperrors.NewNotificationDeliveryError("kafka", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err = n.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(msg.OrderID, 10)),
		Value: value,
		Time:  msg.OccurredAt,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(msg.Kind)},
		},
	})
	if err != nil {
		return apperrors.NewNotificationDeliveryError("kafka", err)
	}

	n.logger.Debug("customer event published", zap.Int64("orderId", msg.OrderID), zap.String("kind", string(msg.Kind)))
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.w.Close()
}

func encode(msg domain.CustomerMessage) ([]byte, error) {
	payload, err := json.Marshal(customerPayload{
		OrderID:      msg.OrderID,
		CustomerID:   msg.CustomerID,
		TrackingCode: msg.TrackingCode,
	})
	if err != nil {
		return nil, err
	}
	occurred := msg.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return json.Marshal(Envelope{
		EventID:      uuid.NewString(),
		EventType:    string(msg.Kind),
		EventVersion: eventVersion,
		OccurredAt:   occurred,
		Producer:     producerName,
		Payload:      payload,
	})
}
