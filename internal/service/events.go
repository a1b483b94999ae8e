package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comunidad-service/internal/client"
	"comunidad-service/internal/util"
)

// Kafka topics for domain events.
const (
	TopicOTPEvents     = "comunidad.otp"
	TopicAccountEvents = "comunidad.accounts"
)

// Event types.
const (
	EventOTPIssued          = "otp.issued"
	EventOTPVerified        = "otp.verified"
	EventPobladorRegistered = "poblador.registered"
	EventEmpresaRegistered  = "empresa.registered"
	EventEmpresaApproved    = "empresa.approved"
	EventEmpresaRejected    = "empresa.rejected"
)

// EventPublisher emits domain events to Kafka. Publishing is best effort: a
// nil publisher or a broker failure never fails the request that produced
// the event.
type EventPublisher struct {
	producer *client.KafkaProducer
}

func NewEventPublisher(producer *client.KafkaProducer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// Publish serializes and sends one event keyed by the given partition key.
func (p *EventPublisher) Publish(ctx context.Context, topic, eventType, key string, payload map[string]interface{}) {
	if p == nil || p.producer == nil {
		return
	}

	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["event_id"] = uuid.New().String()
	payload["event_type"] = eventType
	payload["emitted_at"] = time.Now().UTC().Format(time.RFC3339)

	value, err := json.Marshal(payload)
	if err != nil {
		util.Warn("Failed to marshal event payload",
			zap.String("event_type", eventType),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	headers := map[string]string{"event_type": eventType}
	if err := p.producer.ProduceMessage(ctx, topic, []byte(key), value, headers); err != nil {
		util.Warn("Failed to publish event",
			zap.String("topic", topic),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
