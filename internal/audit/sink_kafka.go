package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/platform/kafka"
)

// DefaultTopic is where audit events land unless configuration overrides it.
const DefaultTopic = "creditxpress.kyc.audit"

// KafkaSink publishes audit events to the platform bus. Records are keyed
// by session so per-session ordering survives partitioning.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaSink(producer *kafka.Producer, topic string) *KafkaSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaSink{producer: producer, topic: topic}
}

// kafkaPayload is the JSON structure on the wire. Field names are part of
// the platform contract; downstream consumers deserialize by name.
type kafkaPayload struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Timestamp   string `json:"timestamp"`
	SessionID   string `json:"session_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Action      string `json:"action"`
	Decision    string `json:"decision,omitempty"`
	Reason      string `json:"reason,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	ClientIP    string `json:"client_ip,omitempty"`
	DeviceLabel string `json:"device_label,omitempty"`
}

func (s *KafkaSink) Publish(ctx context.Context, event Event) error {
	payload := kafkaPayload{
		ID:          uuid.NewString(),
		Category:    string(event.Category),
		Timestamp:   event.Timestamp.Format(time.RFC3339Nano),
		Action:      event.Action,
		Decision:    event.Decision,
		Reason:      event.Reason,
		RequestID:   event.RequestID,
		ClientIP:    event.ClientIP,
		DeviceLabel: event.DeviceLabel,
	}
	if !event.SessionID.IsNil() {
		payload.SessionID = event.SessionID.String()
	}
	if !event.UserID.IsNil() {
		payload.UserID = event.UserID.String()
	}

	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	key := []byte(payload.SessionID)
	if len(key) == 0 {
		key = []byte(payload.ID)
	}
	return s.producer.Publish(ctx, s.topic, key, value)
}
