//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/audit"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/platform/kafka"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/testutil/containers"
)

// Justification: the Kafka mirror is a platform contract with downstream
// consumers; only a real broker proves topic creation, session-keyed
// records and the payload field names. The durable store path is covered
// by the publisher unit tests.
type KafkaSinkSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	producer *kafka.Producer
}

func TestKafkaSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redpanda = mgr.GetRedpanda(s.T())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	producer, err := kafka.NewProducer(s.redpanda.Brokers, logger)
	s.Require().NoError(err)
	s.producer = producer
	s.T().Cleanup(producer.Close)
}

func (s *KafkaSinkSuite) TestEnsureTopicIsIdempotent() {
	ctx := context.Background()
	topic := "kyc.audit.ensure." + uuid.NewString()

	s.Require().NoError(s.producer.EnsureTopic(ctx, topic, 1, 1))
	s.Require().NoError(s.producer.EnsureTopic(ctx, topic, 1, 1))
}

func (s *KafkaSinkSuite) TestPublisherMirrorsEventsToKafka() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "kyc.audit." + uuid.NewString()
	s.Require().NoError(s.producer.EnsureTopic(ctx, topic, 1, 1))

	trail := audit.NewPublisher(audit.NewMemoryStore(),
		audit.WithSink(audit.NewKafkaSink(s.producer, topic)))

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	go func() { _ = trail.Run(runCtx) }()

	sessionID := id.SessionID(uuid.New())
	userID := id.UserID(uuid.New())
	err := trail.Emit(ctx, audit.Event{
		SessionID:   sessionID,
		UserID:      userID,
		Action:      string(audit.EventSessionDecided),
		Decision:    "APPROVED",
		Reason:      "all_checks_passed",
		DeviceLabel: "Chrome on Windows",
	})
	s.Require().NoError(err)

	record := s.consumeOne(ctx, topic)
	s.Equal(sessionID.String(), string(record.Key), "records key by session for per-session ordering")

	var payload struct {
		ID        string `json:"id"`
		Category  string `json:"category"`
		Timestamp string `json:"timestamp"`
		SessionID string `json:"session_id"`
		UserID    string `json:"user_id"`
		Action    string `json:"action"`
		Decision  string `json:"decision"`
		Reason    string `json:"reason"`
	}
	s.Require().NoError(json.Unmarshal(record.Value, &payload))
	s.NotEmpty(payload.ID)
	s.Equal("compliance", payload.Category)
	s.Equal(sessionID.String(), payload.SessionID)
	s.Equal(userID.String(), payload.UserID)
	s.Equal("session_decided", payload.Action)
	s.Equal("APPROVED", payload.Decision)
	s.Equal("all_checks_passed", payload.Reason)

	ts, err := time.Parse(time.RFC3339Nano, payload.Timestamp)
	s.Require().NoError(err)
	s.WithinDuration(time.Now(), ts, time.Minute)
}

func (s *KafkaSinkSuite) consumeOne(ctx context.Context, topic string) *kgo.Record {
	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	for {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(ctx.Err(), "timed out waiting for the mirrored record")
		if errs := fetches.Errors(); len(errs) > 0 {
			s.Require().NoError(errs[0].Err)
		}
		if records := fetches.Records(); len(records) > 0 {
			return records[0]
		}
	}
}
