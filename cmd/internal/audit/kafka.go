package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"

	"libra/cmd/identity/ids"
	"libra/cmd/internal/auth/session"
)

const (
	kafkaMaxRetries     = 3
	kafkaInitialBackoff = 100 * time.Millisecond
	kafkaMaxBackoff     = 2 * time.Second
)

// ErrSinkClosed is returned by Record after Close.
var ErrSinkClosed = errors.New("audit: sink closed")

// kafkaRecord is the wire form published to the audit topic.
type kafkaRecord struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	PrincipalID int64          `json:"principal_id,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	Description string         `json:"description"`
	Meta        map[string]any `json:"meta,omitempty"`
	At          time.Time      `json:"at"`
}

// KafkaSink publishes each event as JSON to a topic, keyed by principal so
// one principal's events stay ordered within a partition.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
	log      *slog.Logger

	initialBackoff time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewKafkaSink connects a synchronous producer to brokers.
func NewKafkaSink(brokers []string, topic string, log *slog.Logger) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("audit: no kafka brokers")
	}

	cfg := sarama.NewConfig()
	cfg.ClientID = "libra-audit"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = kafkaMaxRetries
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("audit: kafka producer: %w", err)
	}

	sink, err := NewKafkaSinkWithProducer(producer, topic, log)
	if err != nil {
		_ = producer.Close()
		return nil, err
	}
	return sink, nil
}

// NewKafkaSinkWithProducer wraps an existing producer. The sink takes
// ownership: Close closes the producer.
func NewKafkaSinkWithProducer(producer sarama.SyncProducer, topic string, log *slog.Logger) (*KafkaSink, error) {
	if producer == nil {
		return nil, fmt.Errorf("audit: nil kafka producer")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("audit: empty kafka topic")
	}
	if log == nil {
		log = slog.Default()
	}
	return &KafkaSink{
		producer:       producer,
		topic:          topic,
		log:            log,
		initialBackoff: kafkaInitialBackoff,
	}, nil
}

// Record publishes ev, retrying transient failures until ctx is done.
func (s *KafkaSink) Record(ctx context.Context, ev session.AuditEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	id, err := ids.New(at)
	if err != nil {
		return err
	}

	data, err := json.Marshal(kafkaRecord{
		ID:          id,
		Kind:        ev.Kind,
		PrincipalID: ev.PrincipalID,
		SessionID:   ev.SessionID,
		Description: ev.Description,
		Meta:        ev.Meta,
		At:          at,
	})
	if err != nil {
		return fmt.Errorf("audit: marshal %s: %w", ev.Kind, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(ev.PrincipalID, 10)),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(ev.Kind)},
		},
		Timestamp: at,
	}

	op := func() error {
		_, _, err := s.producer.SendMessage(msg)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(s.initialBackoff),
				backoff.WithMaxInterval(kafkaMaxBackoff),
			),
			kafkaMaxRetries,
		),
		ctx,
	)

	err = backoff.RetryNotify(op, policy, func(err error, d time.Duration) {
		s.log.Debug("audit.kafka.retry", "kind", ev.Kind, "next_in", d.String(), "err", err)
	})
	if err != nil {
		return fmt.Errorf("audit: publish %s: %w", ev.Kind, err)
	}
	return nil
}

// Close flushes and closes the producer. It is safe to call more than once.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.producer.Close()
}
