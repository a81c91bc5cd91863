package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"libra/cmd/internal/auth/session"
)

func newTestKafkaSink(t *testing.T) (*KafkaSink, *mocks.SyncProducer) {
	t.Helper()

	producer := mocks.NewSyncProducer(t, nil)
	sink, err := NewKafkaSinkWithProducer(producer, "libra.audit", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	sink.initialBackoff = time.Millisecond
	return sink, producer
}

func TestKafkaSink_Record(t *testing.T) {
	sink, producer := newTestKafkaSink(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var rec kafkaRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		require.Len(t, rec.ID, 26)
		require.Equal(t, session.EventLogout, rec.Kind)
		require.EqualValues(t, 42, rec.PrincipalID)
		require.Equal(t, "sess-1", rec.SessionID)
		require.True(t, rec.At.Equal(at))
		return nil
	})

	err := sink.Record(context.Background(), session.AuditEvent{
		Kind:        session.EventLogout,
		PrincipalID: 42,
		SessionID:   "sess-1",
		Description: `user "alice" logged out`,
		At:          at,
	})
	require.NoError(t, err)
	require.NoError(t, sink.Close())
}

func TestKafkaSink_RetriesThenSucceeds(t *testing.T) {
	sink, producer := newTestKafkaSink(t)

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectSendMessageAndSucceed()

	err := sink.Record(context.Background(), session.AuditEvent{Kind: session.EventLogin, PrincipalID: 1})
	require.NoError(t, err)
	require.NoError(t, sink.Close())
}

func TestKafkaSink_GivesUpAfterMaxRetries(t *testing.T) {
	sink, producer := newTestKafkaSink(t)

	for i := 0; i <= kafkaMaxRetries; i++ {
		producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	}

	err := sink.Record(context.Background(), session.AuditEvent{Kind: session.EventLogin, PrincipalID: 1})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, sink.Close())
}

func TestKafkaSink_ClosedRejects(t *testing.T) {
	sink, _ := newTestKafkaSink(t)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	err := sink.Record(context.Background(), session.AuditEvent{Kind: session.EventLogin})
	require.ErrorIs(t, err, ErrSinkClosed)
}

func TestNewKafkaSinkWithProducer_Validation(t *testing.T) {
	_, err := NewKafkaSinkWithProducer(nil, "libra.audit", nil)
	require.Error(t, err)

	producer := mocks.NewSyncProducer(t, nil)
	_, err = NewKafkaSinkWithProducer(producer, "  ", nil)
	require.Error(t, err)
	require.NoError(t, producer.Close())

	_, err = NewKafkaSink(nil, "libra.audit", nil)
	require.Error(t, err)
}
