package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(w)

	subject := "alice"
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), models.AuditEvent{
		ID: "e-1", Subject: &subject, EventType: models.EventOTPVerifySuccess,
		Metadata: map[string]any{"purpose": "login"}, Success: true, CreatedAt: now,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("alice"), w.msgs[0].Key)

	var got Message
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "otp_verification_success", got.EventType)
	assert.Equal(t, "login", got.Metadata["purpose"])
	assert.True(t, got.Success)
	assert.True(t, got.CreatedAt.Equal(now))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := NewKafkaPublisherWithWriter(&fakeWriter{err: errors.New("broker down")})

	err := p.Publish(context.Background(), models.AuditEvent{ID: "e", EventType: models.EventUpload})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitBrokers(" a:9092, ,b:9092 "))
	assert.Nil(t, splitBrokers(""))
}

func TestNewKafkaPublisher(t *testing.T) {
	p := NewKafkaPublisher("localhost:9092", "audit")
	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "audit", w.Topic)
	assert.Equal(t, 10*time.Millisecond, w.BatchTimeout)
	assert.Equal(t, 2*time.Second, w.WriteTimeout)
	assert.Equal(t, 3, w.MaxAttempts)
}
