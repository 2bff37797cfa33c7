// Package events fans audit events out to a message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/segmentio/kafka-go"
)

// Message is the wire form of an audit event on the topic.
type Message struct {
	ID            string         `json:"id"`
	Subject       *string        `json:"subject,omitempty"`
	EventType     string         `json:"event_type"`
	Description   string         `json:"description"`
	OriginAddress *string        `json:"origin_address,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Success       bool           `json:"success"`
	CreatedAt     time.Time      `json:"created_at"`
}

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer  MessageWriter
	timeout time.Duration
}

// NewKafkaPublisher writes to topic on the comma-separated brokers list.
func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(splitBrokers(brokers)...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           2 * time.Second,
		MaxAttempts:            3,
	}
	return NewKafkaPublisherWithWriter(writer)
}

func NewKafkaPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, timeout: 2 * time.Second}
}

// Publish keys messages by subject so one subject's events stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, e models.AuditEvent) error {
	value, err := json.Marshal(Message{
		ID:            e.ID,
		Subject:       e.Subject,
		EventType:     string(e.EventType),
		Description:   e.Description,
		OriginAddress: e.OriginAddress,
		Metadata:      e.Metadata,
		Success:       e.Success,
		CreatedAt:     e.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var key []byte
	if e.Subject != nil {
		key = []byte(*e.Subject)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value, Time: e.CreatedAt}); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
