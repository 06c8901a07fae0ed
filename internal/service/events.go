package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	EventImageGenerated = "image.generated"
	EventImageFailed    = "image.failed"
)

// Event describes the outcome of one generation.
type Event struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	SubjectID       uint      `json:"subject_id"`
	AttachmentID    uint      `json:"attachment_id,omitempty"`
	Style           string    `json:"style"`
	DurationSeconds float64   `json:"duration_seconds"`
	Error           string    `json:"error,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func NewEvent(eventType string, subjectID uint) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		SubjectID:  subjectID,
		OccurredAt: time.Now().UTC(),
	}
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON keyed by subject id, so events for
// one subject stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func eventMessage(event Event) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(event.SubjectID), 10)),
		Value: data,
		Time:  event.OccurredAt,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	msg, err := eventMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
