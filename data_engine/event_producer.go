package data_engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"codeguardian/internal/logging"
)

const eventSource = "codeguardian"

// Event is the record written to Kafka for every service event.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	SessionID string                 `json:"session_id,omitempty"`
}

// messageWriter is the subset of kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventProducer publishes service events to a Kafka topic.
type EventProducer struct {
	mu     sync.RWMutex
	writer messageWriter
	config EventProducerConfig
}

// EventProducerConfig contains configuration for the event producer
type EventProducerConfig struct {
	KafkaBrokers []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	Async        bool
}

// NewEventProducer creates a producer. Connect must be called before use.
func NewEventProducer(config EventProducerConfig) *EventProducer {
	if len(config.KafkaBrokers) == 0 {
		config.KafkaBrokers = []string{"localhost:9092"}
	}
	if config.Topic == "" {
		config.Topic = "codeguardian-events"
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.BatchTimeout == 0 {
		config.BatchTimeout = 1 * time.Second
	}

	return &EventProducer{config: config}
}

// Connect creates the Kafka writer. With Async set, broker problems surface
// in the writer's completion log instead of on the request path.
func (p *EventProducer) Connect() {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(p.config.KafkaBrokers...),
		Topic:        p.config.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    p.config.BatchSize,
		BatchTimeout: p.config.BatchTimeout,
		Async:        p.config.Async,
		RequiredAcks: kafka.RequireOne,
	}
	if p.config.Async {
		writer.Completion = func(messages []kafka.Message, err error) {
			if err != nil {
				logging.L_warn("⚠️  Kafka delivery failed", "messages", len(messages), "error", err)
			}
		}
	}

	p.mu.Lock()
	p.writer = writer
	p.mu.Unlock()
	logging.L_info("✅ Kafka event producer ready", "brokers", p.config.KafkaBrokers, "topic", p.config.Topic)
}

// PublishEvent writes one service event.
func (p *EventProducer) PublishEvent(ctx context.Context, eventType string, data map[string]interface{}) error {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    eventSource,
		Data:      data,
	}
	if sid, ok := data["session_id"].(string); ok {
		event.SessionID = sid
	}
	return p.ProduceEvent(ctx, event)
}

// ProduceEvent sends an event to Kafka
func (p *EventProducer) ProduceEvent(ctx context.Context, event Event) error {
	p.mu.RLock()
	writer := p.writer
	p.mu.RUnlock()
	if writer == nil {
		return fmt.Errorf("event producer not connected")
	}

	message, err := buildMessage(event)
	if err != nil {
		return err
	}
	if err := writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	return nil
}

func buildMessage(event Event) (kafka.Message, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Source == "" {
		event.Source = eventSource
	}

	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	key := event.Type
	if event.SessionID != "" {
		key = event.SessionID
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "source", Value: []byte(event.Source)},
			{Key: "type", Value: []byte(event.Type)},
		},
	}, nil
}

// Close flushes and closes the writer.
func (p *EventProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer == nil {
		return nil
	}
	err := p.writer.Close()
	p.writer = nil
	return err
}

// IsConnected reports whether Connect has been called and Close has not.
func (p *EventProducer) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.writer != nil
}
