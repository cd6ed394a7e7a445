// Package events publishes emission status transitions to Kafka.
//
// Each transition becomes one JSON message keyed by the access key, so every
// event of an invoice lands on the same partition and consumers see them in
// order.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/emission"
)

// ErrNoBrokers is returned when no broker address is configured
var ErrNoBrokers = errors.New("no kafka brokers configured")

// MessageWriter is the part of kafka.Writer the publisher uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds publisher settings
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	// Source is sent in the source header
	Source string
}

// Publisher implements emission.StatusSink on a Kafka topic
type Publisher struct {
	writer  MessageWriter
	topic   string
	source  string
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewPublisher creates a publisher backed by a kafka.Writer
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	return NewPublisherWithWriter(writer, cfg, logger), nil
}

// NewPublisherWithWriter wraps an existing writer
func NewPublisherWithWriter(w MessageWriter, cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Source == "" {
		cfg.Source = "nfe-emitter"
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Publisher{
		writer:  w,
		topic:   cfg.Topic,
		source:  cfg.Source,
		timeout: cfg.WriteTimeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Notify publishes one transition
func (p *Publisher) Notify(ctx context.Context, ev emission.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding status event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.AccessKey),
		Value: value,
		Time:  p.now(),
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "source", Value: []byte(p.source)},
			{Key: "company", Value: []byte(ev.CompanyID)},
			{Key: "status", Value: []byte(ev.To)},
		},
	}

	// The emission has already been persisted; publishing must not outlive
	// the write timeout even when the caller's context has no deadline
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish status event",
			"topic", p.topic,
			"access_key", ev.AccessKey,
			"status", ev.To,
			"error", err)
		return fmt.Errorf("publishing status event: %w", err)
	}
	p.logger.Debug("status event published", "topic", p.topic, "access_key", ev.AccessKey, "status", ev.To)
	return nil
}

// Close flushes pending messages
func (p *Publisher) Close() error {
	return p.writer.Close()
}
