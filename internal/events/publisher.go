// Package events publishes executor outcomes to Kafka so downstream services
// can follow what the portfolio manager did.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dyike/SchwabAI/internal/models"
	"github.com/segmentio/kafka-go"
)

const DefaultTopic = "trade-events"

const (
	EventTradeSimulated = "TRADE_SIMULATED"
	EventTradeCompleted = "TRADE_COMPLETED"
	EventTradeFailed    = "TRADE_FAILED"
	EventTradeRejected  = "TRADE_REJECTED"
)

// TradeEvent is the JSON payload written for every trade result.
type TradeEvent struct {
	EventType string             `json:"event_type"`
	RunID     string             `json:"run_id,omitempty"`
	Symbol    string             `json:"symbol"`
	Trade     models.TradeResult `json:"trade"`
	Timestamp time.Time          `json:"timestamp"`
}

// EventType maps a trade status to its event name.
func EventType(status models.TradeStatus) string {
	switch status {
	case models.TradeSimulated:
		return EventTradeSimulated
	case models.TradeCompleted:
		return EventTradeCompleted
	case models.TradeFailed:
		return EventTradeFailed
	default:
		return EventTradeRejected
	}
}

type Publisher interface {
	PublishTrade(ctx context.Context, runID string, res models.TradeResult) error
	Close() error
}

// New returns a Kafka publisher, or Nop when no brokers are configured.
func New(brokers []string, topic string) Publisher {
	var addrs []string
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	if len(addrs) == 0 {
		return Nop{}
	}
	return NewKafkaPublisher(addrs, topic)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per trade, keyed by symbol so events
// for a symbol stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaPublisher{writer: writer, topic: topic, now: time.Now}
}

func (p *KafkaPublisher) Topic() string { return p.topic }

func (p *KafkaPublisher) PublishTrade(ctx context.Context, runID string, res models.TradeResult) error {
	if res.Err != nil && res.Error == "" {
		res.Error = res.Err.Error()
	}
	event := TradeEvent{
		EventType: EventType(res.Status),
		RunID:     runID,
		Symbol:    res.Recommendation.Symbol,
		Trade:     res,
		Timestamp: p.now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Symbol),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop drops every event.
type Nop struct{}

func (Nop) PublishTrade(context.Context, string, models.TradeResult) error { return nil }
func (Nop) Close() error { return nil }
