// Package events publishes appended ledger entries to Kafka.
package events

import (
	"context"       // Request-scoped context
	"encoding/json" // Event encoding
	"time"          // Write timeout

	"github.com/segmentio/kafka-go" // Kafka client

	"banker_api/internal/domain" // Ledger entry model
)

// LedgerEntryAppended is the message value written for every ledger entry.
type LedgerEntryAppended struct {
	EntryID    string    `json:"entry_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Amount     int64     `json:"amount"`
	Note       string    `json:"note"`
	Success    bool      `json:"success"`
	AdminNote  *string   `json:"admin_note,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewLedgerEntryAppended builds the event for entry.
func NewLedgerEntryAppended(entry domain.LedgerEntry) LedgerEntryAppended {
	return LedgerEntryAppended{
		EntryID:    entry.ID,
		From:       entry.From,
		To:         entry.To,
		Amount:     entry.Amount,
		Note:       entry.Note,
		Success:    entry.Success,
		AdminNote:  entry.AdminNote,
		OccurredAt: time.UnixMilli(entry.Timestamp).UTC(),
	}
}

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes ledger events to a single topic.
type Publisher struct {
	writer messageWriter
}

// NewPublisher returns a Publisher for topic on brokers. Each Publish is
// written as a batch of one.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // same payer, same partition
			RequiredAcks: kafka.RequireOne,
			BatchSize:    1,
			BatchTimeout: 5 * time.Millisecond,
			MaxAttempts:  3,
			WriteTimeout: time.Second,
		},
	}
}

// Publish encodes entry and writes it keyed by the debited user.
func (p *Publisher) Publish(ctx context.Context, entry domain.LedgerEntry) error {
	data, err := json.Marshal(NewLedgerEntryAppended(entry))
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.From),
		Value: data,
	})
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
