// Package events fans committed ledger entries out to in-process
// consumers such as the low stock watcher. Transport is a Watermill Go
// channel; payloads are EntryAppended JSON.
//
// The ledger publishes only after commit, so a consumer never sees an entry
// that was rolled back. A failed publish is logged and loses only the
// notification; the entry itself is already committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/fieldops/partsledger/inventory"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	// TopicLedgerAppended carries one EntryAppended per committed entry.
	TopicLedgerAppended = "ledger.entry_appended"

	// A failing handler sees a message this many times in total.
	maxRetries      = 3
	retryBaseDelay  = time.Second
	shutdownTimeout = 30 * time.Second
)

// EntryAppended is the JSON payload of TopicLedgerAppended.
type EntryAppended struct {
	EntryID      int64               `json:"entry_id"`
	PartCode     string              `json:"part_code"`
	Delta        int64               `json:"delta"`
	Kind         string              `json:"kind"`
	UnitCost     decimal.NullDecimal `json:"unit_cost"`
	FromLocation string              `json:"from_location,omitempty"`
	ToLocation   string              `json:"to_location,omitempty"`
	JobID        string              `json:"job_id,omitempty"`
	Reverses     int64               `json:"reverses,omitempty"`
	Actor        string              `json:"actor,omitempty"`
	RecordedAt   time.Time           `json:"recorded_at"`
}

func newEntryAppended(e inventory.LedgerEntry) EntryAppended {
	return EntryAppended{
		EntryID:      int64(e.ID),
		PartCode:     string(e.PartCode),
		Delta:        e.Delta,
		Kind:         string(e.Kind),
		UnitCost:     e.UnitCost,
		FromLocation: string(e.FromLocation),
		ToLocation:   string(e.ToLocation),
		JobID:        string(e.JobID),
		Reverses:     int64(e.Reverses),
		Actor:        e.Actor,
		RecordedAt:   e.RecordedAt,
	}
}

// Bus carries ledger events between the inventory service and its
// in-process consumers. It is the inventory.Publisher of a running server.
type Bus struct {
	pubsub     *gochannel.GoChannel
	log        logrus.FieldLogger
	wg         sync.WaitGroup
	retryDelay time.Duration
}

func NewBus(log logrus.FieldLogger) *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256},
			&logrusAdapter{log: log},
		),
		log:        log,
		retryDelay: retryBaseDelay,
	}
}

// PublishEntries implements inventory.Publisher.
func (b *Bus) PublishEntries(ctx context.Context, entries []inventory.LedgerEntry) {
	msgs := make([]*message.Message, 0, len(entries))
	for _, e := range entries {
		payload, err := json.Marshal(newEntryAppended(e))
		if err != nil {
			b.log.WithError(err).WithField("entry_id", e.ID).Error("events: failed to encode ledger entry")
			continue
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.SetContext(ctx)
		msg.Metadata.Set("part_code", string(e.PartCode))
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return
	}
	if err := b.pubsub.Publish(TopicLedgerAppended, msgs...); err != nil {
		b.log.WithError(err).WithField("topic", TopicLedgerAppended).Error("events: publish failed")
	}
}

// Subscribe runs handler for every message on topic until ctx ends or the
// bus closes. A message is acked once handler succeeds. A handler error
// is retried with doubling delays; after maxRetries failures the message is
// nacked and the error sent on the returned channel, which the caller
// drains. Errors that find the channel full are logged and dropped.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler func(context.Context, *message.Message) error) (<-chan error, error) {
	msgs, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("events: subscribe to %s: %w", topic, err)
	}

	failures := make(chan error, 100)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(failures)
		for msg := range msgs {
			b.deliver(ctx, topic, msg, handler, failures)
		}
	}()
	return failures, nil
}

func (b *Bus) deliver(
	ctx context.Context,
	topic string,
	msg *message.Message,
	handler func(context.Context, *message.Message) error,
	failures chan<- error,
) {
	err := b.handleWithRetry(ctx, msg, handler)
	if err == nil {
		msg.Ack()
		return
	}
	msg.Nack()
	select {
	case failures <- err:
	default:
		b.log.WithError(err).WithFields(logrus.Fields{
			"topic":      topic,
			"message_id": msg.UUID,
		}).Error("events: subscriber not draining failures, dropping")
	}
}

func (b *Bus) handleWithRetry(ctx context.Context, msg *message.Message, handler func(context.Context, *message.Message) error) error {
	wait := b.retryDelay
	var err error
	for attempt := 1; ; attempt++ {
		if err = handler(ctx, msg); err == nil {
			return nil
		}
		if attempt == maxRetries {
			return fmt.Errorf("events: message %s failed after %d retries: %w", msg.UUID, maxRetries, err)
		}
		b.log.WithError(err).WithFields(logrus.Fields{
			"message_id": msg.UUID,
			"attempt":    attempt,
			"wait":       wait,
		}).Warn("events: ledger event handler failed")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
}

// Close shuts the channel and gives running handlers up to shutdownTimeout
// to finish their current entry.
func (b *Bus) Close() error {
	if err := b.pubsub.Close(); err != nil {
		return fmt.Errorf("events: close pubsub: %w", err)
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		b.log.WithField("timeout", shutdownTimeout).Error("events: handlers still running at shutdown")
	}
	return nil
}

// DecodeEntryAppended reads the payload of a TopicLedgerAppended message.
func DecodeEntryAppended(msg *message.Message) (EntryAppended, error) {
	var ev EntryAppended
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return ev, fmt.Errorf("events: decode %s: %w", msg.UUID, err)
	}
	return ev, nil
}

// logrusAdapter bridges logrus to watermill.LoggerAdapter.
type logrusAdapter struct{ log logrus.FieldLogger }

func (a *logrusAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.WithFields(logrus.Fields(fields)).WithError(err).Error(msg)
}
func (a *logrusAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.WithFields(logrus.Fields(fields)).Info(msg)
}
func (a *logrusAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.WithFields(logrus.Fields(fields)).Debug(msg)
}
func (a *logrusAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.WithFields(logrus.Fields(fields)).Debug(msg)
}
func (a *logrusAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &logrusAdapter{log: a.log.WithFields(logrus.Fields(fields))}
}

var _ inventory.Publisher = (*Bus)(nil)
