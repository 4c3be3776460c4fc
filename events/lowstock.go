package events

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/fieldops/partsledger/inventory"
	"github.com/sirupsen/logrus"
)

// PartReader is the slice of the catalog the watcher needs.
type PartReader interface {
	Get(ctx context.Context, code inventory.PartCode) (inventory.Part, error)
	IsLow(p inventory.Part) bool
}

// LowStockWatcher raises an alert when a part drops to or below its minimum
// stock. It alerts once per crossing: the part has to recover above the
// minimum before it can alert again.
type LowStockWatcher struct {
	Catalog PartReader
	Log     logrus.FieldLogger
	// OnLow is called for every new crossing. Optional.
	OnLow func(ctx context.Context, p inventory.Part)

	mu  sync.Mutex
	low map[inventory.PartCode]bool
}

// Run subscribes to ledger events and blocks until ctx is done.
func (w *LowStockWatcher) Run(ctx context.Context, bus *Bus) error {
	errCh, err := bus.Subscribe(ctx, TopicLedgerAppended, w.Handle)
	if err != nil {
		return err
	}
	for err := range errCh {
		w.Log.WithError(err).Error("events: low stock watcher failed to handle message")
	}
	return ctx.Err()
}

// Handle processes one TopicLedgerAppended message.
func (w *LowStockWatcher) Handle(ctx context.Context, msg *message.Message) error {
	ev, err := DecodeEntryAppended(msg)
	if err != nil {
		// A malformed payload never gets better on retry.
		w.Log.WithError(err).Warn("events: dropping undecodable message")
		return nil
	}

	part, err := w.Catalog.Get(ctx, inventory.PartCode(ev.PartCode))
	if inventory.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	isLow := w.Catalog.IsLow(part)

	w.mu.Lock()
	if w.low == nil {
		w.low = make(map[inventory.PartCode]bool)
	}
	wasLow := w.low[part.Code]
	w.low[part.Code] = isLow
	w.mu.Unlock()

	if !isLow || wasLow {
		return nil
	}

	w.Log.WithFields(logrus.Fields{
		"part_code": part.Code,
		"stock":     part.Stock,
		"entry_id":  ev.EntryID,
	}).Warn("part is low on stock")
	if w.OnLow != nil {
		w.OnLow(ctx, part)
	}
	return nil
}
