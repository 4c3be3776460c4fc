package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/fieldops/partsledger/inventory"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	log, _ := test.NewNullLogger()
	b := NewBus(log)
	b.retryDelay = time.Millisecond
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBus_PublishesCommittedEntries(t *testing.T) {
	// GIVEN
	b := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan EntryAppended, 2)
	_, err := b.Subscribe(ctx, TopicLedgerAppended, func(_ context.Context, msg *message.Message) error {
		ev, err := DecodeEntryAppended(msg)
		if err != nil {
			return err
		}
		got <- ev
		return nil
	})
	require.NoError(t, err)

	// WHEN
	recorded := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	b.PublishEntries(ctx, []inventory.LedgerEntry{
		{ID: 1, PartCode: "W100", Kind: inventory.KindPurchase, Delta: 10, UnitCost: inventory.Cost(decimal.RequireFromString("5.00")), RecordedAt: recorded},
		{ID: 2, PartCode: "W100", Kind: inventory.KindConsumption, Delta: -3, JobID: "J1", Actor: "sam", RecordedAt: recorded},
	})

	// THEN: both arrive in order with their payload intact
	first := receive(t, got)
	assert.Equal(t, int64(1), first.EntryID)
	assert.Equal(t, "purchase", first.Kind)
	assert.True(t, first.UnitCost.Valid)
	assert.True(t, decimal.RequireFromString("5").Equal(first.UnitCost.Decimal))
	assert.True(t, recorded.Equal(first.RecordedAt))

	second := receive(t, got)
	assert.Equal(t, int64(-3), second.Delta)
	assert.Equal(t, "J1", second.JobID)
	assert.Equal(t, "sam", second.Actor)
	assert.False(t, second.UnitCost.Valid)
}

func TestBus_RetriesThenReportsError(t *testing.T) {
	// GIVEN: a handler that always fails
	b := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	errCh, err := b.Subscribe(ctx, TopicLedgerAppended, func(context.Context, *message.Message) error {
		calls.Add(1)
		return errors.New("downstream unavailable")
	})
	require.NoError(t, err)

	// WHEN
	b.PublishEntries(ctx, []inventory.LedgerEntry{{ID: 1, PartCode: "W100", Kind: inventory.KindLoss, Delta: -1}})

	// THEN
	select {
	case err := <-errCh:
		assert.ErrorContains(t, err, "after 3 retries")
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(maxRetries))
}

func TestBus_PublishNothing(t *testing.T) {
	b := newTestBus(t)
	assert.NotPanics(t, func() { b.PublishEntries(context.Background(), nil) })
}

func receive(t *testing.T, ch <-chan EntryAppended) EntryAppended {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return EntryAppended{}
	}
}
