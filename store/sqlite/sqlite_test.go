package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fieldops/partsledger/inventory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var now = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func insertPart(t *testing.T, s *Store, code inventory.PartCode) {
	t.Helper()
	require.NoError(t, s.InsertPart(context.Background(), inventory.Part{
		Code: code, Description: "part " + string(code), MarkupPercent: dec("25"), CreatedAt: now, UpdatedAt: now,
	}))
}

func TestStore_PartRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	minStock := int64(4)
	used := now.Add(time.Hour)

	want := inventory.Part{
		Code: "W100", Description: "Widget", Category: "fasteners", Brand: "Acme",
		MarkupPercent: dec("12.5"), MinStock: &minStock, Stock: 7,
		AverageCost: inventory.Cost(dec("5.3333")), SellPrice: inventory.Cost(dec("6")),
		TimesUsed: 2, FirstUsedAt: &used, LastUsedAt: &used,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.InsertPart(ctx, want))

	got, err := s.GetPart(ctx, "W100")
	require.NoError(t, err)
	assert.Equal(t, want.Description, got.Description)
	assert.True(t, want.MarkupPercent.Equal(got.MarkupPercent))
	require.NotNil(t, got.MinStock)
	assert.Equal(t, int64(4), *got.MinStock)
	assert.True(t, dec("5.3333").Equal(got.AverageCost.Decimal))
	require.NotNil(t, got.LastUsedAt)
	assert.True(t, used.Equal(*got.LastUsedAt))
	assert.True(t, now.Equal(got.CreatedAt))

	err = s.InsertPart(ctx, want)
	assert.ErrorIs(t, err, inventory.ErrDuplicateCode)

	_, err = s.GetPart(ctx, "NOPE")
	assert.ErrorIs(t, err, inventory.ErrPartNotFound)
}

func TestStore_NullCostsStayNull(t *testing.T) {
	s := newTestStore(t)
	insertPart(t, s, "X1")

	got, err := s.GetPart(context.Background(), "X1")

	require.NoError(t, err)
	assert.False(t, got.AverageCost.Valid)
	assert.False(t, got.SellPrice.Valid)
	assert.Nil(t, got.MinStock)
	assert.Nil(t, got.FirstUsedAt)
}

func TestStore_LedgerIsAppendOnly(t *testing.T) {
	// GIVEN: one committed entry
	s := newTestStore(t)
	ctx := context.Background()
	insertPart(t, s, "W100")
	id, err := s.AppendEntry(ctx, inventory.LedgerEntry{
		PartCode: "W100", Kind: inventory.KindPurchase, Delta: 10, UnitCost: inventory.Cost(dec("5")), RecordedAt: now,
	})
	require.NoError(t, err)

	// WHEN: someone edits or deletes it with raw SQL
	_, updateErr := s.db.ExecContext(ctx, `UPDATE ledger_entries SET delta = 99 WHERE id = ?`, id)
	_, deleteErr := s.db.ExecContext(ctx, `DELETE FROM ledger_entries WHERE id = ?`, id)

	// THEN: the database refuses
	assert.ErrorContains(t, updateErr, "append-only")
	assert.ErrorContains(t, deleteErr, "append-only")

	entries, err := s.Entries(ctx, "W100")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(10), entries[0].Delta)
	assert.True(t, dec("5").Equal(entries[0].UnitCost.Decimal))
}

func TestStore_ReversalIsUniqueInDatabase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertPart(t, s, "W100")
	consumed, err := s.AppendEntry(ctx, inventory.LedgerEntry{PartCode: "W100", Kind: inventory.KindConsumption, Delta: -2, JobID: "J1", RecordedAt: now})
	require.NoError(t, err)

	_, err = s.AppendEntry(ctx, inventory.LedgerEntry{PartCode: "W100", Kind: inventory.KindAdjustment, Delta: 2, Reverses: consumed, RecordedAt: now})
	require.NoError(t, err)
	_, err = s.AppendEntry(ctx, inventory.LedgerEntry{PartCode: "W100", Kind: inventory.KindAdjustment, Delta: 2, Reverses: consumed, RecordedAt: now})

	var vErr *inventory.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "reverses", vErr.Field)
	assert.ErrorIs(t, err, inventory.ErrValidation)
}

func TestStore_WithTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx inventory.Store) error {
		if err := tx.InsertPart(ctx, inventory.Part{Code: "TMP", Description: "x", CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	_, err = s.GetPart(ctx, "TMP")
	assert.ErrorIs(t, err, inventory.ErrPartNotFound)
}

func TestStore_Allocations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertPart(t, s, "W100")

	a := inventory.Allocation{
		ID: "a-1", JobID: "J1", PartCode: "W100", Quantity: 3,
		UnitCost: dec("5"), TotalCost: dec("15"), SellPrice: dec("18.75"),
		Source: inventory.SourceDirectOrder, CreatedAt: now,
	}
	require.NoError(t, s.InsertAllocation(ctx, a))

	got, err := s.AllocationsByJob(ctx, "J1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Zero(t, got[0].EntryID)
	assert.True(t, dec("18.75").Equal(got[0].SellPrice))

	n, err := s.CountAllocationsByPart(ctx, "W100")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.DeleteAllocation(ctx, "a-1"))
	assert.ErrorIs(t, s.DeleteAllocation(ctx, "a-1"), inventory.ErrAllocationNotFound)
}

func TestStore_AllocationsOrderedByTime(t *testing.T) {
	// GIVEN: the later allocation has the smaller id and a fractional second
	s := newTestStore(t)
	ctx := context.Background()
	insertPart(t, s, "W100")
	later := now.Add(500 * time.Millisecond)
	for _, a := range []inventory.Allocation{
		{ID: "a-1", CreatedAt: later},
		{ID: "b-2", CreatedAt: now},
	} {
		a.JobID, a.PartCode, a.Quantity = "J1", "W100", 1
		a.UnitCost, a.TotalCost, a.SellPrice = dec("1"), dec("1"), dec("1")
		a.Source = inventory.SourceDirectOrder
		require.NoError(t, s.InsertAllocation(ctx, a))
	}

	// WHEN
	got, err := s.AllocationsByJob(ctx, "J1")

	// THEN: whole second first, times intact
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, inventory.AllocationID("b-2"), got[0].ID)
	assert.Equal(t, inventory.AllocationID("a-1"), got[1].ID)
	assert.True(t, now.Equal(got[0].CreatedAt))
	assert.True(t, later.Equal(got[1].CreatedAt))
}

func TestStore_AllocationByEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertPart(t, s, "W100")
	consumed, err := s.AppendEntry(ctx, inventory.LedgerEntry{PartCode: "W100", Kind: inventory.KindConsumption, Delta: -2, JobID: "J1", RecordedAt: now})
	require.NoError(t, err)

	a := inventory.Allocation{
		ID: "a-1", JobID: "J1", PartCode: "W100", Quantity: 2,
		UnitCost: dec("5"), TotalCost: dec("10"), SellPrice: dec("12.5"),
		Source: inventory.SourceStock, EntryID: consumed, CreatedAt: now,
	}
	require.NoError(t, s.InsertAllocation(ctx, a))

	got, err := s.AllocationByEntry(ctx, consumed)
	require.NoError(t, err)
	assert.Equal(t, inventory.AllocationID("a-1"), got.ID)

	_, err = s.AllocationByEntry(ctx, consumed+1)
	assert.ErrorIs(t, err, inventory.ErrAllocationNotFound)

	// One consumption backs one allocation
	a.ID = "a-2"
	assert.ErrorIs(t, s.InsertAllocation(ctx, a), inventory.ErrDuplicateCode)

	require.NoError(t, s.DeleteAllocation(ctx, "a-1"))
	_, err = s.AllocationByEntry(ctx, consumed)
	assert.ErrorIs(t, err, inventory.ErrAllocationNotFound)
}

func TestFormatTime_FixedWidth(t *testing.T) {
	whole := formatTime(now)
	half := formatTime(now.Add(500 * time.Millisecond))

	assert.Len(t, half, len(whole))
	assert.Less(t, whole, half)
	assert.True(t, now.Equal(parseTime(whole)))
}

func TestStore_InventoryEndToEnd(t *testing.T) {
	// GIVEN: the inventory service on top of SQLite
	s := newTestStore(t)
	inv := inventory.New(s)
	ctx := context.Background()

	_, err := inv.Catalog.Create(ctx, inventory.NewPart{Code: "W100", Description: "Widget", MarkupPercent: dec("25")})
	require.NoError(t, err)
	for _, cost := range []string{"5.00", "7.00"} {
		_, err := inv.Ledger.Append(ctx, inventory.LedgerEntry{
			PartCode: "W100", Kind: inventory.KindPurchase, Delta: 10, UnitCost: inventory.Cost(dec(cost)),
		})
		require.NoError(t, err)
	}

	// WHEN
	res, err := inv.Allocator.Allocate(ctx, inventory.AllocateInput{
		JobID: "J1", PartCode: "W100", Quantity: 12, Source: inventory.SourceStock,
	})

	// THEN
	require.NoError(t, err)
	assert.True(t, dec("64").Equal(res.Allocation.TotalCost))
	part, err := inv.Catalog.Get(ctx, "W100")
	require.NoError(t, err)
	assert.Equal(t, int64(8), part.Stock)

	drift, err := inv.Ledger.Reconcile(ctx, "W100")
	require.NoError(t, err)
	assert.Nil(t, drift)

	require.NoError(t, inv.Allocator.Deallocate(ctx, res.Allocation.ID, "sam"))
	part, err = inv.Catalog.Get(ctx, "W100")
	require.NoError(t, err)
	assert.Equal(t, int64(20), part.Stock)
}

func TestStore_Ping(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
