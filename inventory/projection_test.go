package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject_Aggregates(t *testing.T) {
	// GIVEN: two purchases, two job consumptions, a loss and a transfer
	t1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(48 * time.Hour)
	part := Part{Code: "W100", MarkupPercent: d("25"), LocationID: "WH1"}
	entries := []LedgerEntry{
		purchase(1, 10, "5.00"),
		purchase(2, 10, "7.00"),
		{ID: 3, Kind: KindConsumption, Delta: -3, JobID: "J1", RecordedAt: t1},
		{ID: 4, Kind: KindConsumption, Delta: -1, RecordedAt: t1.Add(time.Hour)},
		{ID: 5, Kind: KindConsumption, Delta: -2, JobID: "J2", RecordedAt: t2},
		{ID: 6, Kind: KindLoss, Delta: -1},
		{ID: 7, Kind: KindTransfer, FromLocation: "WH1", ToLocation: "VAN1"},
	}

	// WHEN
	got := Project(part, entries)

	// THEN
	assert.Equal(t, int64(13), got.Stock)
	require.True(t, got.AverageCost.Valid)
	assert.True(t, d("6").Equal(got.AverageCost.Decimal))
	assert.True(t, d("7.5").Equal(got.SellPrice.Decimal))
	assert.Equal(t, int64(2), got.TimesUsed, "only job-linked consumptions count")
	require.NotNil(t, got.FirstUsedAt)
	assert.Equal(t, t1, *got.FirstUsedAt)
	assert.Equal(t, t2, *got.LastUsedAt)
	assert.Equal(t, LocationID("VAN1"), got.LocationID)
}

func TestProject_NeverPurchasedHasNullCosts(t *testing.T) {
	got := Project(Part{Code: "X"}, []LedgerEntry{{ID: 1, Kind: KindCustomerReturn, Delta: 2}})

	assert.Equal(t, int64(2), got.Stock)
	assert.False(t, got.AverageCost.Valid)
	assert.False(t, got.SellPrice.Valid)
}

func TestProject_IgnoresStaleCache(t *testing.T) {
	// GIVEN: a cached row that disagrees with its (empty) ledger
	stale := Part{Code: "X", Stock: 99, TimesUsed: 4, AverageCost: Cost(d("3"))}

	// WHEN
	got := Project(stale, nil)

	// THEN
	assert.Zero(t, got.Stock)
	assert.Zero(t, got.TimesUsed)
	assert.False(t, got.AverageCost.Valid)
	assert.False(t, SameAggregates(stale, got))
}

func TestProject_AverageRoundsToFourPlaces(t *testing.T) {
	entries := []LedgerEntry{purchase(1, 3, "1.00"), purchase(2, 0, "0"), purchase(3, 3, "2.00"), purchase(4, 1, "0.01")}

	got := Project(Part{Code: "W100"}, entries)

	// (3 + 6 + 0.01) / 7 = 1.287142...
	assert.True(t, d("1.2871").Equal(got.AverageCost.Decimal), got.AverageCost.Decimal.String())
	assert.True(t, d("1.29").Equal(got.SellPrice.Decimal))
}

func TestSameAggregates(t *testing.T) {
	now := time.Now()
	a := Part{Stock: 1, AverageCost: Cost(d("2.50")), LastUsedAt: &now}
	b := Part{Stock: 1, AverageCost: Cost(d("2.5")), LastUsedAt: &now, Description: "differs"}

	assert.True(t, SameAggregates(a, b), "descriptive fields and decimal scale do not matter")

	b.LastUsedAt = nil
	assert.False(t, SameAggregates(a, b))
}
