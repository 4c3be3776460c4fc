package factory_test

import (
	"context"
	"testing"

	"github.com/fieldops/partsledger/factory"
	"github.com/fieldops/partsledger/inventory"
	"github.com/fieldops/partsledger/inventory/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vanSeed = `{
  "locations": [
    {"id": "wh1", "name": "Main warehouse", "kind": "building"},
    {"id": "van1", "name": "Van 1", "kind": "vehicle", "parent_id": "WH1"}
  ],
  "parts": [
    {"code": "w100", "description": "Widget", "markup_percent": "25", "min_stock": 5, "location_id": "VAN1"}
  ],
  "movements": [
    {"part_code": "W100", "kind": "purchase", "delta": 10, "unit_cost": "5.00"},
    {"part_code": "W100", "kind": "purchase", "delta": 10, "unit_cost": "7.00"},
    {"part_code": "W100", "kind": "consumption", "delta": -12, "job_id": "J1"}
  ]
}`

func TestParseSeed(t *testing.T) {
	seed, err := factory.ParseSeed(vanSeed)

	require.NoError(t, err)
	require.Len(t, seed.Locations, 2)
	assert.Equal(t, inventory.LocationVehicle, seed.Locations[1].Kind)
	require.Len(t, seed.Parts, 1)
	assert.True(t, decimal.NewFromInt(25).Equal(seed.Parts[0].MarkupPercent))
	require.NotNil(t, seed.Parts[0].MinStock)
	assert.Equal(t, int64(5), *seed.Parts[0].MinStock)
	require.Len(t, seed.Movements, 3)
	assert.True(t, seed.Movements[0].UnitCost.Valid)
	assert.False(t, seed.Movements[2].UnitCost.Valid)
	assert.Equal(t, inventory.JobID("J1"), seed.Movements[2].JobID)
}

func TestParseSeed_Rejects(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"malformed", `{"parts": [`},
		{"location kind", `{"locations": [{"id": "X", "name": "x", "kind": "cave"}]}`},
		{"movement kind", `{"movements": [{"part_code": "W100", "kind": "theft", "delta": -1}]}`},
		{"job on a purchase", `{"movements": [{"part_code": "W100", "kind": "purchase", "delta": 1, "unit_cost": "1", "job_id": "J1"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.ParseSeed(tt.json)
			assert.Error(t, err)
		})
	}
}

func TestSeed_Apply(t *testing.T) {
	// GIVEN
	inv := inventory.New(store.NewTxMemory())
	ctx := context.Background()
	seed, err := factory.ParseSeed(vanSeed)
	require.NoError(t, err)

	// WHEN
	require.NoError(t, seed.Apply(ctx, inv, "seed"))

	// THEN: movements went through the ledger and FIFO, and the job
	// consumption became an allocation
	part, err := inv.Catalog.Get(ctx, "W100")
	require.NoError(t, err)
	assert.Equal(t, int64(8), part.Stock)
	assert.Equal(t, inventory.LocationID("VAN1"), part.LocationID)
	assert.Equal(t, int64(1), part.TimesUsed)

	history, err := inv.Ledger.History(ctx, "W100")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "seed", history[0].Actor)
	assert.Equal(t, inventory.JobID("J1"), history[2].JobID)

	cost, err := inv.Allocator.JobCost(ctx, "J1")
	require.NoError(t, err)
	assert.Equal(t, 1, cost.Allocations)
	assert.True(t, decimal.NewFromInt(64).Equal(cost.TotalCost), "got %s", cost.TotalCost)
}

func TestSeed_ApplyStopsAtInvalidMovement(t *testing.T) {
	// GIVEN: a consumption larger than the stock
	inv := inventory.New(store.NewTxMemory())
	seed, err := factory.ParseSeed(`{
	  "parts": [{"code": "W100", "description": "Widget"}],
	  "movements": [
	    {"part_code": "W100", "kind": "purchase", "delta": 2, "unit_cost": "1"},
	    {"part_code": "W100", "kind": "consumption", "delta": -3}
	  ]
	}`)
	require.NoError(t, err)

	// WHEN
	err = seed.Apply(context.Background(), inv, "seed")

	// THEN: the ledger keeps what came before the failure
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	part, err := inv.Catalog.Get(context.Background(), "W100")
	require.NoError(t, err)
	assert.Equal(t, int64(2), part.Stock)
}
