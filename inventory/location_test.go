package inventory_test

import (
	"context"
	"testing"

	"github.com/fieldops/partsledger/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTree creates WH1 > VAN1 > BOX1 and VAN2 under WH1.
func buildTree(t *testing.T, inv *inventory.Inventory) {
	t.Helper()
	ctx := context.Background()
	for _, in := range []inventory.NewLocation{
		{ID: "wh1", Name: "Warehouse", Kind: inventory.LocationBuilding},
		{ID: "van1", Name: "Van 1", Kind: inventory.LocationVehicle, ParentID: "WH1"},
		{ID: "van2", Name: "Van 2", Kind: inventory.LocationVehicle, ParentID: "wh1"},
		{ID: "box1", Name: "Parts box", Kind: inventory.LocationContainer, ParentID: "VAN1"},
	} {
		_, err := inv.Locations.CreateLocation(ctx, in)
		require.NoError(t, err)
	}
}

func pathIDs(path []inventory.Location) []inventory.LocationID {
	ids := make([]inventory.LocationID, len(path))
	for i, l := range path {
		ids[i] = l.ID
	}
	return ids
}

func TestLocation_AncestryPath(t *testing.T) {
	inv, _, _ := newTestInventory(t)
	buildTree(t, inv)

	path, err := inv.Locations.AncestryPath(context.Background(), "box1")

	require.NoError(t, err)
	assert.Equal(t, []inventory.LocationID{"WH1", "VAN1", "BOX1"}, pathIDs(path))
}

func TestLocation_CreateValidation(t *testing.T) {
	inv, _, _ := newTestInventory(t)
	ctx := context.Background()
	buildTree(t, inv)

	_, err := inv.Locations.CreateLocation(ctx, inventory.NewLocation{ID: "WH1", Name: "again", Kind: inventory.LocationBuilding})
	assert.ErrorIs(t, err, inventory.ErrDuplicateCode)

	_, err = inv.Locations.CreateLocation(ctx, inventory.NewLocation{ID: "X", Name: "x", Kind: "cave"})
	assert.ErrorIs(t, err, inventory.ErrValidation)

	_, err = inv.Locations.CreateLocation(ctx, inventory.NewLocation{ID: "X", Name: "x", Kind: inventory.LocationContainer, ParentID: "NOWHERE"})
	assert.ErrorIs(t, err, inventory.ErrLocationNotFound)

	_, err = inv.Locations.CreateLocation(ctx, inventory.NewLocation{ID: "X", Name: "x", Kind: inventory.LocationContainer, ParentID: "X"})
	assert.ErrorIs(t, err, inventory.ErrCycle)
}

func TestLocation_MoveRejectsCycles(t *testing.T) {
	inv, _, _ := newTestInventory(t)
	ctx := context.Background()
	buildTree(t, inv)

	tests := []struct {
		name   string
		id     inventory.LocationID
		parent inventory.LocationID
	}{
		{"onto itself", "VAN1", "VAN1"},
		{"under its child", "VAN1", "BOX1"},
		{"root under grandchild", "WH1", "BOX1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := inv.Locations.MoveLocation(ctx, tt.id, tt.parent)
			assert.ErrorIs(t, err, inventory.ErrCycle)
		})
	}

	// The tree is unchanged
	path, err := inv.Locations.AncestryPath(ctx, "BOX1")
	require.NoError(t, err)
	assert.Equal(t, []inventory.LocationID{"WH1", "VAN1", "BOX1"}, pathIDs(path))
}

func TestLocation_MoveReparents(t *testing.T) {
	// GIVEN
	inv, _, _ := newTestInventory(t)
	ctx := context.Background()
	buildTree(t, inv)

	// WHEN: the parts box moves to van 2
	moved, err := inv.Locations.MoveLocation(ctx, "BOX1", "VAN2")

	// THEN
	require.NoError(t, err)
	assert.Equal(t, inventory.LocationID("VAN2"), moved.ParentID)
	path, err := inv.Locations.AncestryPath(ctx, "BOX1")
	require.NoError(t, err)
	assert.Equal(t, []inventory.LocationID{"WH1", "VAN2", "BOX1"}, pathIDs(path))

	// WHEN: van 2 becomes a root
	_, err = inv.Locations.MoveLocation(ctx, "VAN2", "")
	require.NoError(t, err)
	path, err = inv.Locations.AncestryPath(ctx, "BOX1")
	require.NoError(t, err)
	assert.Equal(t, []inventory.LocationID{"VAN2", "BOX1"}, pathIDs(path))
}

func TestLocation_Transfer(t *testing.T) {
	// GIVEN: W100 kept on van 1
	inv, _, _ := newTestInventory(t)
	ctx := context.Background()
	buildTree(t, inv)
	_, err := inv.Catalog.Create(ctx, inventory.NewPart{Code: "W100", Description: "Widget", LocationID: "van1"})
	require.NoError(t, err)
	buy(t, inv, "W100", 5, "2")

	// WHEN
	id, err := inv.Locations.Transfer(ctx, inventory.TransferInput{
		PartCode: "W100", From: "VAN1", To: "van2", Reason: "rebalance", Actor: "sam",
	})

	// THEN: location moves, stock does not
	require.NoError(t, err)
	part, err := inv.Catalog.Get(ctx, "W100")
	require.NoError(t, err)
	assert.Equal(t, inventory.LocationID("VAN2"), part.LocationID)
	assert.Equal(t, int64(5), part.Stock)

	history, err := inv.Ledger.History(ctx, "W100")
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, id, last.ID)
	assert.Equal(t, inventory.KindTransfer, last.Kind)
	assert.Zero(t, last.Delta)
	assert.Equal(t, "rebalance", last.Note)
}

func TestLocation_TransferInvalid(t *testing.T) {
	inv, _, _ := newTestInventory(t)
	ctx := context.Background()
	buildTree(t, inv)
	_, err := inv.Catalog.Create(ctx, inventory.NewPart{Code: "W100", Description: "Widget", LocationID: "VAN1"})
	require.NoError(t, err)
	_, err = inv.Locations.SetActive(ctx, "BOX1", false)
	require.NoError(t, err)

	tests := []struct {
		name     string
		from, to inventory.LocationID
	}{
		{"same location", "VAN1", "VAN1"},
		{"wrong origin", "VAN2", "WH1"},
		{"missing destination", "VAN1", "NOWHERE"},
		{"inactive destination", "VAN1", "BOX1"},
		{"no destination", "VAN1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := inv.Locations.Transfer(ctx, inventory.TransferInput{PartCode: "W100", From: tt.from, To: tt.to})
			assert.ErrorIs(t, err, inventory.ErrInvalidLocation)
		})
	}

	part, err := inv.Catalog.Get(ctx, "W100")
	require.NoError(t, err)
	assert.Equal(t, inventory.LocationID("VAN1"), part.LocationID)
}

func TestLocation_OnlyTransfersCarryLocations(t *testing.T) {
	inv, _, _ := newTestInventory(t)
	buildTree(t, inv)
	createPart(t, inv, "W100", "0")

	_, err := inv.Ledger.Append(context.Background(), inventory.LedgerEntry{
		PartCode: "W100", Kind: inventory.KindPurchase, Delta: 1, UnitCost: inventory.Cost(dec("1")), ToLocation: "VAN1",
	})

	assert.ErrorIs(t, err, inventory.ErrValidation)
}
