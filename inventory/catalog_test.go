package inventory_test

import (
	"context"
	"testing"

	"github.com/fieldops/partsledger/inventory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(n int64) *int64 { return &n }

func TestCatalog_CreateNormalizesCode(t *testing.T) {
	inv, _, _ := newTestInventory(t)
	ctx := context.Background()

	part, err := inv.Catalog.Create(ctx, inventory.NewPart{
		Code: "  flt-001 ", Description: "  Oil filter ", Category: "filters", MarkupPercent: dec("30"),
	})

	require.NoError(t, err)
	assert.Equal(t, inventory.PartCode("FLT-001"), part.Code)
	assert.Equal(t, "Oil filter", part.Description)
	assert.Zero(t, part.Stock)
	assert.False(t, part.AverageCost.Valid)

	_, err = inv.Catalog.Create(ctx, inventory.NewPart{Code: "FLT-001", Description: "again"})
	assert.ErrorIs(t, err, inventory.ErrDuplicateCode)
}

func TestCatalog_CreateValidation(t *testing.T) {
	inv, _, _ := newTestInventory(t)

	tests := []struct {
		name string
		in   inventory.NewPart
		want error
	}{
		{"empty code", inventory.NewPart{Code: " ", Description: "x"}, inventory.ErrValidation},
		{"code with space", inventory.NewPart{Code: "A B", Description: "x"}, inventory.ErrValidation},
		{"no description", inventory.NewPart{Code: "A1"}, inventory.ErrValidation},
		{"negative markup", inventory.NewPart{Code: "A1", Description: "x", MarkupPercent: dec("-1")}, inventory.ErrValidation},
		{"negative min stock", inventory.NewPart{Code: "A1", Description: "x", MinStock: int64p(-1)}, inventory.ErrValidation},
		{"missing location", inventory.NewPart{Code: "A1", Description: "x", LocationID: "NOWHERE"}, inventory.ErrLocationNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := inv.Catalog.Create(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	parts, err := inv.Catalog.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestCatalog_UpdateDetailsReprices(t *testing.T) {
	// GIVEN: W100 averaging 6.00 at 25% markup
	inv, _, _ := newTestInventory(t)
	ctx := context.Background()
	seedW100(t, inv)

	// WHEN: markup goes to 50%
	part, err := inv.Catalog.UpdateDetails(ctx, "w100", inventory.PartDetails{
		Description: "Widget, large", Brand: "Acme", MarkupPercent: dec("50"),
	})

	// THEN
	require.NoError(t, err)
	assert.Equal(t, "Widget, large", part.Description)
	assert.True(t, dec("9").Equal(part.SellPrice.Decimal))
	assert.Equal(t, int64(20), part.Stock)

	stored, err := inv.Catalog.Get(ctx, "W100")
	require.NoError(t, err)
	assert.Equal(t, "Acme", stored.Brand)
	assert.True(t, dec("9").Equal(stored.SellPrice.Decimal))
}

func TestCatalog_UpdateUnknownPart(t *testing.T) {
	inv, _, _ := newTestInventory(t)

	_, err := inv.Catalog.UpdateDetails(context.Background(), "NOPE", inventory.PartDetails{Description: "x"})

	assert.ErrorIs(t, err, inventory.ErrPartNotFound)
}

func TestCatalog_Delete(t *testing.T) {
	inv, _, _ := newTestInventory(t)
	ctx := context.Background()
	createPart(t, inv, "UNUSED", "0")
	createPart(t, inv, "USED", "0")
	buy(t, inv, "USED", 1, "1")

	t.Run("in use", func(t *testing.T) {
		err := inv.Catalog.Delete(ctx, "USED")
		assert.ErrorIs(t, err, inventory.ErrPartInUse)
		_, err = inv.Catalog.Get(ctx, "USED")
		assert.NoError(t, err)
	})

	t.Run("unreferenced", func(t *testing.T) {
		require.NoError(t, inv.Catalog.Delete(ctx, "unused"))
		_, err := inv.Catalog.Get(ctx, "UNUSED")
		assert.ErrorIs(t, err, inventory.ErrPartNotFound)
	})

	t.Run("missing", func(t *testing.T) {
		assert.ErrorIs(t, inv.Catalog.Delete(ctx, "UNUSED"), inventory.ErrPartNotFound)
	})
}

func TestCatalog_DeleteWithOnlyDirectOrderAllocation(t *testing.T) {
	// GIVEN: a part never stocked but ordered straight to a job
	inv, _, _ := newTestInventory(t)
	ctx := context.Background()
	createPart(t, inv, "SPECIAL", "10")
	_, err := inv.Allocator.Allocate(ctx, inventory.AllocateInput{
		JobID: "J9", PartCode: "SPECIAL", Quantity: 1, Source: inventory.SourceDirectOrder, UnitCost: inventory.Cost(dec("40")),
	})
	require.NoError(t, err)

	// WHEN
	err = inv.Catalog.Delete(ctx, "SPECIAL")

	// THEN
	assert.ErrorIs(t, err, inventory.ErrPartInUse)
}

func TestCatalog_LowStock(t *testing.T) {
	// GIVEN: default minimum 5
	inv, _, _ := newTestInventory(t)
	ctx := context.Background()
	inv.Catalog.DefaultMinStock = 5

	_, err := inv.Catalog.Create(ctx, inventory.NewPart{Code: "AT-MIN", Description: "x", MinStock: int64p(3)})
	require.NoError(t, err)
	buy(t, inv, "AT-MIN", 3, "1")

	_, err = inv.Catalog.Create(ctx, inventory.NewPart{Code: "ABOVE", Description: "x", MinStock: int64p(3)})
	require.NoError(t, err)
	buy(t, inv, "ABOVE", 4, "1")

	createPart(t, inv, "DEFAULT-LOW", "0")
	buy(t, inv, "DEFAULT-LOW", 5, "1")

	createPart(t, inv, "DEFAULT-OK", "0")
	buy(t, inv, "DEFAULT-OK", 6, "1")

	_, err = inv.Catalog.Create(ctx, inventory.NewPart{Code: "ZERO-MIN", Description: "x", MinStock: int64p(0)})
	require.NoError(t, err)

	// WHEN
	low, err := inv.Catalog.LowStock(ctx)

	// THEN
	require.NoError(t, err)
	var codes []inventory.PartCode
	for _, p := range low {
		codes = append(codes, p.Code)
	}
	assert.ElementsMatch(t, []inventory.PartCode{"AT-MIN", "DEFAULT-LOW", "ZERO-MIN"}, codes)
}

func TestCatalog_MarkupOfZeroSellsAtCost(t *testing.T) {
	inv, _, _ := newTestInventory(t)
	createPart(t, inv, "P1", "0")
	buy(t, inv, "P1", 2, "3.10")

	part, err := inv.Catalog.Get(context.Background(), "P1")

	require.NoError(t, err)
	assert.True(t, part.SellPrice.Decimal.Equal(decimal.RequireFromString("3.1")))
}
