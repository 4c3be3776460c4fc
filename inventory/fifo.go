/*
fifo.go - FIFO cost resolution

PURPOSE:
  Answers "what would consuming N units of this part cost?" by walking the
  part's purchase lots oldest first. The answer is a pure function of the
  ledger entries, so the same snapshot always yields the same lots.

ALGORITHM:
  1. Lots are the Purchase entries, in sequence order.
  2. Quantity already drawn from the lots is
       Σ |delta| of negative entries
     - Σ delta of positive entries that reverse an earlier consuming entry
     and is taken from the oldest lots first.
  3. The requested quantity is drawn from the first lot that still has
     units, moving to the next lot when one is exhausted.
  4. Units no lot can cover are reported as Shortfall. Deciding what to do
     about a shortfall is the caller's business.

EXAMPLE:
  Purchases 5 @ 10.00 then 5 @ 20.00, nothing consumed yet:
    PriceConsumption(entries, 7)
      Lots:      [5 @ 10.00, 2 @ 20.00]
      TotalCost: 90.00

ROUNDING:
  Subtotals and the total are exact decimal products and sums. Only the
  average unit cost is rounded, once, to 4 places.
*/
package inventory

import (
	"context"

	"github.com/shopspring/decimal"
)

const costPlaces = 4

// PriceConsumption prices qty units of a part from its ledger entries.
// entries must be the part's full history in sequence order.
func PriceConsumption(code PartCode, entries []LedgerEntry, qty int64) Pricing {
	p := Pricing{
		PartCode:        code,
		Requested:       qty,
		TotalCost:       decimal.Zero,
		AverageUnitCost: decimal.Zero,
	}
	if qty <= 0 {
		return p
	}

	drawn := drawnFromLots(entries)
	remaining := qty

	for _, e := range entries {
		if remaining == 0 {
			break
		}
		if e.Kind != KindPurchase || e.Delta <= 0 {
			continue
		}

		available := e.Delta
		if drawn >= available {
			drawn -= available
			continue
		}
		available -= drawn
		drawn = 0

		take := min(available, remaining)
		subtotal := e.UnitCost.Decimal.Mul(decimal.NewFromInt(take))
		p.Lots = append(p.Lots, Lot{
			PurchaseID: e.ID,
			Quantity:   take,
			UnitCost:   e.UnitCost.Decimal,
			Subtotal:   subtotal,
		})
		p.TotalCost = p.TotalCost.Add(subtotal)
		remaining -= take
	}

	p.Priced = qty - remaining
	p.Shortfall = remaining
	if p.Priced > 0 {
		p.AverageUnitCost = p.TotalCost.DivRound(decimal.NewFromInt(p.Priced), costPlaces)
	}
	return p
}

// AvailableLotQuantity returns the number of purchased units not yet drawn.
func AvailableLotQuantity(entries []LedgerEntry) int64 {
	var purchased int64
	for _, e := range entries {
		if e.Kind == KindPurchase && e.Delta > 0 {
			purchased += e.Delta
		}
	}
	return max(purchased-drawnFromLots(entries), 0)
}

func drawnFromLots(entries []LedgerEntry) int64 {
	var drawn int64
	for _, e := range entries {
		switch {
		case e.Delta < 0:
			drawn -= e.Delta
		case e.Delta > 0 && e.Reverses != 0:
			drawn -= e.Delta
		}
	}
	return max(drawn, 0)
}

// =============================================================================
// RESOLVER - Read-only pricing against a consistent snapshot
// =============================================================================

// Resolver prices consumptions for quoting without writing anything.
// Writers price inside their own transaction instead (see allocator.go).
type Resolver struct {
	Store TxStore
}

func (r *Resolver) Price(ctx context.Context, code PartCode, qty int64) (Pricing, error) {
	code, err := NormalizePartCode(string(code))
	if err != nil {
		return Pricing{}, err
	}
	if qty <= 0 {
		return Pricing{}, invalid("quantity", "must be positive")
	}
	var pricing Pricing
	err = r.Store.WithTx(ctx, func(s Store) error {
		var err error
		pricing, err = priceIn(ctx, s, code, qty)
		return err
	})
	return pricing, err
}

func priceIn(ctx context.Context, s Store, code PartCode, qty int64) (Pricing, error) {
	if _, err := s.GetPart(ctx, code); err != nil {
		return Pricing{}, err
	}
	entries, err := s.Entries(ctx, code)
	if err != nil {
		return Pricing{}, err
	}
	return PriceConsumption(code, entries, qty), nil
}
