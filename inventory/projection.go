/*
projection.go - Catalog aggregates recomputed from the ledger

PURPOSE:
  The Projector owns every cached field of a Part. It never adjusts a cached
  value by a delta; it replays the part's full ledger history and writes the
  result back, so the stock invariant
      part.Stock == Σ entry.Delta
  holds after every append no matter what happened before.

DERIVED FIELDS:
  Stock        Σ delta over all entries
  AverageCost  Σ(unit cost × qty) / Σ qty over Purchase entries, 4 places;
               null when the part was never purchased
  SellPrice    AverageCost × (1 + markup/100), 2 places; null with AverageCost
  TimesUsed    number of job-linked Consumption entries
  First/LastUsedAt  recorded time of the first/last of those entries
  LocationID   destination of the last Transfer; the location given at
               creation when the part was never transferred

The projector only reads the ledger and only writes the catalog row.
*/
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const pricePlaces = 2

// Project returns part with every cached field recomputed from entries.
func Project(part Part, entries []LedgerEntry) Part {
	out := part
	out.Stock = 0
	out.TimesUsed = 0
	out.FirstUsedAt = nil
	out.LastUsedAt = nil
	out.AverageCost = decimal.NullDecimal{}
	out.SellPrice = decimal.NullDecimal{}

	purchasedQty := int64(0)
	purchasedValue := decimal.Zero

	for _, e := range entries {
		out.Stock += e.Delta

		switch e.Kind {
		case KindPurchase:
			if e.Delta > 0 && e.UnitCost.Valid {
				purchasedQty += e.Delta
				purchasedValue = purchasedValue.Add(e.UnitCost.Decimal.Mul(decimal.NewFromInt(e.Delta)))
			}
		case KindConsumption:
			if e.JobID != "" {
				out.TimesUsed++
				at := e.RecordedAt
				if out.FirstUsedAt == nil {
					out.FirstUsedAt = &at
				}
				out.LastUsedAt = &at
			}
		case KindTransfer:
			out.LocationID = e.ToLocation
		case KindDirectOrder, KindReturnToSupplier, KindCustomerReturn, KindLoss, KindAdjustment:
			// quantity only
		}
	}

	if purchasedQty > 0 {
		avg := purchasedValue.DivRound(decimal.NewFromInt(purchasedQty), costPlaces)
		out.AverageCost = Cost(avg)
		out.SellPrice = Cost(avg.Mul(part.MarkupFactor()).Round(pricePlaces))
	}
	return out
}

// Projector writes Project results back to the catalog.
type Projector struct {
	Clock func() time.Time
}

// Recompute reprojects one part inside the caller's transaction.
func (p *Projector) Recompute(ctx context.Context, s Store, code PartCode) (Part, error) {
	part, err := s.GetPart(ctx, code)
	if err != nil {
		return Part{}, err
	}
	entries, err := s.Entries(ctx, code)
	if err != nil {
		return Part{}, fmt.Errorf("load entries for %s: %w", code, err)
	}

	projected := Project(part, entries)
	projected.UpdatedAt = p.now()
	if err := s.UpdatePart(ctx, projected); err != nil {
		return Part{}, fmt.Errorf("update part %s: %w", code, err)
	}
	return projected, nil
}

func (p *Projector) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now().UTC()
}

// SameAggregates reports whether two parts agree on every cached field.
// The Reconciler uses it to detect drift.
func SameAggregates(a, b Part) bool {
	return a.Stock == b.Stock &&
		sameNullDecimal(a.AverageCost, b.AverageCost) &&
		sameNullDecimal(a.SellPrice, b.SellPrice) &&
		a.TimesUsed == b.TimesUsed &&
		sameTime(a.FirstUsedAt, b.FirstUsedAt) &&
		sameTime(a.LastUsedAt, b.LastUsedAt) &&
		a.LocationID == b.LocationID
}

func sameNullDecimal(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
