/*
allocator.go - Job part cost allocation

PURPOSE:
  Records which parts a job used and what they cost. Parts either come out
  of stock, priced FIFO from the ledger, or are bought directly for the job
  at a cost the caller supplies.

ALLOCATE FLOW (Source = Stock), all under the part lock in one transaction:
  ┌────────────────────────────────────────────────────────────────────┐
  │  price N units  ──▶  append Consumption -N  ──▶  recompute part  │
  │  (FIFO lots)         at average unit cost        (projector)      │
  │        │                                               │           │
  │        ▼ shortfall                                     ▼           │
  │  InsufficientStockError                     insert allocation     │
  └────────────────────────────────────────────────────────────────────┘

  Source = DirectOrder: no ledger entry, no stock change, allocation only.

DEALLOCATE:
  Stock:       delete the allocation, then append Adjustment +N at its unit
               cost reversing the Consumption entry. The original
               consumption stays in the ledger. While the allocation lives,
               the ledger refuses any other reversal of that consumption.
  DirectOrder: delete the allocation.

Costs are locked in when allocated. Later returns to supplier change only
what future consumptions cost.
*/
package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AllocateInput struct {
	JobID    JobID
	PartCode PartCode
	Quantity int64
	Source   Source
	// UnitCost is required for DirectOrder and ignored for Stock.
	UnitCost decimal.NullDecimal
	Note     string
	Actor    string
}

// AllocationResult is the created allocation plus, for stock-sourced
// allocations, the FIFO lots that priced it.
type AllocationResult struct {
	Allocation Allocation
	Pricing    *Pricing
}

type JobAllocator struct {
	ledger *Ledger
	// NewID generates allocation ids; uuid.NewString when nil.
	NewID func() string
}

func (a *JobAllocator) Allocate(ctx context.Context, in AllocateInput) (AllocationResult, error) {
	code, err := NormalizePartCode(string(in.PartCode))
	if err != nil {
		return AllocationResult{}, err
	}
	in.PartCode = code
	in.JobID = JobID(strings.TrimSpace(string(in.JobID)))
	if in.JobID == "" {
		return AllocationResult{}, invalid("job_id", "is required")
	}
	if in.Quantity <= 0 {
		return AllocationResult{}, invalid("quantity", "must be positive")
	}

	switch in.Source {
	case SourceStock:
		return a.allocateFromStock(ctx, in)
	case SourceDirectOrder:
		return a.allocateDirectOrder(ctx, in)
	}
	return AllocationResult{}, invalid("source", fmt.Sprintf("unknown source %q", in.Source))
}

func (a *JobAllocator) allocateFromStock(ctx context.Context, in AllocateInput) (AllocationResult, error) {
	var (
		result   AllocationResult
		appended LedgerEntry
	)

	err := a.ledger.writePart(ctx, in.PartCode, func(s Store) error {
		part, err := s.GetPart(ctx, in.PartCode)
		if err != nil {
			return err
		}

		// Pricing must see the same snapshot the consumption commits against.
		pricing, err := priceIn(ctx, s, in.PartCode, in.Quantity)
		if err != nil {
			return err
		}
		if !pricing.Complete() {
			return &InsufficientStockError{
				PartCode:  in.PartCode,
				Requested: in.Quantity,
				Available: pricing.Priced,
			}
		}

		appended, err = a.ledger.appendIn(ctx, s, LedgerEntry{
			PartCode: in.PartCode,
			Delta:    -in.Quantity,
			Kind:     KindConsumption,
			UnitCost: Cost(pricing.AverageUnitCost),
			JobID:    in.JobID,
			Note:     in.Note,
			Actor:    in.Actor,
		})
		if err != nil {
			return err
		}

		alloc := Allocation{
			ID:        a.newID(),
			JobID:     in.JobID,
			PartCode:  in.PartCode,
			Quantity:  in.Quantity,
			UnitCost:  pricing.AverageUnitCost,
			TotalCost: pricing.TotalCost,
			SellPrice: pricing.TotalCost.Mul(part.MarkupFactor()).Round(pricePlaces),
			Source:    SourceStock,
			EntryID:   appended.ID,
			Note:      in.Note,
			Actor:     in.Actor,
			CreatedAt: appended.RecordedAt,
		}
		if err := s.InsertAllocation(ctx, alloc); err != nil {
			return fmt.Errorf("insert allocation: %w", err)
		}

		result = AllocationResult{Allocation: alloc, Pricing: &pricing}
		return nil
	})
	if err != nil {
		return AllocationResult{}, err
	}

	a.ledger.publish(ctx, appended)
	return result, nil
}

func (a *JobAllocator) allocateDirectOrder(ctx context.Context, in AllocateInput) (AllocationResult, error) {
	if !in.UnitCost.Valid {
		return AllocationResult{}, invalid("unit_cost", "is required for a direct order")
	}
	if in.UnitCost.Decimal.IsNegative() {
		return AllocationResult{}, invalid("unit_cost", "must not be negative")
	}

	var alloc Allocation
	err := a.ledger.writePart(ctx, in.PartCode, func(s Store) error {
		part, err := s.GetPart(ctx, in.PartCode)
		if err != nil {
			return err
		}
		total := in.UnitCost.Decimal.Mul(decimal.NewFromInt(in.Quantity))
		alloc = Allocation{
			ID:        a.newID(),
			JobID:     in.JobID,
			PartCode:  in.PartCode,
			Quantity:  in.Quantity,
			UnitCost:  in.UnitCost.Decimal,
			TotalCost: total,
			SellPrice: total.Mul(part.MarkupFactor()).Round(pricePlaces),
			Source:    SourceDirectOrder,
			Note:      in.Note,
			Actor:     in.Actor,
			CreatedAt: a.ledger.now(),
		}
		return s.InsertAllocation(ctx, alloc)
	})
	if err != nil {
		return AllocationResult{}, err
	}
	return AllocationResult{Allocation: alloc}, nil
}

// Deallocate is the exact inverse of Allocate.
func (a *JobAllocator) Deallocate(ctx context.Context, id AllocationID, actor string) error {
	alloc, err := a.ledger.Store.GetAllocation(ctx, id)
	if err != nil {
		return err
	}

	var appended []LedgerEntry
	err = a.ledger.writePart(ctx, alloc.PartCode, func(s Store) error {
		// Re-read under the lock: a concurrent Deallocate may have won.
		alloc, err := s.GetAllocation(ctx, id)
		if err != nil {
			return err
		}

		// The allocation goes first so the reversal below is no longer
		// claimed by a live allocation.
		if err := s.DeleteAllocation(ctx, id); err != nil {
			return err
		}

		if alloc.Source == SourceStock {
			e, err := a.ledger.appendIn(ctx, s, LedgerEntry{
				PartCode: alloc.PartCode,
				Delta:    alloc.Quantity,
				Kind:     KindAdjustment,
				UnitCost: Cost(alloc.UnitCost),
				JobID:    alloc.JobID,
				Reverses: alloc.EntryID,
				Note:     fmt.Sprintf("deallocated %s from job %s", alloc.ID, alloc.JobID),
				Actor:    actor,
			})
			if err != nil {
				return err
			}
			appended = append(appended, e)
		}
		return nil
	})
	if err != nil {
		return err
	}

	a.ledger.publish(ctx, appended...)
	return nil
}

func (a *JobAllocator) JobAllocations(ctx context.Context, job JobID) ([]Allocation, error) {
	return a.ledger.Store.AllocationsByJob(ctx, job)
}

// JobCost sums cost and sell price over the job's live allocations.
func (a *JobAllocator) JobCost(ctx context.Context, job JobID) (JobCost, error) {
	allocs, err := a.JobAllocations(ctx, job)
	if err != nil {
		return JobCost{}, err
	}
	cost := JobCost{JobID: job, TotalCost: decimal.Zero, TotalSell: decimal.Zero}
	for _, al := range allocs {
		cost.Allocations++
		cost.TotalCost = cost.TotalCost.Add(al.TotalCost)
		cost.TotalSell = cost.TotalSell.Add(al.SellPrice)
	}
	return cost, nil
}

func (a *JobAllocator) newID() AllocationID {
	if a.NewID != nil {
		return AllocationID(a.NewID())
	}
	return AllocationID(uuid.NewString())
}
