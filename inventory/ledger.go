/*
ledger.go - Append-only inventory movement log

PURPOSE:
  The Ledger is the source of truth for stock and cost. Every purchase,
  consumption, return, loss, transfer and adjustment is an entry here, and
  the catalog's cached fields are recomputed from these entries after each
  append.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. Σ delta of a part's entries == the part's cached stock.
  3. A Consumption never takes a part's stock below zero.
  4. Append + projection run in one transaction under the part's lock.

CORRECTIONS:
  Mistakes are offset, never edited. Giving back a consumption is a positive
  Adjustment whose Reverses field points at the consumption; FIFO then
  treats those units as undrawn again.

VALIDATION (rejected before any write):
  - unknown part
  - kind outside the enum, or delta sign the kind does not allow
  - Purchase without a unit cost; negative unit cost
  - locations on anything but a Transfer
  - Transfer with missing, equal, unknown or inactive locations, or a
    source that is not the part's current location
  - Reverses pointing at a missing, foreign, non-consuming or already
    reversed entry, or giving back more than was taken
  - Reverses pointing at a consumption a live job allocation owns; only
    Deallocate gives those units back
  - JobID on an entry appended through Append; job-linked consumptions
    come from the allocator, which is what keeps the usage counters honest

SEE ALSO:
  - projection.go: Aggregates recomputed after each append
  - allocator.go: Appends Consumption / reversal entries for jobs
  - location.go: Appends Transfer entries
*/
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	Store     TxStore
	Locks     Locker
	Projector *Projector
	// Publisher is optional.
	Publisher Publisher
	Clock     func() time.Time
}

func NewLedger(store TxStore) *Ledger {
	return &Ledger{
		Store:     store,
		Locks:     NewKeyedMutex(),
		Projector: &Projector{},
	}
}

// Append validates and appends one entry, then recomputes the part's
// catalog aggregates in the same transaction. Entries for a job go through
// JobAllocator instead.
func (l *Ledger) Append(ctx context.Context, e LedgerEntry) (EntryID, error) {
	code, err := NormalizePartCode(string(e.PartCode))
	if err != nil {
		return 0, err
	}
	e.PartCode = code
	if e.JobID != "" {
		return 0, invalid("job_id", "job usage is recorded by allocating the part to the job")
	}

	var appended LedgerEntry
	err = l.writePart(ctx, code, func(s Store) error {
		var err error
		appended, err = l.appendIn(ctx, s, e)
		return err
	})
	if err != nil {
		return 0, err
	}

	l.publish(ctx, appended)
	return appended.ID, nil
}

// History returns a part's entries in sequence order. Read-only.
func (l *Ledger) History(ctx context.Context, code PartCode) ([]LedgerEntry, error) {
	code, err := NormalizePartCode(string(code))
	if err != nil {
		return nil, err
	}
	if _, err := l.Store.GetPart(ctx, code); err != nil {
		return nil, err
	}
	return l.Store.Entries(ctx, code)
}

// writePart runs fn as the atomic unit for one part: part lock, then
// transaction.
func (l *Ledger) writePart(ctx context.Context, code PartCode, fn func(Store) error) error {
	unlock, err := l.Locks.Lock(ctx, partLockKey(code))
	if err != nil {
		return err
	}
	defer unlock()
	return l.Store.WithTx(ctx, fn)
}

func (l *Ledger) appendIn(ctx context.Context, s Store, e LedgerEntry) (LedgerEntry, error) {
	part, err := s.GetPart(ctx, e.PartCode)
	if err != nil {
		return LedgerEntry{}, err
	}
	history, err := s.Entries(ctx, e.PartCode)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("load entries for %s: %w", e.PartCode, err)
	}

	if err := l.validate(ctx, s, part, history, &e); err != nil {
		return LedgerEntry{}, err
	}

	e.RecordedAt = l.now()
	id, err := s.AppendEntry(ctx, e)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("append entry for %s: %w", e.PartCode, err)
	}
	e.ID = id

	if _, err := l.Projector.Recompute(ctx, s, e.PartCode); err != nil {
		return LedgerEntry{}, err
	}
	return e, nil
}

func (l *Ledger) publish(ctx context.Context, entries ...LedgerEntry) {
	if l.Publisher == nil || len(entries) == 0 {
		return
	}
	l.Publisher.PublishEntries(ctx, entries)
}

func (l *Ledger) now() time.Time {
	if l.Clock != nil {
		return l.Clock().UTC()
	}
	return time.Now().UTC()
}

// =============================================================================
// VALIDATION
// =============================================================================

func (l *Ledger) validate(ctx context.Context, s Store, part Part, history []LedgerEntry, e *LedgerEntry) error {
	if !e.Kind.Valid() {
		return invalid("kind", fmt.Sprintf("unknown movement kind %q", e.Kind))
	}

	switch e.Kind.deltaRule() {
	case deltaPositive:
		if e.Delta <= 0 {
			return invalid("delta", fmt.Sprintf("must be positive for %s", e.Kind))
		}
	case deltaNegative:
		if e.Delta >= 0 {
			return invalid("delta", fmt.Sprintf("must be negative for %s", e.Kind))
		}
	case deltaZero:
		if e.Delta != 0 {
			return invalid("delta", fmt.Sprintf("must be zero for %s", e.Kind))
		}
	case deltaNonZero:
		if e.Delta == 0 {
			return invalid("delta", fmt.Sprintf("must not be zero for %s", e.Kind))
		}
	}

	if e.Kind == KindPurchase && !e.UnitCost.Valid {
		return invalid("unit_cost", "is required for a purchase")
	}
	if e.UnitCost.Valid && e.UnitCost.Decimal.IsNegative() {
		return invalid("unit_cost", "must not be negative")
	}

	if e.Kind == KindTransfer {
		if err := validateTransfer(ctx, s, part, e); err != nil {
			return err
		}
	} else if e.FromLocation != "" || e.ToLocation != "" {
		return invalid("location", "only transfers carry locations")
	}

	if e.Reverses != 0 {
		if err := validateReversal(ctx, s, history, e); err != nil {
			return err
		}
	}

	if e.Kind == KindConsumption {
		stock := stockOf(history)
		if stock+e.Delta < 0 {
			return &InsufficientStockError{PartCode: e.PartCode, Requested: -e.Delta, Available: stock}
		}
	}
	return nil
}

func validateTransfer(ctx context.Context, s Store, part Part, e *LedgerEntry) error {
	if e.FromLocation == "" || e.ToLocation == "" {
		return fmt.Errorf("%w: transfer needs both from and to", ErrInvalidLocation)
	}
	from, err := NormalizeLocationID(string(e.FromLocation))
	if err != nil {
		return err
	}
	to, err := NormalizeLocationID(string(e.ToLocation))
	if err != nil {
		return err
	}
	if from == to {
		return fmt.Errorf("%w: from and to are both %s", ErrInvalidLocation, from)
	}
	if part.LocationID != "" && part.LocationID != from {
		return fmt.Errorf("%w: %s is at %s, not %s", ErrInvalidLocation, part.Code, part.LocationID, from)
	}
	for _, id := range []LocationID{from, to} {
		loc, err := s.GetLocation(ctx, id)
		if errors.Is(err, ErrLocationNotFound) {
			return fmt.Errorf("%w: %s does not exist", ErrInvalidLocation, id)
		}
		if err != nil {
			return err
		}
		if !loc.Active {
			return fmt.Errorf("%w: %s is inactive", ErrInvalidLocation, id)
		}
	}
	e.FromLocation, e.ToLocation = from, to
	return nil
}

func validateReversal(ctx context.Context, s Store, history []LedgerEntry, e *LedgerEntry) error {
	if e.Delta <= 0 {
		return invalid("reverses", "only a positive entry can give back a consumption")
	}

	var original *LedgerEntry
	for i := range history {
		if history[i].ID == e.Reverses {
			original = &history[i]
		}
		if history[i].Reverses == e.Reverses {
			return invalid("reverses", fmt.Sprintf("entry %d is already reversed", e.Reverses))
		}
	}
	if original == nil {
		if _, err := s.GetEntry(ctx, e.Reverses); err != nil {
			return err
		}
		return invalid("reverses", fmt.Sprintf("entry %d belongs to another part", e.Reverses))
	}
	if original.Delta >= 0 {
		return invalid("reverses", fmt.Sprintf("entry %d is not a consuming entry", e.Reverses))
	}
	if e.Delta > -original.Delta {
		return invalid("delta", fmt.Sprintf("gives back %d but entry %d took %d", e.Delta, e.Reverses, -original.Delta))
	}

	owner, err := s.AllocationByEntry(ctx, e.Reverses)
	if err == nil {
		return invalid("reverses", fmt.Sprintf("entry %d belongs to allocation %s; deallocate it instead", e.Reverses, owner.ID))
	}
	if !errors.Is(err, ErrAllocationNotFound) {
		return err
	}
	return nil
}

func stockOf(entries []LedgerEntry) int64 {
	var stock int64
	for _, e := range entries {
		stock += e.Delta
	}
	return stock
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// Drift is a part whose cached aggregates disagreed with its ledger.
type Drift struct {
	PartCode PartCode
	Cached   Part
	Replayed Part
}

// Reconcile reprojects one part under its lock. It reports the drift it
// repaired, or nil when the cached row already matched the ledger.
func (l *Ledger) Reconcile(ctx context.Context, code PartCode) (*Drift, error) {
	code, err := NormalizePartCode(string(code))
	if err != nil {
		return nil, err
	}

	var drift *Drift
	err = l.writePart(ctx, code, func(s Store) error {
		cached, err := s.GetPart(ctx, code)
		if err != nil {
			return err
		}
		entries, err := s.Entries(ctx, code)
		if err != nil {
			return fmt.Errorf("load entries for %s: %w", code, err)
		}
		if SameAggregates(cached, Project(cached, entries)) {
			return nil
		}
		replayed, err := l.Projector.Recompute(ctx, s, code)
		if err != nil {
			return err
		}
		drift = &Drift{PartCode: code, Cached: cached, Replayed: replayed}
		return nil
	})
	return drift, err
}
