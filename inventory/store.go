/*
store.go - Persistence interfaces

PURPOSE:
  Defines the boundary between the ledger logic and the database. The
  ledger table is append-only through these interfaces: there is an
  AppendEntry but no update or delete of entries.

KEY INTERFACES:
  PartStore:       Catalog rows
  LedgerStore:     Append-only ledger entries
  LocationStore:   Location tree nodes
  AllocationStore: Job part allocations
  Store:           All of the above
  TxStore:         Store + WithTx for atomic multi-table writes
  Locker:          Per-key single-writer lock taken around WithTx

ATOMIC UNIT:
  Pricing, append, projection and allocation for one part run inside one
  WithTx call, under the part's lock. If fn returns an error nothing it
  wrote is kept.

IMPLEMENTATIONS:
  - inventory/store/memory.go: In-memory, snapshot rollback
  - store/sqlite/sqlite.go:    SQLite via database/sql
*/
package inventory

import "context"

// =============================================================================
// STORE INTERFACES
// =============================================================================

type PartStore interface {
	// GetPart returns ErrPartNotFound when the code is unknown.
	GetPart(ctx context.Context, code PartCode) (Part, error)
	ListParts(ctx context.Context) ([]Part, error)
	// InsertPart returns ErrDuplicateCode when the code exists.
	InsertPart(ctx context.Context, p Part) error
	UpdatePart(ctx context.Context, p Part) error
	DeletePart(ctx context.Context, code PartCode) error
}

// LedgerStore is APPEND-ONLY. No Update, No Delete.
type LedgerStore interface {
	// AppendEntry assigns the next sequence number and returns it.
	AppendEntry(ctx context.Context, e LedgerEntry) (EntryID, error)
	// Entries returns all entries for a part ordered by sequence ascending.
	Entries(ctx context.Context, code PartCode) ([]LedgerEntry, error)
	GetEntry(ctx context.Context, id EntryID) (LedgerEntry, error)
}

type LocationStore interface {
	GetLocation(ctx context.Context, id LocationID) (Location, error)
	ListLocations(ctx context.Context) ([]Location, error)
	InsertLocation(ctx context.Context, l Location) error
	UpdateLocation(ctx context.Context, l Location) error
}

type AllocationStore interface {
	InsertAllocation(ctx context.Context, a Allocation) error
	GetAllocation(ctx context.Context, id AllocationID) (Allocation, error)
	// AllocationByEntry returns the live allocation whose Consumption is
	// entry id, or ErrAllocationNotFound.
	AllocationByEntry(ctx context.Context, id EntryID) (Allocation, error)
	DeleteAllocation(ctx context.Context, id AllocationID) error
	AllocationsByJob(ctx context.Context, job JobID) ([]Allocation, error)
	CountAllocationsByPart(ctx context.Context, code PartCode) (int, error)
}

type Store interface {
	PartStore
	LedgerStore
	LocationStore
	AllocationStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// LOCKER - Single writer per part
// =============================================================================

// Locker serializes writers on the same key. Lock blocks until the key is
// free or ctx is done, and returns the function that releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// =============================================================================
// PUBLISHER - Post-commit notification of downstream consumers
// =============================================================================

// Publisher is told about entries after their transaction committed.
// It never takes part in keeping the catalog consistent, so a failed
// delivery is the publisher's to log; the committed write stands.
type Publisher interface {
	PublishEntries(ctx context.Context, entries []LedgerEntry)
}
