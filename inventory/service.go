package inventory

import (
	"context"
	"time"
)

// Inventory bundles the components that share one ledger: every write path
// goes through the same store, lock and projector.
type Inventory struct {
	Ledger    *Ledger
	Catalog   *Catalog
	Resolver  *Resolver
	Locations *LocationGraph
	Allocator *JobAllocator
}

type Option func(*Inventory)

// WithLocker replaces the in-process KeyedMutex, e.g. with a Redis lock
// when several processes share one database.
func WithLocker(l Locker) Option {
	return func(inv *Inventory) { inv.Ledger.Locks = l }
}

func WithPublisher(p Publisher) Option {
	return func(inv *Inventory) { inv.Ledger.Publisher = p }
}

func WithClock(clock func() time.Time) Option {
	return func(inv *Inventory) {
		inv.Ledger.Clock = clock
		inv.Ledger.Projector.Clock = clock
	}
}

func WithDefaultMinStock(n int64) Option {
	return func(inv *Inventory) { inv.Catalog.DefaultMinStock = n }
}

func New(store TxStore, opts ...Option) *Inventory {
	ledger := NewLedger(store)
	inv := &Inventory{
		Ledger:    ledger,
		Catalog:   &Catalog{ledger: ledger},
		Resolver:  &Resolver{Store: store},
		Locations: &LocationGraph{ledger: ledger},
		Allocator: &JobAllocator{ledger: ledger},
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Publishers fans committed entries out to several publishers in order.
type Publishers []Publisher

func (ps Publishers) PublishEntries(ctx context.Context, entries []LedgerEntry) {
	for _, p := range ps {
		p.PublishEntries(ctx, entries)
	}
}
