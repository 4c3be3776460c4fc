// Package store provides in-process inventory.TxStore implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fieldops/partsledger/inventory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	state
}

type state struct {
	parts       map[inventory.PartCode]inventory.Part
	entries     map[inventory.PartCode][]inventory.LedgerEntry
	entryIndex  map[inventory.EntryID]inventory.LedgerEntry
	locations   map[inventory.LocationID]inventory.Location
	allocations map[inventory.AllocationID]inventory.Allocation
	seq         inventory.EntryID
}

func newState() state {
	return state{
		parts:       make(map[inventory.PartCode]inventory.Part),
		entries:     make(map[inventory.PartCode][]inventory.LedgerEntry),
		entryIndex:  make(map[inventory.EntryID]inventory.LedgerEntry),
		locations:   make(map[inventory.LocationID]inventory.Location),
		allocations: make(map[inventory.AllocationID]inventory.Allocation),
	}
}

func NewMemory() *Memory {
	return &Memory{state: newState()}
}

func (m *Memory) GetPart(_ context.Context, code inventory.PartCode) (inventory.Part, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPart(code)
}

func (m *Memory) ListParts(_ context.Context) ([]inventory.Part, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listParts(), nil
}

func (m *Memory) InsertPart(_ context.Context, p inventory.Part) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertPart(p)
}

func (m *Memory) UpdatePart(_ context.Context, p inventory.Part) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePart(p)
}

func (m *Memory) DeletePart(_ context.Context, code inventory.PartCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletePart(code)
}

// AppendEntry adds a single entry. Append-only.
func (m *Memory) AppendEntry(_ context.Context, e inventory.LedgerEntry) (inventory.EntryID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendEntry(e)
}

func (m *Memory) Entries(_ context.Context, code inventory.PartCode) ([]inventory.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesOf(code), nil
}

func (m *Memory) GetEntry(_ context.Context, id inventory.EntryID) (inventory.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEntry(id)
}

func (m *Memory) GetLocation(_ context.Context, id inventory.LocationID) (inventory.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocation(id)
}

func (m *Memory) ListLocations(_ context.Context) ([]inventory.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocations(), nil
}

func (m *Memory) InsertLocation(_ context.Context, l inventory.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocation(l)
}

func (m *Memory) UpdateLocation(_ context.Context, l inventory.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocation(l)
}

func (m *Memory) InsertAllocation(_ context.Context, a inventory.Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertAllocation(a)
}

func (m *Memory) GetAllocation(_ context.Context, id inventory.AllocationID) (inventory.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAllocation(id)
}

func (m *Memory) AllocationByEntry(_ context.Context, id inventory.EntryID) (inventory.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allocationByEntry(id)
}

func (m *Memory) DeleteAllocation(_ context.Context, id inventory.AllocationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteAllocation(id)
}

func (m *Memory) AllocationsByJob(_ context.Context, job inventory.JobID) ([]inventory.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allocationsByJob(job), nil
}

func (m *Memory) CountAllocationsByPart(_ context.Context, code inventory.PartCode) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countAllocationsByPart(code), nil
}

// =============================================================================
// STATE OPERATIONS - Callers hold the lock
// =============================================================================

func (s *state) getPart(code inventory.PartCode) (inventory.Part, error) {
	p, ok := s.parts[code]
	if !ok {
		return inventory.Part{}, fmt.Errorf("%s: %w", code, inventory.ErrPartNotFound)
	}
	return p, nil
}

func (s *state) listParts() []inventory.Part {
	out := make([]inventory.Part, 0, len(s.parts))
	for _, p := range s.parts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (s *state) insertPart(p inventory.Part) error {
	if _, ok := s.parts[p.Code]; ok {
		return fmt.Errorf("part %s: %w", p.Code, inventory.ErrDuplicateCode)
	}
	s.parts[p.Code] = p
	return nil
}

func (s *state) updatePart(p inventory.Part) error {
	if _, ok := s.parts[p.Code]; !ok {
		return fmt.Errorf("%s: %w", p.Code, inventory.ErrPartNotFound)
	}
	s.parts[p.Code] = p
	return nil
}

func (s *state) deletePart(code inventory.PartCode) error {
	if _, ok := s.parts[code]; !ok {
		return fmt.Errorf("%s: %w", code, inventory.ErrPartNotFound)
	}
	delete(s.parts, code)
	return nil
}

func (s *state) appendEntry(e inventory.LedgerEntry) (inventory.EntryID, error) {
	s.seq++
	e.ID = s.seq
	s.entries[e.PartCode] = append(s.entries[e.PartCode], e)
	s.entryIndex[e.ID] = e
	return e.ID, nil
}

func (s *state) entriesOf(code inventory.PartCode) []inventory.LedgerEntry {
	src := s.entries[code]
	out := make([]inventory.LedgerEntry, len(src))
	copy(out, src)
	return out
}

func (s *state) getEntry(id inventory.EntryID) (inventory.LedgerEntry, error) {
	e, ok := s.entryIndex[id]
	if !ok {
		return inventory.LedgerEntry{}, fmt.Errorf("%d: %w", id, inventory.ErrEntryNotFound)
	}
	return e, nil
}

func (s *state) getLocation(id inventory.LocationID) (inventory.Location, error) {
	l, ok := s.locations[id]
	if !ok {
		return inventory.Location{}, fmt.Errorf("%s: %w", id, inventory.ErrLocationNotFound)
	}
	return l, nil
}

func (s *state) listLocations() []inventory.Location {
	out := make([]inventory.Location, 0, len(s.locations))
	for _, l := range s.locations {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) insertLocation(l inventory.Location) error {
	if _, ok := s.locations[l.ID]; ok {
		return fmt.Errorf("location %s: %w", l.ID, inventory.ErrDuplicateCode)
	}
	s.locations[l.ID] = l
	return nil
}

func (s *state) updateLocation(l inventory.Location) error {
	if _, ok := s.locations[l.ID]; !ok {
		return fmt.Errorf("%s: %w", l.ID, inventory.ErrLocationNotFound)
	}
	s.locations[l.ID] = l
	return nil
}

func (s *state) insertAllocation(a inventory.Allocation) error {
	if _, ok := s.allocations[a.ID]; ok {
		return fmt.Errorf("allocation %s: %w", a.ID, inventory.ErrDuplicateCode)
	}
	if owner, err := s.allocationByEntry(a.EntryID); err == nil {
		return fmt.Errorf("entry %d already backs allocation %s: %w", a.EntryID, owner.ID, inventory.ErrDuplicateCode)
	}
	s.allocations[a.ID] = a
	return nil
}

func (s *state) getAllocation(id inventory.AllocationID) (inventory.Allocation, error) {
	a, ok := s.allocations[id]
	if !ok {
		return inventory.Allocation{}, fmt.Errorf("%s: %w", id, inventory.ErrAllocationNotFound)
	}
	return a, nil
}

func (s *state) allocationByEntry(id inventory.EntryID) (inventory.Allocation, error) {
	if id != 0 {
		for _, a := range s.allocations {
			if a.EntryID == id {
				return a, nil
			}
		}
	}
	return inventory.Allocation{}, fmt.Errorf("entry %d: %w", id, inventory.ErrAllocationNotFound)
}

func (s *state) deleteAllocation(id inventory.AllocationID) error {
	if _, ok := s.allocations[id]; !ok {
		return fmt.Errorf("%s: %w", id, inventory.ErrAllocationNotFound)
	}
	delete(s.allocations, id)
	return nil
}

func (s *state) allocationsByJob(job inventory.JobID) []inventory.Allocation {
	var out []inventory.Allocation
	for _, a := range s.allocations {
		if a.JobID == job {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) countAllocationsByPart(code inventory.PartCode) int {
	n := 0
	for _, a := range s.allocations {
		if a.PartCode == code {
			n++
		}
	}
	return n
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are serialized: one writer or reader at a time.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{s: &tm.state}); err != nil {
		tm.state = snapshot
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() state {
	snap := newState()
	for k, v := range tm.parts {
		snap.parts[k] = v
	}
	for k, v := range tm.entries {
		snap.entries[k] = append([]inventory.LedgerEntry(nil), v...)
	}
	for k, v := range tm.entryIndex {
		snap.entryIndex[k] = v
	}
	for k, v := range tm.locations {
		snap.locations[k] = v
	}
	for k, v := range tm.allocations {
		snap.allocations[k] = v
	}
	snap.seq = tm.seq
	return snap
}

// txMemoryView runs against the state while WithTx holds the lock.
type txMemoryView struct {
	s *state
}

func (tv *txMemoryView) GetPart(_ context.Context, code inventory.PartCode) (inventory.Part, error) {
	return tv.s.getPart(code)
}

func (tv *txMemoryView) ListParts(_ context.Context) ([]inventory.Part, error) {
	return tv.s.listParts(), nil
}

func (tv *txMemoryView) InsertPart(_ context.Context, p inventory.Part) error {
	return tv.s.insertPart(p)
}

func (tv *txMemoryView) UpdatePart(_ context.Context, p inventory.Part) error {
	return tv.s.updatePart(p)
}

func (tv *txMemoryView) DeletePart(_ context.Context, code inventory.PartCode) error {
	return tv.s.deletePart(code)
}

func (tv *txMemoryView) AppendEntry(_ context.Context, e inventory.LedgerEntry) (inventory.EntryID, error) {
	return tv.s.appendEntry(e)
}

func (tv *txMemoryView) Entries(_ context.Context, code inventory.PartCode) ([]inventory.LedgerEntry, error) {
	return tv.s.entriesOf(code), nil
}

func (tv *txMemoryView) GetEntry(_ context.Context, id inventory.EntryID) (inventory.LedgerEntry, error) {
	return tv.s.getEntry(id)
}

func (tv *txMemoryView) GetLocation(_ context.Context, id inventory.LocationID) (inventory.Location, error) {
	return tv.s.getLocation(id)
}

func (tv *txMemoryView) ListLocations(_ context.Context) ([]inventory.Location, error) {
	return tv.s.listLocations(), nil
}

func (tv *txMemoryView) InsertLocation(_ context.Context, l inventory.Location) error {
	return tv.s.insertLocation(l)
}

func (tv *txMemoryView) UpdateLocation(_ context.Context, l inventory.Location) error {
	return tv.s.updateLocation(l)
}

func (tv *txMemoryView) InsertAllocation(_ context.Context, a inventory.Allocation) error {
	return tv.s.insertAllocation(a)
}

func (tv *txMemoryView) GetAllocation(_ context.Context, id inventory.AllocationID) (inventory.Allocation, error) {
	return tv.s.getAllocation(id)
}

func (tv *txMemoryView) AllocationByEntry(_ context.Context, id inventory.EntryID) (inventory.Allocation, error) {
	return tv.s.allocationByEntry(id)
}

func (tv *txMemoryView) DeleteAllocation(_ context.Context, id inventory.AllocationID) error {
	return tv.s.deleteAllocation(id)
}

func (tv *txMemoryView) AllocationsByJob(_ context.Context, job inventory.JobID) ([]inventory.Allocation, error) {
	return tv.s.allocationsByJob(job), nil
}

func (tv *txMemoryView) CountAllocationsByPart(_ context.Context, code inventory.PartCode) (int, error) {
	return tv.s.countAllocationsByPart(code), nil
}
