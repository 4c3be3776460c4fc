/*
location.go - Storage location tree

PURPOSE:
  Vehicles, buildings and containers form a tree through their parent
  link. Parts point at one location by key; moving a part is a Transfer
  ledger entry, so location history is audited by the same append-only log
  as quantities.

INVARIANT:
  The parent chain of every location is finite and acyclic. MoveLocation
  walks the proposed ancestor chain to the root and refuses the move when
  the location being moved shows up in it.

  Building SHOP
    └── Container SHELF-A
  Vehicle VAN-1
    └── Container VAN-1-BIN-3

  Move(SHOP, SHELF-A) -> ErrCycle (SHELF-A's chain contains SHOP)

Graph writes share one lock key so two concurrent moves cannot each pass
the cycle check and together build a loop.
*/
package inventory

import (
	"context"
	"fmt"
	"strings"
)

const locationsLockKey = "locations"

type NewLocation struct {
	ID       string
	Name     string
	Kind     LocationKind
	ParentID LocationID
}

type TransferInput struct {
	PartCode PartCode
	From     LocationID
	To       LocationID
	Reason   string
	Actor    string
}

type LocationGraph struct {
	ledger *Ledger
}

func (g *LocationGraph) Get(ctx context.Context, id LocationID) (Location, error) {
	id, err := NormalizeLocationID(string(id))
	if err != nil {
		return Location{}, err
	}
	return g.ledger.Store.GetLocation(ctx, id)
}

func (g *LocationGraph) List(ctx context.Context) ([]Location, error) {
	return g.ledger.Store.ListLocations(ctx)
}

// CreateLocation adds an active location under an existing parent, or as a
// root when ParentID is empty.
func (g *LocationGraph) CreateLocation(ctx context.Context, in NewLocation) (Location, error) {
	id, err := NormalizeLocationID(in.ID)
	if err != nil {
		return Location{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Location{}, invalid("name", "is required")
	}
	if !in.Kind.Valid() {
		return Location{}, invalid("kind", fmt.Sprintf("unknown location kind %q", in.Kind))
	}

	now := g.ledger.now()
	loc := Location{ID: id, Name: name, Kind: in.Kind, Active: true, CreatedAt: now, UpdatedAt: now}

	err = g.writeGraph(ctx, func(s Store) error {
		if in.ParentID != "" {
			parent, err := NormalizeLocationID(string(in.ParentID))
			if err != nil {
				return err
			}
			if parent == id {
				return fmt.Errorf("%w: %s cannot be its own parent", ErrCycle, id)
			}
			if _, err := s.GetLocation(ctx, parent); err != nil {
				return err
			}
			loc.ParentID = parent
		}
		return s.InsertLocation(ctx, loc)
	})
	if err != nil {
		return Location{}, err
	}
	return loc, nil
}

// MoveLocation re-parents a location. An empty newParent makes it a root.
func (g *LocationGraph) MoveLocation(ctx context.Context, id, newParent LocationID) (Location, error) {
	id, err := NormalizeLocationID(string(id))
	if err != nil {
		return Location{}, err
	}
	if newParent != "" {
		if newParent, err = NormalizeLocationID(string(newParent)); err != nil {
			return Location{}, err
		}
	}

	var moved Location
	err = g.writeGraph(ctx, func(s Store) error {
		loc, err := s.GetLocation(ctx, id)
		if err != nil {
			return err
		}

		seen := map[LocationID]bool{}
		for cur := newParent; cur != ""; {
			if cur == id {
				return fmt.Errorf("%w: %s is an ancestor of %s", ErrCycle, id, newParent)
			}
			if seen[cur] {
				return fmt.Errorf("%w: existing chain above %s loops at %s", ErrCycle, newParent, cur)
			}
			seen[cur] = true
			next, err := s.GetLocation(ctx, cur)
			if err != nil {
				return err
			}
			cur = next.ParentID
		}

		loc.ParentID = newParent
		loc.UpdatedAt = g.ledger.now()
		if err := s.UpdateLocation(ctx, loc); err != nil {
			return err
		}
		moved = loc
		return nil
	})
	return moved, err
}

// AncestryPath returns the chain from the root down to id, inclusive.
func (g *LocationGraph) AncestryPath(ctx context.Context, id LocationID) ([]Location, error) {
	id, err := NormalizeLocationID(string(id))
	if err != nil {
		return nil, err
	}

	var path []Location
	seen := map[LocationID]bool{}
	for cur := id; cur != ""; {
		if seen[cur] {
			return nil, fmt.Errorf("%w: chain above %s loops at %s", ErrCycle, id, cur)
		}
		seen[cur] = true
		loc, err := g.ledger.Store.GetLocation(ctx, cur)
		if err != nil {
			return nil, err
		}
		path = append(path, loc)
		cur = loc.ParentID
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// SetActive flips the active flag. Inactive locations cannot take part in
// transfers.
func (g *LocationGraph) SetActive(ctx context.Context, id LocationID, active bool) (Location, error) {
	id, err := NormalizeLocationID(string(id))
	if err != nil {
		return Location{}, err
	}
	var updated Location
	err = g.writeGraph(ctx, func(s Store) error {
		loc, err := s.GetLocation(ctx, id)
		if err != nil {
			return err
		}
		loc.Active = active
		loc.UpdatedAt = g.ledger.now()
		updated = loc
		return s.UpdateLocation(ctx, loc)
	})
	return updated, err
}

// Transfer moves a part between locations by appending a zero-quantity
// Transfer entry. Unusable locations are reported as ErrInvalidLocation.
func (g *LocationGraph) Transfer(ctx context.Context, in TransferInput) (EntryID, error) {
	return g.ledger.Append(ctx, LedgerEntry{
		PartCode:     in.PartCode,
		Kind:         KindTransfer,
		FromLocation: in.From,
		ToLocation:   in.To,
		Note:         in.Reason,
		Actor:        in.Actor,
	})
}

func (g *LocationGraph) writeGraph(ctx context.Context, fn func(Store) error) error {
	unlock, err := g.ledger.Locks.Lock(ctx, locationsLockKey)
	if err != nil {
		return err
	}
	defer unlock()
	return g.ledger.Store.WithTx(ctx, fn)
}
