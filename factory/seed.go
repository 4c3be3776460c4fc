/*
Package factory provides JSON to Go inventory seed conversion.

PURPOSE:
  Converts JSON seed documents into the inputs of the inventory package:
  locations, parts and opening ledger movements. Demo scenarios and
  initial stock takes are written as JSON; the factory turns them into
  the proper Go structs and Apply replays them through the public API,
  so every seeded movement passes the same validation as a live one.

JSON SCHEMA:
  {
    "locations": [
      {"id": "WH1", "name": "Main warehouse", "kind": "building"},
      {"id": "VAN1", "name": "Van 1", "kind": "vehicle", "parent_id": "WH1"}
    ],
    "parts": [
      {"code": "W100", "description": "Widget", "markup_percent": "25",
       "min_stock": 5, "location_id": "WH1"}
    ],
    "movements": [
      {"part_code": "W100", "kind": "purchase", "delta": 10, "unit_cost": "5.00"}
    ]
  }

ORDERING:
  Locations are created in document order, so a parent must precede its
  children. Movements are appended in document order.

JOB USAGE:
  A consumption with a job_id is replayed as a stock allocation to that
  job, so the usage counters and job costs match a live allocation.
  job_id on any other kind is rejected.

USAGE:
  seed, err := factory.ParseSeed(jsonString)
  if err != nil { ... }
  err = seed.Apply(ctx, inv, "seed")

SEE ALSO:
  - api/scenarios.go: Demo scenarios built from seed documents
  - inventory/ledger.go: Append validation
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fieldops/partsledger/inventory"
	"github.com/shopspring/decimal"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// SeedJSON is the JSON representation of a seed document.
type SeedJSON struct {
	Locations []LocationJSON `json:"locations,omitempty"`
	Parts     []PartJSON     `json:"parts,omitempty"`
	Movements []MovementJSON `json:"movements,omitempty"`
}

type LocationJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"` // vehicle, building, container
	ParentID string `json:"parent_id,omitempty"`
}

type PartJSON struct {
	Code          string          `json:"code"`
	Description   string          `json:"description"`
	Category      string          `json:"category,omitempty"`
	Brand         string          `json:"brand,omitempty"`
	MarkupPercent decimal.Decimal `json:"markup_percent"`
	MinStock      *int64          `json:"min_stock,omitempty"`
	LocationID    string          `json:"location_id,omitempty"`
}

type MovementJSON struct {
	PartCode string              `json:"part_code"`
	Kind     string              `json:"kind"`
	Delta    int64               `json:"delta"`
	UnitCost decimal.NullDecimal `json:"unit_cost"`
	JobID    string              `json:"job_id,omitempty"`
	Note     string              `json:"note,omitempty"`
}

// =============================================================================
// SEED
// =============================================================================

// Seed is a parsed seed document in inventory terms.
type Seed struct {
	Locations []inventory.NewLocation
	Parts     []inventory.NewPart
	Movements []inventory.LedgerEntry
}

// ParseSeed parses a JSON string into a Seed.
func ParseSeed(jsonStr string) (*Seed, error) {
	var sj SeedJSON
	if err := json.Unmarshal([]byte(jsonStr), &sj); err != nil {
		return nil, fmt.Errorf("failed to parse seed JSON: %w", err)
	}
	return FromJSON(sj)
}

// FromJSON converts SeedJSON to a Seed. Only the shape is checked here;
// domain rules are enforced when the seed is applied.
func FromJSON(sj SeedJSON) (*Seed, error) {
	seed := &Seed{}

	for i, lj := range sj.Locations {
		kind := inventory.LocationKind(lj.Kind)
		if !kind.Valid() {
			return nil, fmt.Errorf("locations[%d]: unknown kind %q", i, lj.Kind)
		}
		seed.Locations = append(seed.Locations, inventory.NewLocation{
			ID:       lj.ID,
			Name:     lj.Name,
			Kind:     kind,
			ParentID: inventory.LocationID(lj.ParentID),
		})
	}

	for _, pj := range sj.Parts {
		seed.Parts = append(seed.Parts, inventory.NewPart{
			Code:          pj.Code,
			Description:   pj.Description,
			Category:      pj.Category,
			Brand:         pj.Brand,
			MarkupPercent: pj.MarkupPercent,
			MinStock:      pj.MinStock,
			LocationID:    inventory.LocationID(pj.LocationID),
		})
	}

	for i, mj := range sj.Movements {
		kind := inventory.MovementKind(mj.Kind)
		if !kind.Valid() {
			return nil, fmt.Errorf("movements[%d]: unknown kind %q", i, mj.Kind)
		}
		if mj.JobID != "" && kind != inventory.KindConsumption {
			return nil, fmt.Errorf("movements[%d]: job_id only applies to consumption", i)
		}
		seed.Movements = append(seed.Movements, inventory.LedgerEntry{
			PartCode: inventory.PartCode(mj.PartCode),
			Kind:     kind,
			Delta:    mj.Delta,
			UnitCost: mj.UnitCost,
			JobID:    inventory.JobID(mj.JobID),
			Note:     mj.Note,
		})
	}

	return seed, nil
}

// Apply creates the seed's locations and parts and appends its movements,
// stopping at the first error. Each step is its own atomic write, so a
// failed Apply leaves the steps before it in place.
func (s *Seed) Apply(ctx context.Context, inv *inventory.Inventory, actor string) error {
	for _, l := range s.Locations {
		if _, err := inv.Locations.CreateLocation(ctx, l); err != nil {
			return fmt.Errorf("location %s: %w", l.ID, err)
		}
	}
	for _, p := range s.Parts {
		if _, err := inv.Catalog.Create(ctx, p); err != nil {
			return fmt.Errorf("part %s: %w", p.Code, err)
		}
	}
	for i, m := range s.Movements {
		m.Actor = actor
		if err := applyMovement(ctx, inv, m); err != nil {
			return fmt.Errorf("movement %d (%s %s): %w", i, m.Kind, m.PartCode, err)
		}
	}
	return nil
}

func applyMovement(ctx context.Context, inv *inventory.Inventory, m inventory.LedgerEntry) error {
	if m.JobID == "" {
		_, err := inv.Ledger.Append(ctx, m)
		return err
	}
	_, err := inv.Allocator.Allocate(ctx, inventory.AllocateInput{
		JobID:    m.JobID,
		PartCode: m.PartCode,
		Quantity: -m.Delta,
		Source:   inventory.SourceStock,
		Note:     m.Note,
		Actor:    m.Actor,
	})
	return err
}
