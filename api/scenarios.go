/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the inventory with realistic
	data for testing and demos. Each scenario is a factory seed document:
	locations, parts and opening movements, appended through the same
	ledger path as live traffic.

AVAILABLE SCENARIOS:

	fifo-basics:  One part bought twice at different costs
	fleet:        Warehouse with two vans, stock spread across them
	low-stock:    Parts at and below their minimum stock

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "fifo-basics"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description and seed JSON
 2. Nothing else; LoadScenario looks scenarios up by ID

NOTE:

	The ledger is append-only, so scenarios cannot reset the database.
	Loading a scenario whose codes already exist fails with 409 after
	the steps before the conflict have been written. Load scenarios into
	a fresh database (DATABASE_PATH=:memory: is convenient).
	Routes are only mounted in development.

SEE ALSO:
  - factory/seed.go: Seed JSON schema and Apply
*/
package api

import (
	"net/http"

	"github.com/fieldops/partsledger/factory"
)

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	seed string
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fifo-basics",
		Name:        "FIFO Basics",
		Description: "W100 bought 10 @ 5.00 then 10 @ 7.00; allocate 12 to see both lots priced",
		seed: `{
  "locations": [
    {"id": "WH1", "name": "Main warehouse", "kind": "building"}
  ],
  "parts": [
    {"code": "W100", "description": "Widget 100", "category": "fasteners",
     "markup_percent": "25", "min_stock": 5, "location_id": "WH1"}
  ],
  "movements": [
    {"part_code": "W100", "kind": "purchase", "delta": 10, "unit_cost": "5.00", "note": "opening order"},
    {"part_code": "W100", "kind": "purchase", "delta": 10, "unit_cost": "7.00", "note": "restock"}
  ]
}`,
	},
	{
		ID:          "fleet",
		Name:        "Fleet",
		Description: "Warehouse with shelving and two service vans, parts stocked on each",
		seed: `{
  "locations": [
    {"id": "WH1", "name": "Main warehouse", "kind": "building"},
    {"id": "SHELF-A", "name": "Shelf A", "kind": "container", "parent_id": "WH1"},
    {"id": "VAN1", "name": "Service van 1", "kind": "vehicle", "parent_id": "WH1"},
    {"id": "VAN2", "name": "Service van 2", "kind": "vehicle", "parent_id": "WH1"},
    {"id": "VAN1-BOX", "name": "Van 1 parts box", "kind": "container", "parent_id": "VAN1"}
  ],
  "parts": [
    {"code": "FLT-001", "description": "Air filter", "category": "filters", "brand": "Acme",
     "markup_percent": "40", "min_stock": 4, "location_id": "SHELF-A"},
    {"code": "VLV-220", "description": "Ball valve 22mm", "category": "plumbing", "brand": "Flowco",
     "markup_percent": "30", "min_stock": 2, "location_id": "VAN1-BOX"},
    {"code": "CBL-16", "description": "Cable 1.5mm, 100m", "category": "electrical",
     "markup_percent": "15", "location_id": "VAN2"}
  ],
  "movements": [
    {"part_code": "FLT-001", "kind": "purchase", "delta": 12, "unit_cost": "8.50"},
    {"part_code": "FLT-001", "kind": "purchase", "delta": 6, "unit_cost": "9.10"},
    {"part_code": "VLV-220", "kind": "purchase", "delta": 5, "unit_cost": "14.25"},
    {"part_code": "VLV-220", "kind": "consumption", "delta": -2, "job_id": "JOB-1001"},
    {"part_code": "CBL-16", "kind": "purchase", "delta": 3, "unit_cost": "42.00"},
    {"part_code": "CBL-16", "kind": "loss", "delta": -1, "note": "damaged in transit"}
  ]
}`,
	},
	{
		ID:          "low-stock",
		Name:        "Low Stock",
		Description: "One part at its minimum, one below, one comfortably stocked",
		seed: `{
  "locations": [
    {"id": "WH1", "name": "Main warehouse", "kind": "building"}
  ],
  "parts": [
    {"code": "FUSE-10", "description": "Fuse 10A", "markup_percent": "50", "min_stock": 10, "location_id": "WH1"},
    {"code": "FUSE-20", "description": "Fuse 20A", "markup_percent": "50", "min_stock": 10, "location_id": "WH1"},
    {"code": "TAPE-19", "description": "Insulation tape 19mm", "markup_percent": "60", "min_stock": 5, "location_id": "WH1"}
  ],
  "movements": [
    {"part_code": "FUSE-10", "kind": "purchase", "delta": 10, "unit_cost": "0.40"},
    {"part_code": "FUSE-20", "kind": "purchase", "delta": 12, "unit_cost": "0.45"},
    {"part_code": "FUSE-20", "kind": "consumption", "delta": -9, "job_id": "JOB-2001"},
    {"part_code": "TAPE-19", "kind": "purchase", "delta": 40, "unit_cost": "1.10"}
  ]
}`,
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[LoadScenarioRequest](w, r)
	if !ok {
		return
	}

	var scenario *ScenarioDTO
	for i := range scenarios {
		if scenarios[i].ID == req.ScenarioID {
			scenario = &scenarios[i]
			break
		}
	}
	if scenario == nil {
		writeError(w, http.StatusNotFound, "unknown scenario", "not_found", nil)
		return
	}

	seed, err := factory.ParseSeed(scenario.seed)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := seed.Apply(r.Context(), h.Inv, "scenario:"+scenario.ID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.Log.WithField("scenario", scenario.ID).Info("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": scenario.ID})
}
