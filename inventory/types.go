/*
Package inventory provides the parts inventory ledger with FIFO cost accounting.

PURPOSE:
  Stock levels, acquisition costs and job-level part costs are all derived
  from one append-only ledger of inventory movements. The catalog row of a
  part only caches what the ledger already says; it is recomputed from the
  full ledger history every time the part's ledger grows.

KEY CONCEPTS IN THIS FILE (types.go):
  - PartCode / LocationID / JobID / AllocationID: Type-safe identifiers
  - MovementKind: Closed set of ledger movement kinds
  - Part: Catalog entry (descriptive fields + cached aggregates)
  - LedgerEntry: Immutable inventory movement
  - Lot / Pricing: FIFO view derived from the ledger, never stored
  - Location: Node of the storage location tree
  - Allocation: Part quantity and cost attached to a job

DESIGN PRINCIPLES:
  1. Immutability: Ledger entries are never modified, only offset
  2. Precision: Money uses decimal.Decimal, quantities are whole units
  3. Type Safety: Distinct identifier types prevent mixing keys
  4. Derivation: Cached catalog fields are always a function of the ledger

USAGE:
  entry := inventory.LedgerEntry{
      PartCode: "W100",
      Delta:    10,
      Kind:     inventory.KindPurchase,
      UnitCost: inventory.Cost(decimal.RequireFromString("5.00")),
  }
  id, err := ledger.Append(ctx, entry)

SEE ALSO:
  - ledger.go: Append validation and history
  - fifo.go: FIFO cost resolution
  - projection.go: Catalog aggregate recomputation
  - allocator.go: Job cost allocation
*/
package inventory

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PartCode string
type LocationID string
type JobID string
type AllocationID string

// EntryID is the ledger sequence number assigned by the store on append.
// It is strictly increasing and defines the FIFO order of entries.
type EntryID int64

const maxCodeLength = 32

// NormalizePartCode trims and upper-cases a caller-supplied part code and
// checks it only contains letters, digits, '-' and '_'.
func NormalizePartCode(raw string) (PartCode, error) {
	code, err := normalizeCode("part_code", raw)
	return PartCode(code), err
}

// NormalizeLocationID applies the same rules as NormalizePartCode to a
// location code.
func NormalizeLocationID(raw string) (LocationID, error) {
	code, err := normalizeCode("location_id", raw)
	return LocationID(code), err
}

func normalizeCode(field, raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return "", &ValidationError{Field: field, Reason: "is required"}
	}
	if len(code) > maxCodeLength {
		return "", &ValidationError{Field: field, Reason: "is longer than 32 characters"}
	}
	for _, r := range code {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", &ValidationError{Field: field, Reason: "must contain only letters, digits, '-' or '_'"}
		}
	}
	return code, nil
}

// =============================================================================
// MOVEMENT KIND - Closed set of ledger entry kinds
// =============================================================================

type MovementKind string

const (
	KindPurchase         MovementKind = "purchase"           // Stock bought from a supplier; creates a FIFO lot
	KindConsumption      MovementKind = "consumption"        // Stock used, normally on a job
	KindDirectOrder      MovementKind = "direct_order"       // Memo of a part bought for a job outside stock (zero delta)
	KindReturnToSupplier MovementKind = "return_to_supplier" // Stock sent back to the supplier
	KindCustomerReturn   MovementKind = "customer_return"    // Stock returned by a customer
	KindLoss             MovementKind = "loss"               // Damaged, stolen or otherwise lost stock
	KindTransfer         MovementKind = "transfer"           // Location change, zero delta
	KindAdjustment       MovementKind = "adjustment"         // Count correction or reversal of a consumption
)

// MovementKinds lists every kind in a stable order.
var MovementKinds = []MovementKind{
	KindPurchase,
	KindConsumption,
	KindDirectOrder,
	KindReturnToSupplier,
	KindCustomerReturn,
	KindLoss,
	KindTransfer,
	KindAdjustment,
}

func (k MovementKind) Valid() bool {
	switch k {
	case KindPurchase, KindConsumption, KindDirectOrder, KindReturnToSupplier,
		KindCustomerReturn, KindLoss, KindTransfer, KindAdjustment:
		return true
	}
	return false
}

// deltaRule describes which sign of quantity delta a kind accepts.
type deltaRule int

const (
	deltaPositive deltaRule = iota
	deltaNegative
	deltaZero
	deltaNonZero
)

func (k MovementKind) deltaRule() deltaRule {
	switch k {
	case KindPurchase, KindCustomerReturn:
		return deltaPositive
	case KindConsumption, KindReturnToSupplier, KindLoss:
		return deltaNegative
	case KindTransfer, KindDirectOrder:
		return deltaZero
	case KindAdjustment:
		return deltaNonZero
	}
	return deltaNonZero
}

// =============================================================================
// PART - Catalog entry
// =============================================================================

// Part is the current-state view of a stocked item.
//
// Stock, AverageCost, SellPrice, TimesUsed, FirstUsedAt, LastUsedAt and
// LocationID are cached aggregates written only by the Projector.
type Part struct {
	Code          PartCode
	Description   string
	Category      string
	Brand         string
	MarkupPercent decimal.Decimal
	MinStock      *int64

	// Cached aggregates
	Stock       int64
	AverageCost decimal.NullDecimal
	SellPrice   decimal.NullDecimal
	TimesUsed   int64
	FirstUsedAt *time.Time
	LastUsedAt  *time.Time
	LocationID  LocationID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MarkupFactor returns 1 + markup/100.
func (p Part) MarkupFactor() decimal.Decimal {
	return decimal.NewFromInt(1).Add(p.MarkupPercent.Div(decimal.NewFromInt(100)))
}

// =============================================================================
// LEDGER ENTRY - Immutable inventory movement
// =============================================================================

type LedgerEntry struct {
	ID           EntryID
	PartCode     PartCode
	Delta        int64
	Kind         MovementKind
	UnitCost     decimal.NullDecimal
	FromLocation LocationID
	ToLocation   LocationID
	JobID        JobID
	// Reverses points at an earlier consuming entry this entry gives back.
	Reverses EntryID
	Note     string
	Actor    string

	RecordedAt time.Time
}

// Cost wraps a decimal as a present unit cost.
func Cost(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// =============================================================================
// FIFO VIEW - Derived, never persisted
// =============================================================================

// Lot is the part of one purchase that pays for a consumption.
type Lot struct {
	PurchaseID EntryID
	Quantity   int64
	UnitCost   decimal.Decimal
	Subtotal   decimal.Decimal
}

// Pricing is the FIFO resolution of a requested consumption.
type Pricing struct {
	PartCode  PartCode
	Requested int64
	Priced    int64
	Shortfall int64
	Lots      []Lot
	TotalCost decimal.Decimal
	// AverageUnitCost is TotalCost / Priced rounded to 4 places, zero when
	// nothing could be priced.
	AverageUnitCost decimal.Decimal
}

// Complete reports whether every requested unit is covered by a lot.
func (p Pricing) Complete() bool { return p.Shortfall == 0 }

// =============================================================================
// LOCATION - Storage location tree
// =============================================================================

type LocationKind string

const (
	LocationVehicle   LocationKind = "vehicle"
	LocationBuilding  LocationKind = "building"
	LocationContainer LocationKind = "container"
)

func (k LocationKind) Valid() bool {
	switch k {
	case LocationVehicle, LocationBuilding, LocationContainer:
		return true
	}
	return false
}

type Location struct {
	ID        LocationID
	Name      string
	Kind      LocationKind
	ParentID  LocationID // empty for a root
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// ALLOCATION - Part cost attached to a job
// =============================================================================

type Source string

const (
	SourceStock       Source = "stock"
	SourceDirectOrder Source = "direct_order"
)

func (s Source) Valid() bool { return s == SourceStock || s == SourceDirectOrder }

type Allocation struct {
	ID        AllocationID
	JobID     JobID
	PartCode  PartCode
	Quantity  int64
	UnitCost  decimal.Decimal
	TotalCost decimal.Decimal
	SellPrice decimal.Decimal
	Source    Source
	// EntryID is the Consumption entry that moved the stock; zero for
	// direct orders.
	EntryID   EntryID
	Note      string
	Actor     string
	CreatedAt time.Time
}

// JobCost sums the live allocations of a job.
type JobCost struct {
	JobID       JobID
	Allocations int
	TotalCost   decimal.Decimal
	TotalSell   decimal.Decimal
}
