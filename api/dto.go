/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Decimal amounts are JSON strings ("5.0000"), never floats. Requests
  accept either a string or a number.

VALIDATION:
  Request types carry `validate` tags for shape checks (required fields,
  enums, ranges). Domain rules (delta sign per kind, stock coverage, cycle
  checks) stay in the inventory package.

SEE ALSO:
  - handlers.go: Uses these types
  - validate.go: Tag validation
*/
package api

import (
	"time"

	"github.com/fieldops/partsledger/inventory"
	"github.com/shopspring/decimal"
)

// =============================================================================
// PARTS
// =============================================================================

type CreatePartRequest struct {
	Code          string          `json:"code" validate:"required,max=32"`
	Description   string          `json:"description" validate:"required,max=255"`
	Category      string          `json:"category" validate:"max=64"`
	Brand         string          `json:"brand" validate:"max=64"`
	MarkupPercent decimal.Decimal `json:"markup_percent"`
	MinStock      *int64          `json:"min_stock" validate:"omitempty,gte=0"`
	LocationID    string          `json:"location_id" validate:"max=32"`
}

type UpdatePartRequest struct {
	Description   string          `json:"description" validate:"required,max=255"`
	Category      string          `json:"category" validate:"max=64"`
	Brand         string          `json:"brand" validate:"max=64"`
	MarkupPercent decimal.Decimal `json:"markup_percent"`
	MinStock      *int64          `json:"min_stock" validate:"omitempty,gte=0"`
}

type PartDTO struct {
	Code          string              `json:"code"`
	Description   string              `json:"description"`
	Category      string              `json:"category,omitempty"`
	Brand         string              `json:"brand,omitempty"`
	MarkupPercent decimal.Decimal     `json:"markup_percent"`
	MinStock      *int64              `json:"min_stock,omitempty"`
	Stock         int64               `json:"stock"`
	AverageCost   decimal.NullDecimal `json:"average_cost"`
	SellPrice     decimal.NullDecimal `json:"sell_price"`
	TimesUsed     int64               `json:"times_used"`
	FirstUsedAt   *time.Time          `json:"first_used_at,omitempty"`
	LastUsedAt    *time.Time          `json:"last_used_at,omitempty"`
	LocationID    string              `json:"location_id,omitempty"`
	LowStock      bool                `json:"low_stock"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func (h *Handler) toPartDTO(p inventory.Part) PartDTO {
	return PartDTO{
		Code:          string(p.Code),
		Description:   p.Description,
		Category:      p.Category,
		Brand:         p.Brand,
		MarkupPercent: p.MarkupPercent,
		MinStock:      p.MinStock,
		Stock:         p.Stock,
		AverageCost:   p.AverageCost,
		SellPrice:     p.SellPrice,
		TimesUsed:     p.TimesUsed,
		FirstUsedAt:   p.FirstUsedAt,
		LastUsedAt:    p.LastUsedAt,
		LocationID:    string(p.LocationID),
		LowStock:      h.Inv.Catalog.IsLow(p),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// =============================================================================
// LEDGER
// =============================================================================

type AppendEntryRequest struct {
	PartCode     string              `json:"part_code" validate:"required,max=32"`
	Delta        int64               `json:"delta"`
	Kind         string              `json:"kind" validate:"required,oneof=purchase consumption direct_order return_to_supplier customer_return loss transfer adjustment"`
	UnitCost     decimal.NullDecimal `json:"unit_cost"`
	FromLocation string              `json:"from_location" validate:"max=32"`
	ToLocation   string              `json:"to_location" validate:"max=32"`
	JobID        string              `json:"job_id" validate:"max=64"`
	Reverses     int64               `json:"reverses" validate:"gte=0"`
	Note         string              `json:"note" validate:"max=500"`
}

type EntryDTO struct {
	ID           int64               `json:"id"`
	PartCode     string              `json:"part_code"`
	Delta        int64               `json:"delta"`
	Kind         string              `json:"kind"`
	UnitCost     decimal.NullDecimal `json:"unit_cost"`
	FromLocation string              `json:"from_location,omitempty"`
	ToLocation   string              `json:"to_location,omitempty"`
	JobID        string              `json:"job_id,omitempty"`
	Reverses     int64               `json:"reverses,omitempty"`
	Note         string              `json:"note,omitempty"`
	Actor        string              `json:"actor,omitempty"`
	RecordedAt   time.Time           `json:"recorded_at"`
}

func toEntryDTO(e inventory.LedgerEntry) EntryDTO {
	return EntryDTO{
		ID:           int64(e.ID),
		PartCode:     string(e.PartCode),
		Delta:        e.Delta,
		Kind:         string(e.Kind),
		UnitCost:     e.UnitCost,
		FromLocation: string(e.FromLocation),
		ToLocation:   string(e.ToLocation),
		JobID:        string(e.JobID),
		Reverses:     int64(e.Reverses),
		Note:         e.Note,
		Actor:        e.Actor,
		RecordedAt:   e.RecordedAt,
	}
}

type AppendEntryResponse struct {
	ID   int64   `json:"id"`
	Part PartDTO `json:"part"`
}

type LotDTO struct {
	PurchaseID int64           `json:"purchase_id"`
	Quantity   int64           `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

type PricingDTO struct {
	PartCode        string          `json:"part_code"`
	Requested       int64           `json:"requested"`
	Priced          int64           `json:"priced"`
	Shortfall       int64           `json:"shortfall"`
	Lots            []LotDTO        `json:"lots"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	AverageUnitCost decimal.Decimal `json:"average_unit_cost"`
}

func toPricingDTO(p inventory.Pricing) PricingDTO {
	lots := make([]LotDTO, len(p.Lots))
	for i, l := range p.Lots {
		lots[i] = LotDTO{
			PurchaseID: int64(l.PurchaseID),
			Quantity:   l.Quantity,
			UnitCost:   l.UnitCost,
			Subtotal:   l.Subtotal,
		}
	}
	return PricingDTO{
		PartCode:        string(p.PartCode),
		Requested:       p.Requested,
		Priced:          p.Priced,
		Shortfall:       p.Shortfall,
		Lots:            lots,
		TotalCost:       p.TotalCost,
		AverageUnitCost: p.AverageUnitCost,
	}
}

// =============================================================================
// LOCATIONS
// =============================================================================

type CreateLocationRequest struct {
	ID       string `json:"id" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=255"`
	Kind     string `json:"kind" validate:"required,oneof=vehicle building container"`
	ParentID string `json:"parent_id" validate:"max=32"`
}

// MoveLocationRequest re-parents a location; an empty parent_id makes it a root.
type MoveLocationRequest struct {
	ParentID string `json:"parent_id" validate:"max=32"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type TransferRequest struct {
	From   string `json:"from" validate:"required,max=32"`
	To     string `json:"to" validate:"required,max=32"`
	Reason string `json:"reason" validate:"max=500"`
}

type LocationDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	ParentID  string    `json:"parent_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toLocationDTO(l inventory.Location) LocationDTO {
	return LocationDTO{
		ID:        string(l.ID),
		Name:      l.Name,
		Kind:      string(l.Kind),
		ParentID:  string(l.ParentID),
		Active:    l.Active,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

// =============================================================================
// JOB ALLOCATIONS
// =============================================================================

type AllocateRequest struct {
	PartCode string              `json:"part_code" validate:"required,max=32"`
	Quantity int64               `json:"quantity" validate:"gt=0"`
	Source   string              `json:"source" validate:"omitempty,oneof=stock direct_order"`
	UnitCost decimal.NullDecimal `json:"unit_cost"`
	Note     string              `json:"note" validate:"max=500"`
}

type AllocationDTO struct {
	ID        string          `json:"id"`
	JobID     string          `json:"job_id"`
	PartCode  string          `json:"part_code"`
	Quantity  int64           `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	TotalCost decimal.Decimal `json:"total_cost"`
	SellPrice decimal.Decimal `json:"sell_price"`
	Source    string          `json:"source"`
	EntryID   int64           `json:"entry_id,omitempty"`
	Note      string          `json:"note,omitempty"`
	Actor     string          `json:"actor,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Lots      []LotDTO        `json:"lots,omitempty"`
}

func toAllocationDTO(a inventory.Allocation) AllocationDTO {
	return AllocationDTO{
		ID:        string(a.ID),
		JobID:     string(a.JobID),
		PartCode:  string(a.PartCode),
		Quantity:  a.Quantity,
		UnitCost:  a.UnitCost,
		TotalCost: a.TotalCost,
		SellPrice: a.SellPrice,
		Source:    string(a.Source),
		EntryID:   int64(a.EntryID),
		Note:      a.Note,
		Actor:     a.Actor,
		CreatedAt: a.CreatedAt,
	}
}

type JobCostDTO struct {
	JobID       string          `json:"job_id"`
	Allocations int             `json:"allocations"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	TotalSell   decimal.Decimal `json:"total_sell"`
}

// =============================================================================
// COMMON
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
