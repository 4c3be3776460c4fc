package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// NewPart is the catalog administration input for a new part.
type NewPart struct {
	Code          string
	Description   string
	Category      string
	Brand         string
	MarkupPercent decimal.Decimal
	MinStock      *int64
	// LocationID is where the part is kept when it is created. Later moves
	// go through LocationGraph.Transfer.
	LocationID LocationID
}

// PartDetails are the descriptive fields catalog administration may change.
type PartDetails struct {
	Description   string
	Category      string
	Brand         string
	MarkupPercent decimal.Decimal
	MinStock      *int64
}

// Catalog is the current-state view of stocked parts. Its cached fields are
// owned by the Projector; Catalog only writes descriptive fields.
type Catalog struct {
	ledger *Ledger
	// DefaultMinStock applies to parts without their own MinStock.
	DefaultMinStock int64
}

func (c *Catalog) Get(ctx context.Context, code PartCode) (Part, error) {
	code, err := NormalizePartCode(string(code))
	if err != nil {
		return Part{}, err
	}
	return c.ledger.Store.GetPart(ctx, code)
}

func (c *Catalog) List(ctx context.Context) ([]Part, error) {
	return c.ledger.Store.ListParts(ctx)
}

// Create adds a part with empty aggregates. Returns ErrDuplicateCode when the
// normalized code is taken.
func (c *Catalog) Create(ctx context.Context, in NewPart) (Part, error) {
	code, err := NormalizePartCode(in.Code)
	if err != nil {
		return Part{}, err
	}
	details := PartDetails{
		Description:   in.Description,
		Category:      in.Category,
		Brand:         in.Brand,
		MarkupPercent: in.MarkupPercent,
		MinStock:      in.MinStock,
	}
	if err := validateDetails(&details); err != nil {
		return Part{}, err
	}

	now := c.ledger.now()
	part := Part{
		Code:          code,
		Description:   details.Description,
		Category:      details.Category,
		Brand:         details.Brand,
		MarkupPercent: details.MarkupPercent,
		MinStock:      details.MinStock,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = c.ledger.writePart(ctx, code, func(s Store) error {
		if in.LocationID != "" {
			loc, err := NormalizeLocationID(string(in.LocationID))
			if err != nil {
				return err
			}
			if _, err := s.GetLocation(ctx, loc); err != nil {
				return err
			}
			part.LocationID = loc
		}
		return s.InsertPart(ctx, part)
	})
	if err != nil {
		return Part{}, err
	}
	return part, nil
}

// UpdateDetails changes descriptive fields and reprojects the part, since a
// new markup changes the cached sell price.
func (c *Catalog) UpdateDetails(ctx context.Context, code PartCode, details PartDetails) (Part, error) {
	code, err := NormalizePartCode(string(code))
	if err != nil {
		return Part{}, err
	}
	if err := validateDetails(&details); err != nil {
		return Part{}, err
	}

	var updated Part
	err = c.ledger.writePart(ctx, code, func(s Store) error {
		part, err := s.GetPart(ctx, code)
		if err != nil {
			return err
		}
		part.Description = details.Description
		part.Category = details.Category
		part.Brand = details.Brand
		part.MarkupPercent = details.MarkupPercent
		part.MinStock = details.MinStock
		if err := s.UpdatePart(ctx, part); err != nil {
			return fmt.Errorf("update part %s: %w", code, err)
		}
		updated, err = c.ledger.Projector.Recompute(ctx, s, code)
		return err
	})
	return updated, err
}

// Delete removes a part that nothing references. Parts with ledger history
// or allocations are rejected with ErrPartInUse.
func (c *Catalog) Delete(ctx context.Context, code PartCode) error {
	code, err := NormalizePartCode(string(code))
	if err != nil {
		return err
	}
	return c.ledger.writePart(ctx, code, func(s Store) error {
		if _, err := s.GetPart(ctx, code); err != nil {
			return err
		}
		entries, err := s.Entries(ctx, code)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			return fmt.Errorf("%s has %d ledger entries: %w", code, len(entries), ErrPartInUse)
		}
		n, err := s.CountAllocationsByPart(ctx, code)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%s has %d job allocations: %w", code, n, ErrPartInUse)
		}
		return s.DeletePart(ctx, code)
	})
}

// LowStock returns parts whose stock is at or below their minimum.
func (c *Catalog) LowStock(ctx context.Context) ([]Part, error) {
	parts, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	var low []Part
	for _, p := range parts {
		if c.IsLow(p) {
			low = append(low, p)
		}
	}
	return low, nil
}

// IsLow applies the part's MinStock, or DefaultMinStock without one.
func (c *Catalog) IsLow(p Part) bool {
	threshold := c.DefaultMinStock
	if p.MinStock != nil {
		threshold = *p.MinStock
	}
	return p.Stock <= threshold
}

func validateDetails(d *PartDetails) error {
	d.Description = strings.TrimSpace(d.Description)
	d.Category = strings.TrimSpace(d.Category)
	d.Brand = strings.TrimSpace(d.Brand)
	if d.Description == "" {
		return invalid("description", "is required")
	}
	if d.MarkupPercent.IsNegative() {
		return invalid("markup_percent", "must not be negative")
	}
	if d.MinStock != nil && *d.MinStock < 0 {
		return invalid("min_stock", "must not be negative")
	}
	return nil
}
