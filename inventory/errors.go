/*
errors.go - Centralized error types for the inventory ledger

PURPOSE:
  All error types in one place. Callers match with errors.Is against the
  sentinels; structured errors carry the details and unwrap to a sentinel.

ERROR CATEGORIES:
  1. Validation    - malformed or constraint-violating input, nothing written
  2. Stock         - FIFO lots cannot cover a stock-sourced consumption
  3. Existence     - duplicate codes, missing parts/locations/allocations
  4. Concurrency   - store serialization failure or per-part lock timeout;
                     the caller retries with backoff, never this package

Every rejected operation leaves the ledger and the catalog exactly as they
were before the call.
*/
package inventory

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrDuplicateCode       = errors.New("duplicate code")
	ErrNotFound            = errors.New("not found")
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrPartInUse is returned when deleting a part that ledger entries or
	// allocations still reference.
	ErrPartInUse = errors.New("part is referenced by ledger entries")

	ErrPartNotFound       = fmt.Errorf("part %w", ErrNotFound)
	ErrLocationNotFound   = fmt.Errorf("location %w", ErrNotFound)
	ErrAllocationNotFound = fmt.Errorf("allocation %w", ErrNotFound)
	ErrEntryNotFound      = fmt.Errorf("ledger entry %w", ErrNotFound)

	// ErrCycle is returned when a location move would make a location its
	// own ancestor.
	ErrCycle = fmt.Errorf("location cycle: %w", ErrValidation)

	// ErrInvalidLocation is returned for transfers between unusable locations.
	ErrInvalidLocation = fmt.Errorf("invalid location: %w", ErrValidation)
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientStockError is returned when stock or FIFO lots cannot cover a
// requested consumption.
type InsufficientStockError struct {
	PartCode  PartCode
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.PartCode, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the caller may retry the same call with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is due to caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrDuplicateCode) ||
		errors.Is(err, ErrPartInUse)
}

// IsNotFound returns true if a referenced record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
