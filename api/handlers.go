/*
handlers.go - HTTP API handlers for the parts inventory ledger

PURPOSE:
  Exposes the inventory ledger via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the inventory package.

ENDPOINTS:
  Parts:
    GET    /api/parts                     List catalog
    POST   /api/parts                     Create part
    GET    /api/parts/low-stock           Parts at or below minimum stock
    GET    /api/parts/{code}              Get part with cached aggregates
    PUT    /api/parts/{code}              Update descriptive fields
    DELETE /api/parts/{code}              Delete an unreferenced part
    GET    /api/parts/{code}/history      Ledger entries in sequence order
    GET    /api/parts/{code}/price        FIFO quote (?quantity=N)
    POST   /api/parts/{code}/transfer     Move part between locations

  Ledger:
    POST   /api/ledger                    Append a movement

  Locations:
    GET    /api/locations                 List locations
    POST   /api/locations                 Create location
    GET    /api/locations/{id}            Get location
    GET    /api/locations/{id}/path       Ancestry, root first
    POST   /api/locations/{id}/move       Re-parent
    POST   /api/locations/{id}/active     Activate / deactivate

  Jobs:
    GET    /api/jobs/{job}/allocations    Live allocations of a job
    POST   /api/jobs/{job}/allocations    Allocate a part to a job
    GET    /api/jobs/{job}/cost           Job cost and sell totals
    DELETE /api/allocations/{id}          Deallocate

  Admin:
    POST   /api/admin/reconcile           Run a drift audit now
    GET    /api/admin/reconcile           Last drift audit report

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Inv: the inventory components sharing one ledger
  - Reconciler: drift audit
  - Metrics: optional Prometheus collectors

IDENTITY:
  The acting user is taken from the X-Actor header and recorded on every
  ledger entry and allocation. Authentication happens upstream.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status (see errors.go):
  - 400: Malformed JSON or query
  - 404: Part, location, allocation or entry not found
  - 409: Insufficient stock, duplicate code, part in use
  - 422: Validation errors, location cycles, unusable locations
  - 503: Concurrency conflict (retry)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/fieldops/partsledger/inventory"
	"github.com/fieldops/partsledger/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Inv        *inventory.Inventory
	Reconciler *Reconciler
	Metrics    *metrics.Metrics
	Health     Pinger
	Log        logrus.FieldLogger

	// HideInternalErrors replaces 5xx error text with a generic message.
	HideInternalErrors bool
}

// NewHandler creates a new handler over the given inventory.
func NewHandler(inv *inventory.Inventory, reconciler *Reconciler, log logrus.FieldLogger) *Handler {
	return &Handler{
		Inv:        inv,
		Reconciler: reconciler,
		Log:        log,
	}
}

func actor(r *http.Request) string {
	return r.Header.Get("X-Actor")
}

// =============================================================================
// PART HANDLERS
// =============================================================================

// ListParts returns the whole catalog ordered by code.
func (h *Handler) ListParts(w http.ResponseWriter, r *http.Request) {
	parts, err := h.Inv.Catalog.List(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toPartDTOs(parts))
}

// CreatePart adds a part with empty stock.
func (h *Handler) CreatePart(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[CreatePartRequest](w, r)
	if !ok {
		return
	}

	part, err := h.Inv.Catalog.Create(r.Context(), inventory.NewPart{
		Code:          req.Code,
		Description:   req.Description,
		Category:      req.Category,
		Brand:         req.Brand,
		MarkupPercent: req.MarkupPercent,
		MinStock:      req.MinStock,
		LocationID:    inventory.LocationID(req.LocationID),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toPartDTO(part))
}

// GetPart returns one part with its cached aggregates.
func (h *Handler) GetPart(w http.ResponseWriter, r *http.Request) {
	part, err := h.Inv.Catalog.Get(r.Context(), inventory.PartCode(chi.URLParam(r, "code")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toPartDTO(part))
}

// UpdatePart replaces the descriptive fields of a part.
func (h *Handler) UpdatePart(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[UpdatePartRequest](w, r)
	if !ok {
		return
	}

	part, err := h.Inv.Catalog.UpdateDetails(r.Context(), inventory.PartCode(chi.URLParam(r, "code")), inventory.PartDetails{
		Description:   req.Description,
		Category:      req.Category,
		Brand:         req.Brand,
		MarkupPercent: req.MarkupPercent,
		MinStock:      req.MinStock,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toPartDTO(part))
}

// DeletePart removes a part nothing references.
func (h *Handler) DeletePart(w http.ResponseWriter, r *http.Request) {
	if err := h.Inv.Catalog.Delete(r.Context(), inventory.PartCode(chi.URLParam(r, "code"))); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LowStock lists parts at or below their minimum stock.
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	parts, err := h.Inv.Catalog.LowStock(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toPartDTOs(parts))
}

// PartHistory returns the ledger of one part, oldest first.
func (h *Handler) PartHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Inv.Ledger.History(r.Context(), inventory.PartCode(chi.URLParam(r, "code")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PriceQuote prices a hypothetical consumption without writing anything.
// A shortfall is part of the answer, not an error.
func (h *Handler) PriceQuote(w http.ResponseWriter, r *http.Request) {
	qty, err := strconv.ParseInt(r.URL.Query().Get("quantity"), 10, 64)
	if err != nil || qty <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be a positive integer", "invalid_query", nil)
		return
	}

	pricing, err := h.Inv.Resolver.Price(r.Context(), inventory.PartCode(chi.URLParam(r, "code")), qty)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPricingDTO(pricing))
}

// TransferPart moves a part to another location.
func (h *Handler) TransferPart(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[TransferRequest](w, r)
	if !ok {
		return
	}

	code := inventory.PartCode(chi.URLParam(r, "code"))
	id, err := h.Inv.Locations.Transfer(r.Context(), inventory.TransferInput{
		PartCode: code,
		From:     inventory.LocationID(req.From),
		To:       inventory.LocationID(req.To),
		Reason:   req.Reason,
		Actor:    actor(r),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeAppended(w, r, id, code)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// AppendEntry records one inventory movement.
func (h *Handler) AppendEntry(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[AppendEntryRequest](w, r)
	if !ok {
		return
	}

	code := inventory.PartCode(req.PartCode)
	id, err := h.Inv.Ledger.Append(r.Context(), inventory.LedgerEntry{
		PartCode:     code,
		Delta:        req.Delta,
		Kind:         inventory.MovementKind(req.Kind),
		UnitCost:     req.UnitCost,
		FromLocation: inventory.LocationID(req.FromLocation),
		ToLocation:   inventory.LocationID(req.ToLocation),
		JobID:        inventory.JobID(req.JobID),
		Reverses:     inventory.EntryID(req.Reverses),
		Note:         req.Note,
		Actor:        actor(r),
	})
	if err != nil {
		if h.Metrics != nil && errors.Is(err, inventory.ErrInsufficientStock) {
			h.Metrics.InsufficientStock.Inc()
		}
		h.writeDomainError(w, r, err)
		return
	}
	h.writeAppended(w, r, id, code)
}

// writeAppended answers a successful append with the entry id and the
// part as recomputed by it.
func (h *Handler) writeAppended(w http.ResponseWriter, r *http.Request, id inventory.EntryID, code inventory.PartCode) {
	part, err := h.Inv.Catalog.Get(r.Context(), code)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AppendEntryResponse{ID: int64(id), Part: h.toPartDTO(part)})
}

// =============================================================================
// LOCATION HANDLERS
// =============================================================================

func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.Inv.Locations.List(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLocationDTOs(locations))
}

func (h *Handler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[CreateLocationRequest](w, r)
	if !ok {
		return
	}

	loc, err := h.Inv.Locations.CreateLocation(r.Context(), inventory.NewLocation{
		ID:       req.ID,
		Name:     req.Name,
		Kind:     inventory.LocationKind(req.Kind),
		ParentID: inventory.LocationID(req.ParentID),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLocationDTO(loc))
}

func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := h.Inv.Locations.Get(r.Context(), inventory.LocationID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLocationDTO(loc))
}

// LocationPath returns the ancestry of a location, root first.
func (h *Handler) LocationPath(w http.ResponseWriter, r *http.Request) {
	path, err := h.Inv.Locations.AncestryPath(r.Context(), inventory.LocationID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLocationDTOs(path))
}

func (h *Handler) MoveLocation(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[MoveLocationRequest](w, r)
	if !ok {
		return
	}

	loc, err := h.Inv.Locations.MoveLocation(r.Context(),
		inventory.LocationID(chi.URLParam(r, "id")), inventory.LocationID(req.ParentID))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLocationDTO(loc))
}

func (h *Handler) SetLocationActive(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[SetActiveRequest](w, r)
	if !ok {
		return
	}

	loc, err := h.Inv.Locations.SetActive(r.Context(), inventory.LocationID(chi.URLParam(r, "id")), *req.Active)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLocationDTO(loc))
}

// =============================================================================
// JOB HANDLERS
// =============================================================================

func (h *Handler) ListJobAllocations(w http.ResponseWriter, r *http.Request) {
	allocs, err := h.Inv.Allocator.JobAllocations(r.Context(), inventory.JobID(chi.URLParam(r, "job")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]AllocationDTO, len(allocs))
	for i, a := range allocs {
		dtos[i] = toAllocationDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Allocate attaches a part to a job, from stock (FIFO-priced) or as a
// direct order at the given unit cost. Source defaults to stock.
func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[AllocateRequest](w, r)
	if !ok {
		return
	}

	source := inventory.Source(req.Source)
	if source == "" {
		source = inventory.SourceStock
	}

	result, err := h.Inv.Allocator.Allocate(r.Context(), inventory.AllocateInput{
		JobID:    inventory.JobID(chi.URLParam(r, "job")),
		PartCode: inventory.PartCode(req.PartCode),
		Quantity: req.Quantity,
		Source:   source,
		UnitCost: req.UnitCost,
		Note:     req.Note,
		Actor:    actor(r),
	})
	if h.Metrics != nil {
		h.Metrics.ObserveAllocation(source, err)
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	dto := toAllocationDTO(result.Allocation)
	if result.Pricing != nil {
		dto.Lots = toPricingDTO(*result.Pricing).Lots
	}
	writeJSON(w, http.StatusCreated, dto)
}

func (h *Handler) JobCost(w http.ResponseWriter, r *http.Request) {
	cost, err := h.Inv.Allocator.JobCost(r.Context(), inventory.JobID(chi.URLParam(r, "job")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, JobCostDTO{
		JobID:       string(cost.JobID),
		Allocations: cost.Allocations,
		TotalCost:   cost.TotalCost,
		TotalSell:   cost.TotalSell,
	})
}

// Deallocate reverses an allocation; stock-sourced units go back on the shelf.
func (h *Handler) Deallocate(w http.ResponseWriter, r *http.Request) {
	id := inventory.AllocationID(chi.URLParam(r, "id"))
	if err := h.Inv.Allocator.Deallocate(r.Context(), id, actor(r)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Reconcile runs a drift audit now and returns its report.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.Reconciler.RunOnce(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// LastReconcile returns the most recent drift audit report.
func (h *Handler) LastReconcile(w http.ResponseWriter, r *http.Request) {
	report, ok := h.Reconciler.LastReport()
	if !ok {
		writeError(w, http.StatusNotFound, "no reconcile pass has completed yet", "not_found", nil)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HealthCheck reports whether the store is reachable.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			h.Log.WithError(err).Warn("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) toPartDTOs(parts []inventory.Part) []PartDTO {
	dtos := make([]PartDTO, len(parts))
	for i, p := range parts {
		dtos[i] = h.toPartDTO(p)
	}
	return dtos
}

func toLocationDTOs(locations []inventory.Location) []LocationDTO {
	dtos := make([]LocationDTO, len(locations))
	for i, l := range locations {
		dtos[i] = toLocationDTO(l)
	}
	return dtos
}
