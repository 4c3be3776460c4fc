/*
scheduler.go - Catalog drift reconciliation

PURPOSE:
  Periodically replays every part's ledger and compares the result with
  the cached catalog row. A mismatch should never happen, since every
  append recomputes the part in the same transaction; the reconciler
  exists to catch and repair rows written by hand, restored from an old
  backup, or left behind by a bug.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Each part is checked under its own lock, so no writer is blocked for
    longer than one part's replay
  - Drifted parts are rewritten from the ledger and logged with the
    before/after stock
  - The last report is kept for the admin endpoint

CONFIGURATION:
  - Interval: How often to check (0 disables the background loop)

USAGE:
  rec := NewReconciler(inv.Catalog, inv.Ledger, log)
  rec.Interval = time.Hour
  rec.Start()
  // ... later
  rec.Stop()

SEE ALSO:
  - handlers.go: Reconcile endpoint (manual run)
  - inventory/ledger.go: Ledger.Reconcile
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/fieldops/partsledger/inventory"
	"github.com/sirupsen/logrus"
)

// ReconcileReport summarises one pass over the catalog.
type ReconcileReport struct {
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Checked    int               `json:"checked"`
	Drifted    []DriftReport     `json:"drifted"`
	Failed     map[string]string `json:"failed,omitempty"`
}

type DriftReport struct {
	PartCode    string `json:"part_code"`
	CachedStock int64  `json:"cached_stock"`
	LedgerStock int64  `json:"ledger_stock"`
}

// Reconciler audits cached catalog aggregates against the ledger.
type Reconciler struct {
	Catalog  *inventory.Catalog
	Ledger   *inventory.Ledger
	Interval time.Duration
	Log      logrus.FieldLogger
	// OnDrift is called once per repaired part. Optional.
	OnDrift func(inventory.Drift)
	// OnRun is called after every completed pass. Optional.
	OnRun func(ReconcileReport)

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	runMu sync.Mutex

	lastMu sync.Mutex
	last   *ReconcileReport
}

func NewReconciler(catalog *inventory.Catalog, ledger *inventory.Ledger, log logrus.FieldLogger) *Reconciler {
	return &Reconciler{
		Catalog:  catalog,
		Ledger:   ledger,
		Interval: time.Hour,
		Log:      log,
	}
}

// Start begins the background loop. A zero Interval leaves it disabled.
func (rc *Reconciler) Start() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.Interval <= 0 {
		rc.Log.Info("reconciler disabled, not starting")
		return
	}
	if rc.ticker != nil {
		return
	}

	rc.ticker = time.NewTicker(rc.Interval)
	rc.stop = make(chan struct{})
	rc.wg.Add(1)

	go rc.run()

	rc.Log.WithField("interval", rc.Interval.String()).Info("reconciler started")
}

// Stop stops the background loop and waits for a running pass to finish.
func (rc *Reconciler) Stop() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.ticker != nil {
		rc.ticker.Stop()
		close(rc.stop)
		rc.wg.Wait()
		rc.ticker = nil
		rc.Log.Info("reconciler stopped")
	}
}

func (rc *Reconciler) run() {
	defer rc.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-rc.stop
		cancel()
	}()

	for {
		select {
		case <-rc.ticker.C:
			if _, err := rc.RunOnce(ctx); err != nil && ctx.Err() == nil {
				rc.Log.WithError(err).Error("reconcile pass failed")
			}
		case <-rc.stop:
			return
		}
	}
}

// RunOnce checks every part. A failure on one part is recorded in the
// report and does not stop the pass; only failing to list the catalog is
// returned as an error. Concurrent calls run one after the other.
func (rc *Reconciler) RunOnce(ctx context.Context) (ReconcileReport, error) {
	rc.runMu.Lock()
	defer rc.runMu.Unlock()

	report := ReconcileReport{StartedAt: time.Now().UTC(), Drifted: []DriftReport{}}

	parts, err := rc.Catalog.List(ctx)
	if err != nil {
		return report, err
	}

	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		drift, err := rc.Ledger.Reconcile(ctx, p.Code)
		if err != nil {
			if report.Failed == nil {
				report.Failed = make(map[string]string)
			}
			report.Failed[string(p.Code)] = err.Error()
			rc.Log.WithField("part_code", p.Code).WithError(err).Warn("reconcile part failed")
			continue
		}
		if drift == nil {
			continue
		}

		report.Drifted = append(report.Drifted, DriftReport{
			PartCode:    string(drift.PartCode),
			CachedStock: drift.Cached.Stock,
			LedgerStock: drift.Replayed.Stock,
		})
		rc.Log.WithFields(logrus.Fields{
			"part_code":    drift.PartCode,
			"cached_stock": drift.Cached.Stock,
			"ledger_stock": drift.Replayed.Stock,
		}).Warn("catalog drift repaired")
		if rc.OnDrift != nil {
			rc.OnDrift(*drift)
		}
	}

	report.FinishedAt = time.Now().UTC()
	rc.lastMu.Lock()
	rc.last = &report
	rc.lastMu.Unlock()
	if rc.OnRun != nil {
		rc.OnRun(report)
	}

	rc.Log.WithFields(logrus.Fields{
		"checked": report.Checked,
		"drifted": len(report.Drifted),
		"failed":  len(report.Failed),
	}).Info("reconcile pass completed")
	return report, nil
}

// LastReport returns the most recent completed pass, if any.
// It does not wait for a pass in progress.
func (rc *Reconciler) LastReport() (ReconcileReport, bool) {
	rc.lastMu.Lock()
	defer rc.lastMu.Unlock()
	if rc.last == nil {
		return ReconcileReport{}, false
	}
	return *rc.last, true
}
