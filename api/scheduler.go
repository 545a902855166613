/*
scheduler.go - Automated integrity audit scheduler

PURPOSE:
  Periodically sweeps every user with the auditor and logs drift between
  the ledger and the balance projection. With AutoRepair enabled it also
  runs the raise-only repair engine after a dirty sweep, so understated
  balances heal without an operator.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Read-only by default; repair is opt-in
  - Overstated projections are only ever logged, never lowered

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether the scheduler is active (default: true)
  - AutoRepair: Run the repair engine after a dirty sweep (default: false)

USAGE:
  scheduler := NewAuditScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - ledger/audit.go: The auditor
  - ledger/repair.go: The raise-only repair engine
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"
)

// AuditScheduler runs the integrity sweep on a timer.
type AuditScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool
	AutoRepair    bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAuditScheduler creates a new scheduler in read-only mode.
func NewAuditScheduler(handler *Handler) *AuditScheduler {
	return &AuditScheduler{
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (as *AuditScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.wg.Add(1)

	go as.run()

	log.Printf("[Scheduler] Started with check interval: %v", as.CheckInterval)
}

// Stop stops the scheduler. Safe to call more than once, and before
// Start.
func (as *AuditScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		as.ticker = nil
		close(as.stop)
		as.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (as *AuditScheduler) run() {
	defer as.wg.Done()

	// Run immediately on start
	as.sweep()

	for {
		select {
		case <-as.ticker.C:
			as.sweep()
		case <-as.stop:
			return
		}
	}
}

func (as *AuditScheduler) sweep() {
	ctx := context.Background()

	reports, err := as.Handler.Auditor.AuditAll(ctx)
	if err != nil {
		log.Printf("[Scheduler] Audit sweep failed: %v", err)
		return
	}

	dirty := 0
	for _, report := range reports {
		if report.Clean() {
			continue
		}
		dirty++
		for _, issue := range report.Issues {
			log.Printf("[Scheduler] %s: %s: %s", report.UserID, issue.Kind, issue.Detail)
		}
	}

	if dirty == 0 {
		log.Printf("[Scheduler] Sweep complete: %d users clean", len(reports))
		return
	}
	log.Printf("[Scheduler] Sweep complete: %d of %d users have issues", dirty, len(reports))

	if !as.AutoRepair {
		return
	}

	result, err := as.Handler.Repairer.RepairAll(ctx)
	if err != nil {
		log.Printf("[Scheduler] Repair run failed: %v", err)
		return
	}
	log.Printf("[Scheduler] Repair run %s: %d checked, %d fixed, %d issues left for review",
		result.RunID, result.UsersChecked, result.UsersFixed, len(result.IssuesFound))
}

// RunNow triggers an immediate sweep (for testing/admin).
func (as *AuditScheduler) RunNow() {
	as.sweep()
}
