package api_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/points-engine/api"
	"github.com/warp/points-engine/store/sqlite"
)

func newTestScheduler(t *testing.T) *api.AuditScheduler {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	handler := api.NewHandler(api.Deps{
		Store:     store,
		CheckIns:  store,
		Promos:    store,
		Referrals: store,
	})
	return api.NewAuditScheduler(handler)
}

func TestAuditScheduler_StopTwice(t *testing.T) {
	// GIVEN: A started scheduler
	// WHEN: Stopping it twice
	// THEN: The second stop is a no-op, not a panic

	s := newTestScheduler(t)
	s.CheckInterval = time.Hour
	s.Start()

	s.Stop()
	s.Stop()
}

func TestAuditScheduler_StopBeforeStart(t *testing.T) {
	// GIVEN: A scheduler that was never started
	// WHEN: Stopping it
	// THEN: No panic

	s := newTestScheduler(t)
	s.Stop()
}

func TestAuditScheduler_DisabledDoesNotStart(t *testing.T) {
	// GIVEN: A disabled scheduler
	// WHEN: Starting and stopping it
	// THEN: Nothing runs, stop is a no-op

	s := newTestScheduler(t)
	s.Enabled = false
	s.Start()
	s.Stop()
}
