package earning_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-engine/earning"
	"github.com/warp/points-engine/ledger"
)

func TestTask_CompleteOncePerDay(t *testing.T) {
	// GIVEN: The default task catalog
	// WHEN: Completing a task twice on one day, then again the next day
	// THEN: Same-day repeat is rejected; a new day credits again

	store := newTestStore(t)
	svc := ledger.NewService(store)
	tasks := earning.NewTaskService(svc, nil)
	ctx := context.Background()

	res, err := tasks.Complete(ctx, "user-1", "survey", day(1))
	require.NoError(t, err)
	assert.Equal(t, ledger.Points(120), res.Task.Points)

	_, err = tasks.Complete(ctx, "user-1", "survey", day(1))
	assert.ErrorIs(t, err, ledger.ErrDuplicateSubmission)

	_, err = tasks.Complete(ctx, "user-1", "survey", day(2))
	require.NoError(t, err)

	profile, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Points(240), profile.Points)
}

func TestTask_UnknownTask(t *testing.T) {
	// GIVEN: A task ID not in the catalog
	// WHEN: Completing it
	// THEN: ErrTaskNotFound

	store := newTestStore(t)
	tasks := earning.NewTaskService(ledger.NewService(store), nil)

	_, err := tasks.Complete(context.Background(), "user-1", "does-not-exist", day(1))
	assert.ErrorIs(t, err, earning.ErrTaskNotFound)
}
