package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rohianon/ptracker/pkg/lock"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/types"
)

type fakeReconciler struct {
	calls  atomic.Int32
	dryRun atomic.Bool
	report *types.ReconcileReport
	err    error
}

func (f *fakeReconciler) Reconcile(_ context.Context, userID string, dryRun bool) (*types.ReconcileReport, error) {
	f.calls.Add(1)
	f.dryRun.Store(dryRun)
	if userID != "" {
		return nil, errors.New("expected a scan of every user")
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.report != nil {
		return f.report, nil
	}
	return &types.ReconcileReport{DryRun: dryRun}, nil
}

func TestReconcileJob_Runs(t *testing.T) {
	svc := &fakeReconciler{report: &types.ReconcileReport{OrphanLots: []string{"l1"}}}
	job := NewReconcileJob(svc, lock.NewLocal(), true)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, int32(1), svc.calls.Load())
	assert.True(t, svc.dryRun.Load())
	assert.Equal(t, "reconcile", job.Name())
}

func TestReconcileJob_SkipsWhenLeaderLockHeld(t *testing.T) {
	locker := lock.NewLocal()
	release, err := locker.TryAcquire(context.Background(), reconcileLockKey, time.Minute)
	require.NoError(t, err)
	defer release()

	svc := &fakeReconciler{}
	job := NewReconcileJob(svc, locker, false)

	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, svc.calls.Load())
}

func TestReconcileJob_ReleasesLockOnFailure(t *testing.T) {
	locker := lock.NewLocal()
	svc := &fakeReconciler{err: errors.New("store down")}
	job := NewReconcileJob(svc, locker, false)

	assert.Error(t, job.Run(context.Background()))

	release, err := locker.TryAcquire(context.Background(), reconcileLockKey, time.Minute)
	require.NoError(t, err, "lock must be released after a failed run")
	release()
}

func TestScheduler_AddJobRejectsBadSchedule(t *testing.T) {
	s := New()
	job := NewReconcileJob(&fakeReconciler{}, lock.NewLocal(), false)

	assert.Error(t, s.AddJob("not a schedule", job))
	assert.NoError(t, s.AddJob("@every 6h", job))
}

func TestScheduler_RunNow(t *testing.T) {
	s := New()
	svc := &fakeReconciler{}

	require.NoError(t, s.RunNow(NewReconcileJob(svc, lock.NewLocal(), false)))
	assert.Equal(t, int32(1), svc.calls.Load())

	s.Start()
	s.Stop()
}
