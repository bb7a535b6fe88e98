// Package scheduler runs the service's background jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Rohianon/ptracker/pkg/lock"
	"github.com/Rohianon/ptracker/pkg/logger"
	"github.com/Rohianon/ptracker/pkg/telemetry"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/types"
)

// Job represents a scheduled job
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron   *cron.Cron
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(),
		log:    logger.Component("scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers job on a standard five-field schedule or a descriptor
// such as "@hourly" or "@every 6h".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() { s.run(job) })
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return job.Run(s.ctx)
}

func (s *Scheduler) run(job Job) {
	ctx, span := telemetry.StartSpan(s.ctx, "job."+job.Name())
	defer span.End()

	s.log.Debug().Str("job", job.Name()).Msg("Running job")
	if err := job.Run(ctx); err != nil {
		telemetry.RecordError(ctx, err)
		s.log.Error().Err(err).Str("job", job.Name()).Msg("Job failed")
		return
	}
	s.log.Debug().Str("job", job.Name()).Msg("Job completed")
}

// Reconciler is the part of the ledger service the reconcile job drives.
type Reconciler interface {
	Reconcile(ctx context.Context, userID string, dryRun bool) (*types.ReconcileReport, error)
}

// ReconcileJob repairs membership for every user. Replicas share a leader
// lock so only one of them runs a given tick; the others skip it.
type ReconcileJob struct {
	svc    Reconciler
	locker lock.Locker
	dryRun bool
	ttl    time.Duration
	log    zerolog.Logger
}

const reconcileLockKey = "reconcile:leader"

func NewReconcileJob(svc Reconciler, locker lock.Locker, dryRun bool) *ReconcileJob {
	return &ReconcileJob{
		svc:    svc,
		locker: locker,
		dryRun: dryRun,
		ttl:    30 * time.Minute,
		log:    logger.Component("reconcile-job"),
	}
}

func (j *ReconcileJob) Name() string { return "reconcile" }

func (j *ReconcileJob) Run(ctx context.Context) error {
	release, err := j.locker.TryAcquire(ctx, reconcileLockKey, j.ttl)
	if errors.Is(err, lock.ErrNotAcquired) {
		j.log.Debug().Msg("Another replica holds the reconcile lock, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	defer release()

	report, err := j.svc.Reconcile(ctx, "", j.dryRun)
	if err != nil {
		return err
	}
	if report.Repairs() > 0 {
		j.log.Warn().
			Int("dangling_lot_refs", len(report.DanglingLotRefs)).
			Int("missing_lot_refs", len(report.MissingLotRefs)).
			Int("missing_asset_refs", len(report.MissingAssetRefs)).
			Int("orphan_lots", len(report.OrphanLots)).
			Bool("dry_run", report.DryRun).
			Msg("Reconcile found membership damage")
	}
	return nil
}
