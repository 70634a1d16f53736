package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/observability"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

const (
	SnapshotSpec    = "5 0 * * *"
	InviteSweepSpec = "*/15 * * * *"
)

// Snapshotter stores the analytics snapshot for one UTC day.
type Snapshotter interface {
	Snapshot(ctx context.Context, day time.Time) (*types.AnalyticsSnapshot, error)
}

type InviteSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Scheduler runs the periodic maintenance tasks on UTC wall-clock time.
type Scheduler struct {
	log   *logger.Logger
	cron  *cron.Cron
	now   func() time.Time
	ctx   context.Context
	snaps Snapshotter
	sweep InviteSweeper
}

func New(baseLog *logger.Logger, snaps Snapshotter, sweep InviteSweeper) *Scheduler {
	return &Scheduler{
		log:   baseLog.With("component", "Scheduler"),
		cron:  cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.Recover(cron.DiscardLogger))),
		now:   func() time.Time { return time.Now().UTC() },
		ctx:   context.Background(),
		snaps: snaps,
		sweep: sweep,
	}
}

// Register adds the tasks. It fails only on a malformed spec.
func (s *Scheduler) Register() error {
	if s.snaps != nil {
		if _, err := s.cron.AddFunc(SnapshotSpec, s.SnapshotYesterday); err != nil {
			return fmt.Errorf("schedule snapshot: %w", err)
		}
	}
	if s.sweep != nil {
		if _, err := s.cron.AddFunc(InviteSweepSpec, s.SweepInvites); err != nil {
			return fmt.Errorf("schedule invite sweep: %w", err)
		}
	}
	return nil
}

// Start runs the cron loop until ctx is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.log.Info("Scheduler started", "entries", len(s.cron.Entries()))
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop waits for running tasks to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// SnapshotYesterday stores the snapshot of the UTC day that just ended.
func (s *Scheduler) SnapshotYesterday() {
	today := s.now().Truncate(24 * time.Hour)
	day := today.AddDate(0, 0, -1)
	start := time.Now()
	_, err := s.snaps.Snapshot(context.WithoutCancel(s.ctx), day)
	status := "succeeded"
	if err != nil {
		status = "failed"
		s.log.Warn("Analytics snapshot failed", "day", day.Format("2006-01-02"), "error", err)
	} else {
		s.log.Info("Analytics snapshot stored", "day", day.Format("2006-01-02"))
	}
	observability.Current().ObserveJob("analytics_snapshot", status, time.Since(start))
}

func (s *Scheduler) SweepInvites() {
	start := time.Now()
	n, err := s.sweep.SweepExpired(context.WithoutCancel(s.ctx))
	status := "succeeded"
	if err != nil {
		status = "failed"
		s.log.Warn("Invite sweep failed", "error", err)
	} else if n > 0 {
		s.log.Info("Expired invites swept", "count", n)
	}
	observability.Current().ObserveJob("invite_sweep", status, time.Since(start))
}
