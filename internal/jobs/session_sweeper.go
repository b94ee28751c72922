package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper removes expired import sessions
type Sweeper interface {
	SweepSessions(ctx context.Context) (int, error)
}

// SessionSweepJob runs the sweeper on a cron schedule
type SessionSweepJob struct {
	sweeper  Sweeper
	logger   *logrus.Entry
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
}

// NewSessionSweepJob creates a new sweep job. schedule accepts the standard
// five-field cron syntax and descriptors such as "@every 10m".
func NewSessionSweepJob(sweeper Sweeper, schedule string, logger *logrus.Logger) *SessionSweepJob {
	return &SessionSweepJob{
		sweeper:  sweeper,
		logger:   logger.WithField("component", "session_sweeper"),
		schedule: schedule,
		timeout:  time.Minute,
		cron:     cron.New(),
	}
}

// Start registers the job and starts the scheduler
func (j *SessionSweepJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.Run); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", j.schedule, err)
	}
	j.cron.Start()
	j.logger.WithField("schedule", j.schedule).Info("Session sweep job started")
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish
func (j *SessionSweepJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("Session sweep job stopped")
}

// Run performs one sweep
func (j *SessionSweepJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	removed, err := j.sweeper.SweepSessions(ctx)
	if err != nil {
		j.logger.WithError(err).Error("Failed to sweep import sessions")
		return
	}
	if removed > 0 {
		j.logger.WithField("removed", removed).Info("Swept expired import sessions")
		return
	}
	j.logger.Debug("No expired import sessions")
}
