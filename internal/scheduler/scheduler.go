// Package scheduler triggers the sync jobs on cron schedules. A trigger
// that finds the previous run of the same job still in flight is skipped,
// so slow passes never overlap themselves.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// JobFunc is one schedulable job run.
type JobFunc func(ctx context.Context) error

// Scheduler runs registered jobs on their cron schedules.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
	ctx  context.Context
}

// New creates a scheduler. Standard 5-field cron expressions are accepted.
func New() *Scheduler {
	log := zap.L().With(zap.String("component", "scheduler"))
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger{log.Sugar()}),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{log.Sugar()})),
		),
		log: log,
	}
}

// Add registers a job under the given cron spec. Must be called before Run.
func (s *Scheduler) Add(name, spec string, run JobFunc) error {
	_, err := s.cron.AddFunc(spec, func() {
		log := s.log.With(zap.String("job", name))
		log.Debug("job triggered")
		if err := run(s.ctx); err != nil {
			log.Error("job run failed", zap.Error(err))
		}
	})
	if err != nil {
		return eris.Wrapf(err, "scheduler: add job %s (%q)", name, spec)
	}
	return nil
}

// Run starts the schedules and blocks until ctx is cancelled, then stops
// triggering and waits for in-flight runs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))

	<-ctx.Done()

	s.log.Info("scheduler stopping")
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}

// cronLogger adapts zap to the cron logging interface.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
