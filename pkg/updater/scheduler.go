package updater

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler runs throttled checks on a cron schedule
type Scheduler struct {
	checker  *Checker
	schedule string
	cron     *cron.Cron
	log      *logrus.Logger

	// cancels a scheduled run in flight on Stop
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler validates schedule and prepares a scheduler. The schedule uses
// the standard five-field cron syntax or descriptors such as "@every 6h".
func NewScheduler(checker *Checker, schedule string, log *logrus.Logger) (*Scheduler, error) {
	if log == nil {
		log = logrus.New()
	}
	s := &Scheduler{
		checker:  checker,
		schedule: schedule,
		cron:     cron.New(),
		log:      log,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if _, err := s.cron.AddFunc(schedule, s.scheduled); err != nil {
		return nil, fmt.Errorf("invalid update schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins running scheduled checks
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.WithField("schedule", s.schedule).Info("Update scheduler started")
}

// Stop cancels the running check and waits for it to return
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info("Update scheduler stopped")
}

// CheckNow runs a forced check immediately
func (s *Scheduler) CheckNow(ctx context.Context) (Report, error) {
	return s.checker.Check(ctx, true)
}

func (s *Scheduler) scheduled() {
	if _, err := s.checker.Check(s.ctx, false); err != nil {
		s.log.WithError(err).Warn("Scheduled update check failed")
	}
}
