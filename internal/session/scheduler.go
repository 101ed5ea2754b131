package session

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"trailbot/internal/calibrator"
)

// Scheduler runs the evaluation cycle and the calibration refresh on cron
// schedules. Overlapping runs of the same job are skipped so the driver
// stays the single mutator.
type Scheduler struct {
	cron   *cron.Cron
	driver *Driver
	log    *logrus.Entry
}

// NewScheduler builds the scheduler around the driver.
func NewScheduler(driver *Driver, log *logrus.Logger) *Scheduler {
	entry := log.WithField("component", "scheduler")
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.PrintfLogger(entry)),
		)),
		driver: driver,
		log:    entry,
	}
}

// Start registers the jobs and starts the cron loop. cycleSpec and
// calibrationSpec are standard cron expressions; calibration history is
// recomputed from the latest historyDepth candles.
func (s *Scheduler) Start(ctx context.Context, cycleSpec, calibrationSpec string, calCfg calibrator.Config, historyDepth int) error {
	if _, err := s.cron.AddFunc(cycleSpec, func() {
		s.driver.RunCycle(ctx)
	}); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(calibrationSpec, func() {
		s.driver.RefreshCalibrations(ctx, calCfg, historyDepth)
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.log.WithFields(logrus.Fields{
		"cycle":       cycleSpec,
		"calibration": calibrationSpec,
	}).Info("scheduler started")
	return nil
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.log.Info("scheduler stopped")
}
