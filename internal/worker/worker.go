// Package worker runs periodic maintenance on top of the mining service.
package worker

import (
	"context"
	"time"

	"voltfarm/internal/logger"

	"github.com/go-co-op/gocron/v2"
)

// InvoiceExpirer is the part of the mining service the scheduler drives.
type InvoiceExpirer interface {
	ExpireInvoices(ctx context.Context) (int64, error)
}

type Scheduler struct {
	sched gocron.Scheduler
}

// Start schedules invoice expiry every interval and starts the scheduler.
func Start(svc InvoiceExpirer, interval time.Duration) (*Scheduler, error) {
	if interval <= 0 {
		interval = time.Minute
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()

			n, err := svc.ExpireInvoices(ctx)
			if err != nil {
				logger.Warn("[Scheduler] invoice expiry failed", "error", err)
				return
			}
			if n > 0 {
				logger.Info("[Scheduler] invoices expired", "count", n)
			}
		}),
		gocron.WithName("expire-invoices"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	return &Scheduler{sched: sched}, nil
}

// Stop waits for running jobs and stops the scheduler.
func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}
