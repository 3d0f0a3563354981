// Package jobs watches asynchronous scrape runs executed by the external
// job system. The service never runs scrapes itself; it starts them
// through the data provider and polls their status until a terminal
// state.
package jobs

import (
	"context"
	"time"

	"dealscope/internal/models"

	"github.com/sirupsen/logrus"
)

// StatusFetcher is the slice of the data provider the poller needs.
type StatusFetcher interface {
	GetScrapJob(ctx context.Context, scope models.Scope, id string) (*models.ScrapJob, error)
}

// Poller polls job status at a fixed interval. The interval never adapts
// to progress; a run is abandoned only when its job reaches a terminal
// state or the watcher's context is cancelled.
type Poller struct {
	fetcher  StatusFetcher
	interval time.Duration
}

// NewPoller builds a poller. Intervals below 100ms are clamped to keep a
// misconfigured deployment from hammering the upstream.
func NewPoller(fetcher StatusFetcher, interval time.Duration) *Poller {
	if interval < 100*time.Millisecond {
		interval = 2 * time.Second
	}
	return &Poller{fetcher: fetcher, interval: interval}
}

// Watch polls jobID until it reaches a terminal state or ctx is
// cancelled, sending every observed snapshot on the returned channel.
// The first fetch happens immediately. The channel is closed when the
// watch ends; a watch never restarts after a terminal state.
func (p *Poller) Watch(ctx context.Context, scope models.Scope, jobID string) <-chan models.ScrapJob {
	updates := make(chan models.ScrapJob, 1)
	go func() {
		defer close(updates)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			job, err := p.fetcher.GetScrapJob(ctx, scope, jobID)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"job_id": jobID,
					"error":  err.Error(),
				}).Warn("Job status fetch failed, stopping watch")
				return
			}

			select {
			case updates <- *job:
			case <-ctx.Done():
				return
			}

			if job.Status.Terminal() {
				logrus.WithFields(logrus.Fields{
					"job_id": jobID,
					"status": job.Status,
				}).Info("Job reached terminal state, watch ended")
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return updates
}
