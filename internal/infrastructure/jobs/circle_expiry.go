package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/hilthontt/haven/internal/application/usecases/circle"
	"github.com/hilthontt/haven/internal/infrastructure/logging"
	"github.com/hilthontt/haven/internal/infrastructure/metrics"
)

// Sweeper is the part of the circle use case the expiry job drives.
type Sweeper interface {
	ExpireDue(ctx context.Context) (circle.SweepResult, error)
}

type CircleExpiryJob struct {
	sweeper  Sweeper
	metrics  *metrics.Metrics
	logger   logging.Logger
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewCircleExpiryJob(sweeper Sweeper, m *metrics.Metrics, logger logging.Logger, interval time.Duration) *CircleExpiryJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CircleExpiryJob{
		sweeper:  sweeper,
		metrics:  m,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start sweeps once immediately and then on every tick until Stop or ctx is done.
func (j *CircleExpiryJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info(logging.Sweeper, logging.Startup, "Circle expiry job started", map[logging.ExtraKey]any{
		logging.Duration: j.interval.String(),
	})

	j.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			j.RunOnce(ctx)
		case <-j.stopChan:
			j.logger.Info(logging.Sweeper, logging.Shutdown, "Circle expiry job stopped", nil)
			return
		case <-ctx.Done():
			j.logger.Info(logging.Sweeper, logging.Shutdown, "Circle expiry job context cancelled", nil)
			return
		}
	}
}

func (j *CircleExpiryJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
}

// RunOnce performs a single sweep.
func (j *CircleExpiryJob) RunOnce(ctx context.Context) circle.SweepResult {
	startTime := time.Now()

	result, err := j.sweeper.ExpireDue(ctx)
	elapsed := time.Since(startTime)
	j.metrics.Sweep(elapsed, result.Expired)

	if err != nil {
		j.logger.Error(logging.Sweeper, logging.ExpireCircle, "Circle expiry sweep failed", logging.WithError(err, map[logging.ExtraKey]any{
			logging.Latency: elapsed.String(),
		}))
		return result
	}

	if result.Expired > 0 || result.Failed > 0 {
		j.logger.Info(logging.Sweeper, logging.ExpireCircle, "Circle expiry sweep completed", map[logging.ExtraKey]any{
			logging.Count:   result.Expired,
			"Checked":       result.Checked,
			"Failed":        result.Failed,
			logging.Latency: elapsed.String(),
		})
	}
	return result
}
