package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/hilthontt/haven/internal/domain"
	"github.com/hilthontt/haven/internal/infrastructure/logging"
)

// AuditRetentionJob prunes audit entries older than the retention window. The Mongo store
// also has a TTL index, so this mostly matters for the in-memory store.
type AuditRetentionJob struct {
	audit     domain.CircleAuditRepository
	logger    logging.Logger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	stopChan  chan struct{}
	stopOnce  sync.Once
}

func NewAuditRetentionJob(audit domain.CircleAuditRepository, logger logging.Logger, retention, interval time.Duration) *AuditRetentionJob {
	return &AuditRetentionJob{
		audit:     audit,
		logger:    logger,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

func (j *AuditRetentionJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.RunOnce(ctx)
		case <-j.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (j *AuditRetentionJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
}

func (j *AuditRetentionJob) RunOnce(ctx context.Context) {
	before := j.now().Add(-j.retention)
	if err := j.audit.DeleteOlderThan(ctx, before); err != nil {
		j.logger.Error(logging.Sweeper, logging.Retention, "Failed to prune audit log", logging.WithError(err, nil))
	}
}
