package audit

import (
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"veloz/internal/logging"
)

// ApplyRetentionPolicy deletes any segment in dir whose filename-encoded
// creation time is older than now-retentionDays, exempting activePath (the
// segment the writer currently has open). Deletions are idempotent
// (spec.md §4.A).
func ApplyRetentionPolicy(dir string, retentionDays int, activePath string, log *logging.Logger) (deleted int, err error) {
	segs, err := listSegments(dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	for _, seg := range segs {
		if seg.Path == activePath {
			continue
		}
		if seg.CreatedAt.After(cutoff) {
			continue
		}
		if err := os.Remove(seg.Path); err != nil && !os.IsNotExist(err) {
			if log != nil {
				log.Error("audit: retention delete failed", err)
			}
			continue
		}
		deleted++
	}
	return deleted, nil
}

// RetentionScheduler runs ApplyRetentionPolicy on a cron schedule
// (DOMAIN STACK: robfig/cron/v3), in addition to its being callable
// synchronously from tests.
type RetentionScheduler struct {
	cron *cron.Cron
	p    *Pipeline
}

// NewRetentionScheduler wires ApplyRetentionPolicy to run at spec, e.g.
// "0 0 * * *" for once daily at midnight UTC.
func NewRetentionScheduler(p *Pipeline, spec string) (*RetentionScheduler, error) {
	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(spec, func() {
		p.applyRetentionNow()
	})
	if err != nil {
		return nil, err
	}
	return &RetentionScheduler{cron: c, p: p}, nil
}

// Start begins the cron scheduler's background goroutine.
func (r *RetentionScheduler) Start() { r.cron.Start() }

// Stop cancels the scheduler and waits for any running job to finish.
func (r *RetentionScheduler) Stop() { <-r.cron.Stop().Done() }

// applyRetentionNow is the cron callback target; errors are logged and
// counted rather than propagated, matching the pipeline's general failure
// model (spec.md §4.A).
func (p *Pipeline) applyRetentionNow() {
	if _, err := p.ApplyRetentionPolicy(); err != nil {
		p.log.Error("audit: retention pass failed", err)
		p.totalErrors.Add(1)
	}
}
