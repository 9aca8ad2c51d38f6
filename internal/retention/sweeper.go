// Package retention deletes messages that have outlived their configured
// lifetime.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"

	"facultychat/internal/metrics"
	"facultychat/internal/store"
)

var ErrRunInProgress = errors.New("retention run already in progress")

type policyStore interface {
	RetentionPolicy(ctx context.Context) (store.RetentionPolicy, error)
	DeleteGroupMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeletePrivateMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Options struct {
	// Interval between runs when Cron is empty.
	Interval time.Duration
	// Cron, when set, schedules runs instead of Interval.
	Cron string
	Now  func() time.Time
}

type Result struct {
	Policy         store.RetentionPolicy
	GroupDeleted   int64
	PrivateDeleted int64
}

type Sweeper struct {
	store   policyStore
	metrics *metrics.Metrics
	opts    Options
	running atomic.Bool
	logger  *slog.Logger
}

func New(s policyStore, m *metrics.Metrics, opts Options) (*Sweeper, error) {
	if opts.Cron != "" && !gronx.IsValid(opts.Cron) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", opts.Cron)
	}
	if opts.Cron == "" && opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sweeper{
		store:   s,
		metrics: m,
		opts:    opts,
		logger:  slog.Default().With("component", "retention"),
	}, nil
}

// Run sweeps on schedule until ctx is cancelled. The first sweep happens one
// period after start.
func (s *Sweeper) Run(ctx context.Context) {
	if s.opts.Cron != "" {
		s.logger.Info("retention_scheduler_started", "cron", s.opts.Cron)
	} else {
		s.logger.Info("retention_scheduler_started", "interval", s.opts.Interval.String())
	}

	for {
		wait, err := s.nextDelay()
		if err != nil {
			s.logger.Error("retention_nexttick_failed", "cron", s.opts.Cron, "error", err)
			wait = 30 * time.Second
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("retention_scheduler_stopping")
			return
		case <-timer.C:
		}

		if _, err := s.RunOnce(ctx); err != nil {
			if errors.Is(err, ErrRunInProgress) {
				s.logger.Info("retention_run_skipped", "reason", "in_progress")
				continue
			}
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("retention_run_failed", "error", err)
		}
	}
}

func (s *Sweeper) nextDelay() (time.Duration, error) {
	if s.opts.Cron == "" {
		return s.opts.Interval, nil
	}
	now := s.opts.Now().UTC()
	next, err := gronx.NextTickAfter(s.opts.Cron, now, false)
	if err != nil {
		return 0, err
	}
	if wait := next.Sub(now); wait > 0 {
		return wait, nil
	}
	return time.Second, nil
}

// RunOnce reads the policy and deletes expired group and private messages.
// Both deletions are attempted even if the first fails.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Result{}, ErrRunInProgress
	}
	defer s.running.Store(false)

	policy, err := s.store.RetentionPolicy(ctx)
	if err != nil {
		s.metrics.RetentionFailed()
		return Result{}, fmt.Errorf("read retention policy: %w", err)
	}

	now := s.opts.Now()
	result := Result{Policy: policy}
	var errs []error

	result.GroupDeleted, err = s.store.DeleteGroupMessagesBefore(ctx, cutoff(now, policy.GroupHours))
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep group messages: %w", err))
	}
	result.PrivateDeleted, err = s.store.DeletePrivateMessagesBefore(ctx, cutoff(now, policy.PrivateHours))
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep private messages: %w", err))
	}

	s.metrics.RetentionDeleted(metrics.ScopeGroup, result.GroupDeleted)
	s.metrics.RetentionDeleted(metrics.ScopePrivate, result.PrivateDeleted)
	if len(errs) > 0 {
		s.metrics.RetentionFailed()
		return result, errors.Join(errs...)
	}

	s.logger.Info("retention_run_complete",
		"group_hours", policy.GroupHours,
		"private_hours", policy.PrivateHours,
		"group_deleted", result.GroupDeleted,
		"private_deleted", result.PrivateDeleted,
	)
	return result, nil
}

// cutoff is now minus hours. Windows too long to represent as a Duration
// yield the zero time, which matches no rows.
func cutoff(now time.Time, hours int) time.Time {
	if hours > store.MaxLifetimeHours {
		return time.Time{}
	}
	return now.Add(-time.Duration(hours) * time.Hour)
}
