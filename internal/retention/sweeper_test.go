package retention

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"facultychat/internal/metrics"
	"facultychat/internal/store"
)

type fakeStore struct {
	retentionPolicyFn func(context.Context) (store.RetentionPolicy, error)
	deleteGroupFn     func(context.Context, time.Time) (int64, error)
	deletePrivateFn   func(context.Context, time.Time) (int64, error)
}

func (f *fakeStore) RetentionPolicy(ctx context.Context) (store.RetentionPolicy, error) {
	if f.retentionPolicyFn != nil {
		return f.retentionPolicyFn(ctx)
	}
	return store.RetentionPolicy{GroupHours: 2, PrivateHours: 2}, nil
}

func (f *fakeStore) DeleteGroupMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if f.deleteGroupFn != nil {
		return f.deleteGroupFn(ctx, cutoff)
	}
	return 0, nil
}

func (f *fakeStore) DeletePrivateMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if f.deletePrivateFn != nil {
		return f.deletePrivateFn(ctx, cutoff)
	}
	return 0, nil
}

var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestSweeper(t *testing.T, fs *fakeStore, m *metrics.Metrics, opts Options) *Sweeper {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	s, err := New(fs, m, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestRunOnceUsesPolicyWindows(t *testing.T) {
	var groupCutoff, privateCutoff time.Time
	fs := &fakeStore{
		retentionPolicyFn: func(context.Context) (store.RetentionPolicy, error) {
			return store.RetentionPolicy{GroupHours: 2, PrivateHours: 24}, nil
		},
		deleteGroupFn: func(_ context.Context, cutoff time.Time) (int64, error) {
			groupCutoff = cutoff
			return 5, nil
		},
		deletePrivateFn: func(_ context.Context, cutoff time.Time) (int64, error) {
			privateCutoff = cutoff
			return 1, nil
		},
	}
	s := newTestSweeper(t, fs, metrics.New(), Options{})

	result, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if !groupCutoff.Equal(fixedNow.Add(-2 * time.Hour)) {
		t.Fatalf("unexpected group cutoff %v", groupCutoff)
	}
	if !privateCutoff.Equal(fixedNow.Add(-24 * time.Hour)) {
		t.Fatalf("unexpected private cutoff %v", privateCutoff)
	}
	if result.GroupDeleted != 5 || result.PrivateDeleted != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRunOnceNeverPlacesCutoffAfterNow(t *testing.T) {
	var groupCutoff, privateCutoff time.Time
	fs := &fakeStore{
		retentionPolicyFn: func(context.Context) (store.RetentionPolicy, error) {
			return store.RetentionPolicy{GroupHours: 3000000, PrivateHours: store.MaxLifetimeHours}, nil
		},
		deleteGroupFn: func(_ context.Context, cutoff time.Time) (int64, error) {
			groupCutoff = cutoff
			return 0, nil
		},
		deletePrivateFn: func(_ context.Context, cutoff time.Time) (int64, error) {
			privateCutoff = cutoff
			return 0, nil
		},
	}
	s := newTestSweeper(t, fs, metrics.New(), Options{})

	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if !groupCutoff.Before(fixedNow) {
		t.Fatalf("group cutoff %v must be before %v", groupCutoff, fixedNow)
	}
	if !privateCutoff.Before(fixedNow) || privateCutoff.Year() > 1800 {
		t.Fatalf("private cutoff %v must be centuries before %v", privateCutoff, fixedNow)
	}
}

func TestRunOnceAttemptsBothScopesOnFailure(t *testing.T) {
	m := metrics.New()
	privateCalled := false
	fs := &fakeStore{
		deleteGroupFn: func(context.Context, time.Time) (int64, error) {
			return 0, errors.New("db down")
		},
		deletePrivateFn: func(context.Context, time.Time) (int64, error) {
			privateCalled = true
			return 3, nil
		},
	}
	s := newTestSweeper(t, fs, m, Options{})

	result, err := s.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error when group sweep fails")
	}
	if !privateCalled || result.PrivateDeleted != 3 {
		t.Fatalf("private sweep must still run, result=%+v", result)
	}
	expected := `
# HELP chat_retention_failures_total Retention sweeps that failed and were deferred to the next tick.
# TYPE chat_retention_failures_total counter
chat_retention_failures_total 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "chat_retention_failures_total"); err != nil {
		t.Fatalf("failure counter: %v", err)
	}
}

func TestRunOnceFailsWhenPolicyUnavailable(t *testing.T) {
	deleted := false
	fs := &fakeStore{
		retentionPolicyFn: func(context.Context) (store.RetentionPolicy, error) {
			return store.RetentionPolicy{}, errors.New("db down")
		},
		deleteGroupFn: func(context.Context, time.Time) (int64, error) {
			deleted = true
			return 0, nil
		},
	}
	s := newTestSweeper(t, fs, nil, Options{})

	if _, err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if deleted {
		t.Fatal("nothing may be deleted without a policy")
	}
}

func TestRunOnceRejectsOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	fs := &fakeStore{
		deleteGroupFn: func(context.Context, time.Time) (int64, error) {
			close(started)
			<-release
			return 0, nil
		},
	}
	s := newTestSweeper(t, fs, nil, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		done <- err
	}()
	<-started

	if _, err := s.RunOnce(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
}

func TestRunSweepsOnIntervalUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	fs := &fakeStore{
		deleteGroupFn: func(context.Context, time.Time) (int64, error) {
			runs.Add(1)
			return 0, nil
		},
	}
	s := newTestSweeper(t, fs, nil, Options{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-stopped
	if runs.Load() < 2 {
		t.Fatalf("expected at least two runs, got %d", runs.Load())
	}
}

func TestCronSchedule(t *testing.T) {
	if _, err := New(&fakeStore{}, nil, Options{Cron: "not a cron"}); err == nil {
		t.Fatal("expected invalid cron to be rejected")
	}

	s := newTestSweeper(t, &fakeStore{}, nil, Options{Cron: "0 * * * *", Now: func() time.Time {
		return time.Date(2024, 5, 10, 12, 45, 0, 0, time.UTC)
	}})
	wait, err := s.nextDelay()
	if err != nil {
		t.Fatalf("nextDelay() error = %v", err)
	}
	if wait != 15*time.Minute {
		t.Fatalf("expected 15m until the next hour, got %v", wait)
	}
}
