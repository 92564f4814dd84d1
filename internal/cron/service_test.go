package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/furnishly-backend/pkg/logger"
	"github.com/angelmondragon/furnishly-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	releases int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestCronService(t *testing.T, lock Lock, reg prometheus.Registerer, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "cart-retention"}
	failure := &testJob{name: "promotion-expiry", err: errors.New("boom")}
	lock := &fakeLock{}
	service := newTestCronService(t, lock, prometheus.NewRegistry(), failure, success)

	err := service.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected the failing job to surface")
	}
	if got := len(multierr.Errors(err)); got != 1 {
		t.Fatalf("expected 1 error, got %d", got)
	}
	if success.runs != 1 || failure.runs != 1 {
		t.Fatalf("expected both jobs to run once, got success=%d failure=%d", success.runs, failure.runs)
	}
	if lock.held || lock.releases != 1 {
		t.Fatalf("lock not released: held=%v releases=%d", lock.held, lock.releases)
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "cart-retention"}
	lock := &fakeLock{held: true}
	service := newTestCronService(t, lock, nil, job)

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job ran without the lock")
	}
	if lock.releases != 0 {
		t.Fatalf("released a lock it did not own")
	}
}

func TestRunOnceCountsSkippedCycles(t *testing.T) {
	reg := prometheus.NewRegistry()
	service := newTestCronService(t, &fakeLock{held: true}, reg, &testJob{name: "cart-retention"})
	_ = service.RunOnce(context.Background())
	_ = service.RunOnce(context.Background())

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "furnishly_cron_cycles_skipped_total" {
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 2 {
				t.Fatalf("expected 2 skipped cycles, got %v", got)
			}
			return
		}
	}
	t.Fatal("skipped cycle counter not exported")
}

func TestRunOnceWrapsJobErrorsWithName(t *testing.T) {
	boom := errors.New("boom")
	service := newTestCronService(t, &fakeLock{}, nil, &testJob{name: "promotion-expiry", err: boom})

	err := service.RunOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped job error, got %v", err)
	}
	if got := err.Error(); got != "promotion-expiry: boom" {
		t.Fatalf("unexpected error text %q", got)
	}
}

func TestRunOnceLockError(t *testing.T) {
	job := &testJob{name: "cart-retention"}
	service := newTestCronService(t, &fakeLock{err: errors.New("redis down")}, nil, job)

	if err := service.RunOnce(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
	if job.runs != 0 {
		t.Fatalf("job ran without the lock")
	}
}

func TestRunOnceRecordsJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	service := newTestCronService(t, &fakeLock{}, reg,
		&testJob{name: "ok-job"},
		&testJob{name: "bad-job", err: errors.New("boom")},
	)
	_ = service.RunOnce(context.Background())

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	seen := map[string]bool{}
	for _, mf := range mfs {
		seen[mf.GetName()] = true
	}
	for _, name := range []string{
		"furnishly_cron_job_runs_total",
		"furnishly_cron_job_duration_seconds",
		"furnishly_cron_job_last_success_timestamp_seconds",
	} {
		if !seen[name] {
			t.Fatalf("metric %s not recorded; have %v", name, seen)
		}
	}
}


func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "cart-retention"}
	service := newTestCronService(t, &fakeLock{}, nil, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected the initial cycle to run, got %d", job.runs)
	}
}
