package cron

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/learnbill-backend/pkg/logger"
)

type fakeLock struct {
	acquired bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.acquired = false; return nil }

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

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
	registry, err := NewRegistry(&testJob{name: "success"}, &testJob{name: "fail", err: errors.New("boom")})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	service, err := NewService(ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     &fakeLock{},
		Interval: 0,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx := context.Background()
	if err := service.runCycle(ctx); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if success, ok := jobs[0].(*testJob); ok {
		if success.runs != 1 {
			t.Fatalf("expected success job to run once, ran %d", success.runs)
		}
	} else {
		t.Fatalf("first job type mismatch")
	}
	if failure, ok := jobs[1].(*testJob); ok {
		if failure.runs != 1 {
			t.Fatalf("expected failure job to run once, ran %d", failure.runs)
		}
	} else {
		t.Fatalf("second job type mismatch")
	}
}

func TestServiceRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "renewals"}
	lock := &fakeLock{acquired: true}
	registry, err := NewRegistry(job)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: registry,
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job to be skipped, ran %d", job.runs)
	}
	if !lock.acquired {
		t.Fatalf("lock held by another instance must not be released")
	}
}

type slowJob struct {
	name string
	runs int
}

func (s *slowJob) Name() string { return s.name }

func (s *slowJob) Run(ctx context.Context) error {
	s.runs++
	<-ctx.Done()
	return ctx.Err()
}

func TestServiceRunCycleStopsAtCycleDeadline(t *testing.T) {
	slow := &slowJob{name: "subscription-renewals"}
	next := &testJob{name: "pending-charge-backlog"}
	registry, err := NewRegistry(slow, next)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:       logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry:     registry,
		Lock:         lock,
		CycleTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	err = service.runCycle(context.Background())
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if !strings.Contains(err.Error(), "pending-charge-backlog") {
		t.Fatalf("expected skipped job in error, got %v", err)
	}
	if slow.runs != 1 || next.runs != 0 {
		t.Fatalf("unexpected runs: slow=%d next=%d", slow.runs, next.runs)
	}
	if lock.acquired {
		t.Fatal("lock must be released after a timed-out cycle")
	}
}
