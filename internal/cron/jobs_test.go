package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/learnbill-backend/internal/renewals"
	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
	"github.com/angelmondragon/learnbill-backend/pkg/metrics"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

type fakeRenewalRunner struct {
	agencyID *uuid.UUID
	limit    int
	calls    int
	result   renewals.RunResult
	err      error
}

func (f *fakeRenewalRunner) RunDueRenewals(_ context.Context, agencyID *uuid.UUID, _ *uuid.UUID, limit int) (renewals.RunResult, error) {
	f.calls++
	f.agencyID = agencyID
	f.limit = limit
	return f.result, f.err
}

func TestRenewalsJobRunsAcrossAgencies(t *testing.T) {
	runner := &fakeRenewalRunner{result: renewals.RunResult{Scanned: 3, Renewed: 2, Skipped: 1}}
	job, err := NewRenewalsJob(RenewalsJobParams{Logger: testLogger(), Runner: runner, Limit: 25})
	if err != nil {
		t.Fatalf("NewRenewalsJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if runner.calls != 1 {
		t.Fatalf("expected one pass, got %d", runner.calls)
	}
	if runner.agencyID != nil {
		t.Fatalf("expected unscoped pass, got agency %s", runner.agencyID)
	}
	if runner.limit != 25 {
		t.Fatalf("expected limit 25, got %d", runner.limit)
	}
}

func TestRenewalsJobPropagatesError(t *testing.T) {
	runner := &fakeRenewalRunner{result: renewals.RunResult{Scanned: 1, Failed: 1}, err: errors.New("boom")}
	job, err := NewRenewalsJob(RenewalsJobParams{Logger: testLogger(), Runner: runner})
	if err != nil {
		t.Fatalf("NewRenewalsJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type fakePendingCharges struct {
	count     int64
	charges   []models.SessionCharge
	olderThan time.Duration
	listed    int
}

func (f *fakePendingCharges) CountPendingBacklog(_ context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return f.count, nil
}

func (f *fakePendingCharges) ListPendingBacklog(_ context.Context, _ *uuid.UUID, _ time.Duration, limit int) ([]models.SessionCharge, error) {
	f.listed++
	if limit < len(f.charges) {
		return f.charges[:limit], nil
	}
	return f.charges, nil
}

func TestPendingBacklogJobSetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	charges := &fakePendingCharges{
		count: 2,
		charges: []models.SessionCharge{
			{ID: uuid.New(), AgencyID: uuid.New(), SessionID: uuid.New()},
			{ID: uuid.New(), AgencyID: uuid.New(), SessionID: uuid.New()},
		},
	}
	job, err := NewPendingBacklogJob(PendingBacklogJobParams{
		Logger:  testLogger(),
		Charges: charges,
		Metrics: metrics.NewBillingMetrics(reg),
	})
	if err != nil {
		t.Fatalf("NewPendingBacklogJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if charges.olderThan != defaultBacklogAge {
		t.Fatalf("expected default age %s, got %s", defaultBacklogAge, charges.olderThan)
	}
	if charges.listed != 1 {
		t.Fatalf("expected backlog sample to be listed once, got %d", charges.listed)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var gauge float64 = -1
	for _, mf := range mfs {
		if mf.GetName() == "learnbill_pending_charges_backlog" {
			gauge = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	if gauge != 2 {
		t.Fatalf("expected backlog gauge 2, got %v", gauge)
	}
}

func TestPendingBacklogJobSkipsListingWhenEmpty(t *testing.T) {
	charges := &fakePendingCharges{}
	job, err := NewPendingBacklogJob(PendingBacklogJobParams{Logger: testLogger(), Charges: charges, Age: time.Hour})
	if err != nil {
		t.Fatalf("NewPendingBacklogJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if charges.listed != 0 {
		t.Fatalf("expected no listing, got %d", charges.listed)
	}
	if charges.olderThan != time.Hour {
		t.Fatalf("expected configured age, got %s", charges.olderThan)
	}
}

type fakeDeadLetters struct {
	jobs  []models.SyncJob
	limit int
	err   error
}

func (f *fakeDeadLetters) ListDead(_ context.Context, limit int) ([]models.SyncJob, error) {
	f.limit = limit
	return f.jobs, f.err
}

func TestSyncDeadLetterJob(t *testing.T) {
	msg := "topic not found"
	jobs := &fakeDeadLetters{jobs: []models.SyncJob{{ID: uuid.New(), AttemptCount: 8, LastError: &msg}}}
	job, err := NewSyncDeadLetterJob(SyncDeadLetterJobParams{Logger: testLogger(), Jobs: jobs})
	if err != nil {
		t.Fatalf("NewSyncDeadLetterJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if jobs.limit != deadLetterReportLimit {
		t.Fatalf("expected limit %d, got %d", deadLetterReportLimit, jobs.limit)
	}

	jobs.err = errors.New("db down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
