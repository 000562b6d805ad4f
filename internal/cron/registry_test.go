package cron

import (
	"context"
	"strings"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryStoresJobs(t *testing.T) {
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	jobA := &stubJob{name: "subscription-renewals"}
	jobB := &stubJob{name: "pending-charge-backlog"}
	if err := registry.Register(jobA); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := registry.Register(jobB); err != nil {
		t.Fatalf("register b: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("jobs returned out of order")
	}
	// ensure caller cannot mutate internal slice
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
	if got := strings.Join(registry.Names(), ","); got != "subscription-renewals,pending-charge-backlog" {
		t.Fatalf("unexpected names %q", got)
	}
}

func TestRegistryRejectsDuplicateAndBlankNames(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: "sync-dead-letters"}, nil, &stubJob{name: "sync-dead-letters"})
	if err == nil || !strings.Contains(err.Error(), "already registered") {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	registry, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if err := registry.Register(&stubJob{name: "  "}); err == nil {
		t.Fatal("expected blank name to be rejected")
	}
	if len(registry.Jobs()) != 0 {
		t.Fatalf("rejected job was stored")
	}
	var zero Registry
	if err := zero.Register(&stubJob{name: "subscription-renewals"}); err != nil {
		t.Fatalf("zero registry register: %v", err)
	}
}
