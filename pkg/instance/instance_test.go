package instance

import (
	"strings"
	"testing"
)

func TestGetIDPrefersEnv(t *testing.T) {
	t.Setenv("LEARNBILL_WORKER_ID", "renewals-7")
	if got := GetID(); got != "renewals-7" {
		t.Fatalf("expected env id, got %q", got)
	}
}

func TestGetIDFallsBackToHost(t *testing.T) {
	t.Setenv("LEARNBILL_WORKER_ID", "")
	got := GetID()
	if got == "" || !strings.Contains(got, "-") {
		t.Fatalf("expected host-pid id, got %q", got)
	}
}
