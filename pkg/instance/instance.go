package instance

import (
	"fmt"
	"os"
)

// GetID returns the worker instance identifier. Renewal locks record it as the
// runner id, so it falls back to host and pid rather than a shared constant.
func GetID() string {
	if id := os.Getenv("LEARNBILL_WORKER_ID"); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
