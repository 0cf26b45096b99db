package testutil

import (
	"os"
	"testing"
)

// SkipIfNoNetwork skips the test if TASKER_TEST_SKIP_NETWORK is set.
// Tests that bind a loopback listener call this first so they can be
// disabled in sandboxes without socket access.
func SkipIfNoNetwork(t testing.TB) {
	t.Helper()
	if os.Getenv("TASKER_TEST_SKIP_NETWORK") != "" {
		t.Skip("skipping network test: TASKER_TEST_SKIP_NETWORK is set")
	}
}
