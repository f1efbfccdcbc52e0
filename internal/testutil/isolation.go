// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"os"
	"strings"
	"testing"
)

// IsolateEnv unsets every environment variable starting with prefix for the
// duration of the test and restores them in t.Cleanup, so overrides present
// in the developer's shell cannot leak into activation tests. Not for use in
// parallel tests.
func IsolateEnv(t *testing.T, prefix string) {
	t.Helper()

	snapshot := map[string]string{}
	for _, kv := range os.Environ() {
		key, value, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, prefix) {
			snapshot[key] = value
		}
	}
	for key := range snapshot {
		_ = os.Unsetenv(key)
	}

	t.Cleanup(func() {
		for _, kv := range os.Environ() {
			key, _, _ := strings.Cut(kv, "=")
			if _, ok := snapshot[key]; !ok && strings.HasPrefix(key, prefix) {
				_ = os.Unsetenv(key)
			}
		}
		for key, value := range snapshot {
			_ = os.Setenv(key, value)
		}
	})
}
