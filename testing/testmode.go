// Package testing switches binaries into test mode for any test package that
// imports it for side effects.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

const testModeEnv = "PHARMAOPS_TEST_MODE"

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv(testModeEnv, "1")
		if os.Getenv("JWT_SECRET") == "" {
			_ = os.Setenv("JWT_SECRET", "test-secret-test-secret-test-secret")
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain runs m with test mode forced on.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
