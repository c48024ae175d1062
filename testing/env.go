// Package testing primes the environment for tests that build real Sentinel
// components. Import it for its side effect:
//
//	import _ "github.com/odyssey-erp/sentinel/testing"
package testing

import "os"

// defaults are applied only when the variable is unset, so a developer can
// still point a test run at real services.
var defaults = [][2]string{
	{"SENTINEL_TEST_MODE", "1"},
	{"APP_ENV", "testing"},
	{"SESSION_SECRET", "test-session-secret"},
	{"CSRF_SECRET", "test-csrf-secret"},
}

func init() {
	for _, kv := range defaults {
		if _, ok := os.LookupEnv(kv[0]); ok {
			continue
		}
		if err := os.Setenv(kv[0], kv[1]); err != nil {
			panic("testing: set " + kv[0] + ": " + err.Error())
		}
	}
}
