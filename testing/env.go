// Package testing prepares the process environment for package tests that
// load the application configuration. Import it for side effects.
package testing

import (
	"os"
	"sync"
)

var once sync.Once

var defaults = map[string]string{
	"APP_ENV":        "test",
	"SESSION_SECRET": "test-session-secret",
	"TOKEN_SECRET":   "test-token-secret-test-token-secret",
	"CSRF_SECRET":    "test-csrf-secret",
	"AUDIT_ASYNC":    "false",
}

func ensureTestEnv() {
	once.Do(func() {
		for key, value := range defaults {
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, value)
			}
		}
	})
}

func init() {
	ensureTestEnv()
}
