// Package testing prepares the environment for packages whose tests build the app
// container. Import it for side effects.
package testing

import "os"

// defaults keep tests on the in-process store and locks unless the caller already
// chose otherwise.
var defaults = map[string]string{
	"PRINTHUB_TEST_MODE": "1",
	"STORE_DRIVER":       "memory",
	"LOCK_BACKEND":       "local",
	"JOBS_ENABLED":       "false",
}

func init() {
	for key, value := range defaults {
		if _, ok := os.LookupEnv(key); !ok {
			_ = os.Setenv(key, value)
		}
	}
}
