package app

import (
	"os"
	"strconv"
)

const testModeEnv = "PRINTHUB_TEST_MODE"

// InTestMode reports whether PRINTHUB_TEST_MODE asks binaries to exit before
// connecting to postgres or redis. Unparseable values count as off.
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	return err == nil && on
}
