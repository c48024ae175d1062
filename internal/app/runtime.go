package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

// testModeEnv makes the binaries exit before touching Postgres or Redis.
const testModeEnv = "SENTINEL_TEST_MODE"

const (
	modeUnknown int32 = iota
	modeOff
	modeOn
)

var testMode atomic.Int32

// InTestMode reports whether SENTINEL_TEST_MODE is set to a true value. The
// variable is read once and cached.
func InTestMode() bool {
	switch testMode.Load() {
	case modeOn:
		return true
	case modeOff:
		return false
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads the environment and returns the new state.
func RefreshTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	if err != nil || !on {
		testMode.Store(modeOff)
		return false
	}
	testMode.Store(modeOn)
	return true
}
