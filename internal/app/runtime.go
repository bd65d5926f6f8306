package app

import (
	"os"
	"strconv"
	"strings"
)

// TestModeEnv makes cmd/aurum and cmd/worker return before they dial
// PostgreSQL, Redis, the WhatsApp sidecar or the payment gateway.
const TestModeEnv = "AURUM_TEST_MODE"

// InTestMode reports whether TestModeEnv holds a true value. The variable is
// read on every call so tests may flip it with t.Setenv.
func InTestMode() bool {
	on, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(TestModeEnv)))
	return err == nil && on
}
