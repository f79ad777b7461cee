package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds the timing knobs of a run.
// These values can be customized via environment variables.
type Timeouts struct {
	PollInterval      time.Duration // Delay between readiness poll attempts
	AddressWait       time.Duration // Limit for address readiness, 0 waits forever
	BootWait          time.Duration // Limit for guest boot readiness, 0 waits forever
	Operation         time.Duration // Limit for a single hypervisor operation
	RetryMaxAttempts  int           // Maximum number of retry attempts
	RetryInitialDelay time.Duration // Initial delay between retries
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - CHALDEPLOY_POLL_INTERVAL (default: 200ms)
//   - CHALDEPLOY_ADDRESS_TIMEOUT (default: 0, no limit)
//   - CHALDEPLOY_BOOT_TIMEOUT (default: 0, no limit)
//   - CHALDEPLOY_OPERATION_TIMEOUT (default: 10m)
//   - CHALDEPLOY_RETRY_MAX_ATTEMPTS (default: 5)
//   - CHALDEPLOY_RETRY_INITIAL_DELAY (default: 1s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		PollInterval:      parsePositiveDuration("CHALDEPLOY_POLL_INTERVAL", 200*time.Millisecond),
		AddressWait:       parseDuration("CHALDEPLOY_ADDRESS_TIMEOUT", 0),
		BootWait:          parseDuration("CHALDEPLOY_BOOT_TIMEOUT", 0),
		Operation:         parsePositiveDuration("CHALDEPLOY_OPERATION_TIMEOUT", 10*time.Minute),
		RetryMaxAttempts:  parseInt("CHALDEPLOY_RETRY_MAX_ATTEMPTS", 5),
		RetryInitialDelay: parseDuration("CHALDEPLOY_RETRY_INITIAL_DELAY", 1*time.Second),
	}
}

// TestTimeouts returns fast timeouts for tests.
func TestTimeouts() *Timeouts {
	return &Timeouts{
		PollInterval:      time.Millisecond,
		AddressWait:       2 * time.Second,
		BootWait:          2 * time.Second,
		Operation:         10 * time.Second,
		RetryMaxAttempts:  2,
		RetryInitialDelay: time.Millisecond,
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set, negative or invalid, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return defaultVal
	}

	return d
}

// parsePositiveDuration is parseDuration for knobs where zero is not a
// usable value.
func parsePositiveDuration(envVar string, defaultVal time.Duration) time.Duration {
	if d := parseDuration(envVar, defaultVal); d > 0 {
		return d
	}
	return defaultVal
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return i
}
