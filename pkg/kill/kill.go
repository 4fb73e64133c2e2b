// Package kill implements the global kill switch guarding all
// self-modification. The switch is tripped either by setting
// COCKPIT_EVOLVE=off or by the presence of a sentinel file on disk,
// so operators can halt the system from outside the process.
package kill

import (
	"errors"
	"fmt"
	"os"
)

// ErrTripped is returned by RequireAlive when the switch is tripped.
// It is never retried automatically.
var ErrTripped = errors.New("service disabled by kill switch")

// SentinelPath returns the path of the sentinel file. The
// KILL_SWITCH_PATH environment variable overrides the default.
func SentinelPath() string {
	if p := os.Getenv("KILL_SWITCH_PATH"); p != "" {
		return p
	}
	return "KILL_SWITCH"
}

// IsTripped reports whether the kill switch is active. The
// COCKPIT_EVOLVE=off override wins regardless of sentinel state.
func IsTripped() bool {
	if os.Getenv("COCKPIT_EVOLVE") == "off" {
		return true
	}
	_, err := os.Stat(SentinelPath())
	return err == nil
}

// RequireAlive returns ErrTripped if the switch is active. Callers
// translate this into their own error semantics rather than exiting.
func RequireAlive() error {
	if IsTripped() {
		return ErrTripped
	}
	return nil
}

// Trip persists the tripped state across processes by creating the
// sentinel file. The contents are irrelevant; existence alone trips
// the switch, but a marker helps a human operator understand why the
// file exists.
func Trip() error {
	if err := os.WriteFile(SentinelPath(), []byte("halt\n"), 0o640); err != nil {
		return fmt.Errorf("trip kill switch: %w", err)
	}
	return nil
}

// Reset removes the sentinel file if present.
func Reset() error {
	err := os.Remove(SentinelPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reset kill switch: %w", err)
	}
	return nil
}
