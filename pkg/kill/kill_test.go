package kill

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKillSwitch(t *testing.T) {
	t.Run("clean state is alive", func(t *testing.T) {
		t.Setenv("COCKPIT_EVOLVE", "")
		t.Setenv("KILL_SWITCH_PATH", filepath.Join(t.TempDir(), "KILL_SWITCH"))
		assert.False(t, IsTripped())
		assert.NoError(t, RequireAlive())
	})

	t.Run("env override trips", func(t *testing.T) {
		t.Setenv("COCKPIT_EVOLVE", "off")
		t.Setenv("KILL_SWITCH_PATH", filepath.Join(t.TempDir(), "KILL_SWITCH"))
		assert.True(t, IsTripped())
		assert.ErrorIs(t, RequireAlive(), ErrTripped)
	})

	t.Run("sentinel file trips and reset clears", func(t *testing.T) {
		t.Setenv("COCKPIT_EVOLVE", "")
		t.Setenv("KILL_SWITCH_PATH", filepath.Join(t.TempDir(), "KILL_SWITCH"))

		require.NoError(t, Trip())
		assert.True(t, IsTripped())

		require.NoError(t, Reset())
		assert.False(t, IsTripped())
	})

	t.Run("reset idempotent", func(t *testing.T) {
		t.Setenv("KILL_SWITCH_PATH", filepath.Join(t.TempDir(), "KILL_SWITCH"))
		assert.NoError(t, Reset())
		assert.NoError(t, Reset())
	})

	t.Run("env override beats absent sentinel", func(t *testing.T) {
		t.Setenv("COCKPIT_EVOLVE", "off")
		t.Setenv("KILL_SWITCH_PATH", filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, RequireAlive(), ErrTripped)
	})
}
