package roles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesMissingFileReturnsDefaults(t *testing.T) {
	reg, err := LoadOverrides(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0.10, reg[Explorer].Delta(Output{}))
}

func TestLoadOverridesAppliesDeltaOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles:\n  explorer:\n    delta: 0.25\n"), 0o644))

	reg, err := LoadOverrides(path)
	require.NoError(t, err)
	assert.Equal(t, 0.25, reg[Explorer].Delta(Output{}))
	assert.Equal(t, -0.15, reg[Critic].Delta(Output{}))
}

func TestLoadOverridesEmptyPathReturnsDefaults(t *testing.T) {
	reg, err := LoadOverrides("")
	require.NoError(t, err)
	assert.Equal(t, Registry[Critic].Name, reg[Critic].Name)
}
