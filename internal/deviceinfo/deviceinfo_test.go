package deviceinfo_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factorylink/factorylink/internal/deviceinfo"
)

func TestLoadOrCreateID_StableAcrossLoads(t *testing.T) {
	dir := t.TempDir()

	first, err := deviceinfo.LoadOrCreateID(dir)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := deviceinfo.LoadOrCreateID(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoadOrCreateID_IgnoresEmptyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "device_id"), []byte("\n"), 0o600))

	id, err := deviceinfo.LoadOrCreateID(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestLoadOrCreateID_RequiresStateDir(t *testing.T) {
	_, err := deviceinfo.LoadOrCreateID("")
	assert.Error(t, err)
}

func TestResolve_FillsDefaults(t *testing.T) {
	info, err := deviceinfo.Resolve(deviceinfo.Config{StateDir: t.TempDir()})
	require.NoError(t, err)

	assert.NotEmpty(t, info.DeviceID)
	assert.NotEmpty(t, info.Platform)
	assert.NotEmpty(t, info.Model)
}

func TestResolve_PrefersProvidedMetadata(t *testing.T) {
	info, err := deviceinfo.Resolve(deviceinfo.Config{
		StateDir:   t.TempDir(),
		Platform:   deviceinfo.PlatformIOS,
		Name:       "Line 3 tablet",
		Model:      "iPad13,4",
		OSVersion:  "17.5",
		AppVersion: "2.4.0",
	})
	require.NoError(t, err)

	assert.Equal(t, deviceinfo.PlatformIOS, info.Platform)
	assert.Equal(t, "Line 3 tablet", info.Name)
	assert.Equal(t, "iPad13,4", info.Model)
	assert.Equal(t, "17.5", info.OSVersion)
	assert.Equal(t, "2.4.0", info.AppVersion)
}
