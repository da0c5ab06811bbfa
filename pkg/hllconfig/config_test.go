package hllconfig_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hlldsvc/hlld/pkg/hllconfig"
)

func TestSetConfig_Normalize_PrecisionSnap(t *testing.T) {
	t.Parallel()

	// Scenario S6: default_eps = 0.05 snaps to precision 9, eps ~= 0.045961941.
	cfg := hllconfig.SetConfig{DefaultEPS: 0.05}

	require.NoError(t, cfg.Normalize())
	require.EqualValues(t, 9, cfg.DefaultPrecision)
	require.InDelta(t, 0.045961941, cfg.DefaultEPS, 1e-9)
}

func TestDefaultGlobalConfig_HasDerivedPrecision(t *testing.T) {
	t.Parallel()

	cfg := hllconfig.DefaultGlobalConfig()
	require.NotZero(t, cfg.DefaultPrecision)
	require.NotEmpty(t, cfg.DataDir)
}

func TestLoadGlobalConfig_EmptyPathReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := hllconfig.LoadGlobalConfig("")
	require.NoError(t, err)
	require.Equal(t, hllconfig.DefaultGlobalConfig(), cfg)
}

func TestLoadGlobalConfig_ParsesJSONWithComments(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hlld.json")
	doc := []byte(`{
		// service bind settings
		"tcp_port": 5555,
		"data_dir": "/tmp/hlld-data",
		"default_eps": 0.01,
		"use_mmap": false,
		"flush_interval": 30,
	}`)
	require.NoError(t, os.WriteFile(path, doc, 0o644))

	cfg, err := hllconfig.LoadGlobalConfig(path)
	require.NoError(t, err)

	require.Equal(t, 5555, cfg.TCPPort)
	require.Equal(t, "/tmp/hlld-data", cfg.DataDir)
	require.Equal(t, 0.01, cfg.DefaultEPS)
	require.False(t, cfg.UseMmap)
	require.Equal(t, 30*time.Second, cfg.FlushInterval)
	require.NotZero(t, cfg.DefaultPrecision)

	// unspecified fields keep their defaults
	require.Equal(t, hllconfig.DefaultGlobalConfig().UDPPort, cfg.UDPPort)
}

func TestPathHelpers(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/data/hlld.foo", hllconfig.SetDir("/data", "foo"))
	require.Equal(t, "/data/hlld.foo/config.ini", hllconfig.ConfigPath("/data", "foo"))
	require.Equal(t, "/data/hlld.foo/registers.mmap", hllconfig.RegisterPath("/data", "foo"))
}
