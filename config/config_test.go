package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	require.Equal(t, 16, cfg.MaxRequests)
	require.Equal(t, 2*time.Second, cfg.ThrottleGap.Duration)
	require.Equal(t, ":9186", cfg.ListenAddr)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warthog.toml")
	contents := `
max_requests = 4
ping_interval = "5s"
seeds = ["1.2.3.4:9186", "5.6.7.8:9186"]
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.MaxRequests)
	require.Equal(t, 5*time.Second, cfg.PingInterval.Duration)
	require.Equal(t, []string{"1.2.3.4:9186", "5.6.7.8:9186"}, cfg.Seeds)
	// fields absent from the file keep their default value
	require.Equal(t, 500, cfg.BatchSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/warthog.toml")
	require.Error(t, err)
}

func TestDurationUnmarshalTOML(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalTOML([]byte(`"1m30s"`)))
	require.Equal(t, 90*time.Second, d.Duration)
}

func TestDurationUnmarshalTOMLInvalid(t *testing.T) {
	var d Duration
	require.Error(t, d.UnmarshalTOML([]byte(`"not-a-duration"`)))
}
