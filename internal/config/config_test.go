package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
query:
  interface_id: eni-0abc
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "eni-0abc", cfg.Query.InterfaceID)
	assert.Equal(t, 50, cfg.Query.Limit)
	assert.Equal(t, 150, cfg.Query.MaxAttempts)
	assert.Equal(t, "AMAZON", cfg.Prefixes.ExcludeService)
	assert.Equal(t, cfg.AWS.Region, cfg.Prefixes.Region)
	assert.Equal(t, "10.0.0.0/16", cfg.Classifier.InternalCIDR)

	poll, err := cfg.PollIntervalDuration()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, poll)
}

func TestLoadConfig_SinkDefaults(t *testing.T) {
	path := writeConfig(t, `
sinks:
  - type: clickhouse
    enabled: true
    clickhouse:
      host: ch.local
  - type: nats
    enabled: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Sinks, 2)

	assert.Equal(t, 9000, cfg.Sinks[0].ClickHouse.Port)
	assert.Equal(t, "vpc_flow_tagged", cfg.Sinks[0].ClickHouse.Table)
	assert.Equal(t, "flowspectra.flows.tagged", cfg.Sinks[1].NATS.Subject)
}

func TestLoadConfig_InvalidCIDR(t *testing.T) {
	path := writeConfig(t, `
classifier:
  internal_cidr: 10.0.0.0/99
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "internal_cidr")
}

func TestLoadConfig_InvalidLookback(t *testing.T) {
	path := writeConfig(t, `
query:
  lookback: soon
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadOrDefault_EnvOverrides(t *testing.T) {
	t.Setenv("FLOWSPECTRA_INTERFACE_ID", "eni-0123")
	t.Setenv("FLOWSPECTRA_INTERNAL_CIDR", "192.168.0.0/24")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "eni-0123", cfg.Query.InterfaceID)
	assert.Equal(t, "192.168.0.0/24", cfg.Classifier.InternalCIDR)
}

func TestLoadDotEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("FLOWSPECTRA_TEST_ACTION=stop\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("FLOWSPECTRA_TEST_ACTION") })

	require.NoError(t, LoadDotEnv(envFile, filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, "stop", os.Getenv("FLOWSPECTRA_TEST_ACTION"))
}

func TestOutputPath(t *testing.T) {
	o := OutputConfig{Dir: "out"}
	assert.Equal(t, filepath.Join("out", "traffic.csv"), o.Path("traffic.csv"))
}

func TestLoadOrDefault_RegionOverrideReachesPrefixes(t *testing.T) {
	t.Setenv("AWS_REGION", "eu-west-1")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
	assert.Equal(t, "eu-west-1", cfg.Prefixes.Region)
}

func TestLoadConfig_RegionOverrideKeepsExplicitPrefixRegion(t *testing.T) {
	t.Setenv("AWS_REGION", "eu-west-1")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prefixes:\n  region: us-west-2\n"), 0644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", cfg.Prefixes.Region)

	require.NoError(t, os.WriteFile(path, []byte("aws:\n  region: ap-south-1\n"), 0644))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Prefixes.Region)
}
