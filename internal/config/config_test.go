package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	require := require.New(t)

	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(err)

	require.Equal("dummy", cfg.Printer.NullPort)
	require.Equal(600, cfg.Printer.MaxRetries)
	require.Equal(100*time.Millisecond, cfg.Printer.RetryBackoff)
	require.Equal(800*time.Millisecond, cfg.Printer.ReadTimeout)
	require.Equal(60*time.Second, cfg.Printer.CommandTimeout)
	require.Equal(1, cfg.Printer.PipelineDepth)
	require.Equal(BusyPolicyRetry, cfg.Printer.BusyPolicy)
	require.Equal([]string{"G"}, cfg.Printer.SingleLinePrefixes)
	require.Zero(cfg.Printer.LineResetThreshold)
	require.False(cfg.Database.Enabled)
	require.Equal("0.0.0.0:8085", cfg.GetServerAddr())
}

func TestLoadFile(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "printer.yaml")
	content := []byte(`
printer:
  pipeline_depth: 4
  busy_policy: passthrough
  read_timeout: 250ms
logging:
  level: debug
`)
	require.NoError(os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(err)
	require.Equal(4, cfg.Printer.PipelineDepth)
	require.Equal(BusyPolicyPassthrough, cfg.Printer.BusyPolicy)
	require.Equal(250*time.Millisecond, cfg.Printer.ReadTimeout)
	require.Equal("debug", cfg.Logging.Level)
	require.Equal(600, cfg.Printer.MaxRetries)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	require := require.New(t)

	t.Chdir(t.TempDir())
	t.Setenv("PRINTER_SERVICE_PRINTER_MAX_RETRIES", "25")

	cfg, err := Load("")
	require.NoError(err)
	require.Equal(25, cfg.Printer.MaxRetries)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero pipeline depth", "printer:\n  pipeline_depth: 0\n"},
		{"unknown busy policy", "printer:\n  busy_policy: ignore\n"},
		{"bad log level", "logging:\n  level: loud\n"},
		{"inverted bounds", "dummy:\n  hotend_min: 200\n  hotend_max: 100\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))

			_, err := Load(path)
			require.Error(t, err)
		})
	}
}
