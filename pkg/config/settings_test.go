package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_Defaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DYNFLOW_LOG_LEVEL", "")

	s, err := LoadSettings(viper.New(), "", t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "info", s.Log.Level)
	require.Equal(t, "console", s.Log.Format)
	require.Equal(t, "dataflow.yml", s.Export.Default)
	require.Equal(t, "none", s.Tracing.Exporter)
	require.Empty(t, s.Policy.Paths)
	require.Equal(t, "jinja", s.Template.Dialect)
}

func TestLoadSettings_FileInWorkDir(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DYNFLOW_LOG_LEVEL", "")

	dir := t.TempDir()
	content := `
log:
  level: debug
  format: json
export:
  default: out/flow.yml
policy:
  paths:
    - policies
  disable:
    - node-without-executable
template:
  dialect: hcl
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultSettingsFile), []byte(content), 0o644))

	s, err := LoadSettings(viper.New(), "", dir)
	require.NoError(t, err)
	require.Equal(t, "debug", s.Log.Level)
	require.Equal(t, "json", s.Log.Format)
	require.Equal(t, "out/flow.yml", s.Export.Default)
	require.Equal(t, []string{"policies"}, s.Policy.Paths)
	require.Equal(t, []string{"node-without-executable"}, s.Policy.Disable)
	require.Equal(t, "hcl", s.Template.Dialect)
}

func TestLoadSettings_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	t.Setenv("DYNFLOW_LOG_LEVEL", "warn")

	s, err := LoadSettings(viper.New(), path, dir)
	require.NoError(t, err)
	require.Equal(t, "warn", s.Log.Level)
}

func TestLoadSettings_LegacyLogLevelEnv(t *testing.T) {
	t.Setenv("DYNFLOW_LOG_LEVEL", "")
	t.Setenv("LOG_LEVEL", "error")

	s, err := LoadSettings(viper.New(), "", t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "error", s.Log.Level)
}

func TestLoadSettings_Invalid(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DYNFLOW_LOG_LEVEL", "")

	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"unknown log format", "log:\n  format: xml\n"},
		{"unknown exporter", "tracing:\n  exporter: jaeger\n"},
		{"otlp without endpoint", "tracing:\n  exporter: otlp\n"},
		{"unknown template dialect", "template:\n  dialect: mustache\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := LoadSettings(viper.New(), path, dir)
			require.Error(t, err)
			require.Contains(t, err.Error(), "invalid settings")
		})
	}
}

func TestLoadSettings_MissingFile(t *testing.T) {
	_, err := LoadSettings(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"), t.TempDir())
	require.Error(t, err)
}
