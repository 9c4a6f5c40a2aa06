package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DefaultSettingsFile is looked up in the working directory when no --config is given.
const DefaultSettingsFile = ".dynflow.yaml"

// EnvPrefix prefixes every environment override, e.g. DYNFLOW_LOG_LEVEL.
const EnvPrefix = "DYNFLOW"

// Settings configures the dynflow command line tool.
type Settings struct {
	// Log configures structured logging.
	Log LogSettings `mapstructure:"log"`

	// Export configures where built dataflows are written.
	Export ExportSettings `mapstructure:"export"`

	// Tracing configures OpenTelemetry span export.
	Tracing TracingSettings `mapstructure:"tracing"`

	// Metrics configures Prometheus metrics output.
	Metrics MetricsSettings `mapstructure:"metrics"`

	// Policy configures policy checks run against every built dataflow.
	Policy PolicySettings `mapstructure:"policy"`

	// Template configures how deployment and component documents are rendered.
	Template TemplateSettings `mapstructure:"template"`
}

// LogSettings configures structured logging.
type LogSettings struct {
	// Level sets the minimum log level.
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn error"`

	// Format is console (human-readable) or json.
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// ExportSettings configures the export file.
type ExportSettings struct {
	// Default is the export path used when --export is omitted.
	Default string `mapstructure:"default" validate:"required"`
}

// TracingSettings configures span export.
type TracingSettings struct {
	// Exporter is none, stdout or otlp.
	Exporter string `mapstructure:"exporter" validate:"oneof=none stdout otlp"`

	// Endpoint is the OTLP gRPC endpoint.
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Exporter otlp"`

	// Insecure disables TLS for the OTLP connection.
	Insecure bool `mapstructure:"insecure"`
}

// MetricsSettings configures metrics output.
type MetricsSettings struct {
	// Textfile, when set, receives the metrics in Prometheus text format after each build.
	Textfile string `mapstructure:"textfile"`
}

// PolicySettings configures policy checks.
type PolicySettings struct {
	// Paths lists .rego files or directories.
	Paths []string `mapstructure:"paths"`

	// Disable names policies, built-in or not, that are skipped.
	Disable []string `mapstructure:"disable"`
}

// TemplateSettings configures document rendering.
type TemplateSettings struct {
	// Dialect is jinja or hcl.
	Dialect string `mapstructure:"dialect" validate:"oneof=jinja hcl"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		Log:      LogSettings{Level: "info", Format: "console"},
		Export:   ExportSettings{Default: "dataflow.yml"},
		Tracing:  TracingSettings{Exporter: "none"},
		Template: TemplateSettings{Dialect: "jinja"},
	}
}

// LoadSettings reads settings into v from, in increasing precedence: defaults, the
// settings file, and DYNFLOW_* environment variables. When configFile is empty,
// DefaultSettingsFile in workDir is used if it exists. Flags bound to v by the
// caller take precedence over all of these.
func LoadSettings(v *viper.Viper, configFile, workDir string) (*Settings, error) {
	defaults := DefaultSettings()
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("export.default", defaults.Export.Default)
	v.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("policy.paths", []string{})
	v.SetDefault("policy.disable", []string{})
	v.SetDefault("template.dialect", defaults.Template.Dialect)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("log.level", EnvPrefix+"_LOG_LEVEL", "LOG_LEVEL"); err != nil {
		return nil, fmt.Errorf("failed to bind log level env: %w", err)
	}

	if configFile == "" {
		candidate := filepath.Join(workDir, DefaultSettingsFile)
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("settings file not found: %s", configFile)
			}
			return nil, fmt.Errorf("failed to read settings %s: %w", configFile, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	if err := validator.New().Struct(s); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return &s, nil
}
