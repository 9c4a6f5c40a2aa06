package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openfroyo/dynflow/pkg/composer"
	"github.com/openfroyo/dynflow/pkg/config"
	"github.com/openfroyo/dynflow/pkg/paths"
	"github.com/openfroyo/dynflow/pkg/telemetry"
	"github.com/openfroyo/dynflow/pkg/template"
)

// app holds the state shared by all subcommands of one invocation.
type app struct {
	version   string
	commit    string
	buildDate string

	stdout  io.Writer
	stderr  io.Writer
	workDir string
	environ []string

	// Global flags
	configPath string
	logLevel   string
	logFormat  string

	// Set up by setup once flags are parsed.
	started  bool
	settings *config.Settings
	resolver *paths.Resolver
	tel      *telemetry.Telemetry
	logger   zerolog.Logger
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to determine working directory: %w", err)
	}

	a := &app{
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		workDir:   wd,
		environ:   os.Environ(),
	}
	return a.execute(ctx, os.Args[1:])
}

func (a *app) execute(ctx context.Context, args []string) error {
	rootCmd := a.newRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	defer a.shutdown()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !a.started {
		// Flag, argument and subcommand errors all happen before setup.
		return &UsageError{Err: err}
	}
	return err
}

func (a *app) newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dynflow",
		Short: "dynflow - dataflow deployment composer",
		Long: `dynflow composes a single dataflow descriptor from a deployment file.

A deployment lists nodes and operators directly, references nodes of other
dataflow files by id, and instantiates component templates with their own
variables. Every file is rendered as a template before it is parsed, and the
composed dataflow is written with paths relative to the working directory.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", a.version, a.commit, a.buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "settings file (default ./"+config.DefaultSettingsFile+" if present)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format (console, json)")

	rootCmd.AddCommand(a.newBuildCommand())
	rootCmd.AddCommand(a.newValidateCommand())

	return rootCmd
}

// setup loads settings with the global flags bound on top and starts telemetry.
func (a *app) setup(cmd *cobra.Command) error {
	a.started = true

	v := viper.New()
	if err := v.BindPFlag("log.level", cmd.Flags().Lookup("log-level")); err != nil {
		return err
	}
	if err := v.BindPFlag("log.format", cmd.Flags().Lookup("log-format")); err != nil {
		return err
	}

	configFile := a.configPath
	if configFile != "" {
		configFile = a.abs(configFile)
	}
	settings, err := config.LoadSettings(v, configFile, a.workDir)
	if err != nil {
		return err
	}
	a.settings = settings

	resolver, err := paths.NewResolver(a.workDir)
	if err != nil {
		return err
	}
	a.resolver = resolver

	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = a.version
	cfg.Logging.Level = settings.Log.Level
	cfg.Logging.Format = settings.Log.Format
	cfg.Tracing.Exporter = settings.Tracing.Exporter
	cfg.Tracing.Endpoint = settings.Tracing.Endpoint
	cfg.Tracing.Insecure = settings.Tracing.Insecure
	if settings.Metrics.Textfile != "" {
		cfg.Metrics.Textfile = a.abs(settings.Metrics.Textfile)
	}

	tel, err := telemetry.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.tel = tel
	a.logger = tel.Logger

	a.logger.Debug().
		Str("command", cmd.Name()).
		Str("root", resolver.Root).
		Str("settings", v.ConfigFileUsed()).
		Msg("Starting")

	return nil
}

func (a *app) shutdown() {
	if a.tel == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Telemetry shutdown failed")
	}
}

// abs resolves p against the working directory.
func (a *app) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(a.workDir, p)
}

// newComposer wires a composer to the command root, the process environment
// and telemetry.
func (a *app) newComposer(vars map[string]interface{}) *composer.Composer {
	renderer := template.NewRenderer(
		a.resolver.Root,
		template.EnvFromEnviron(a.environ),
		template.WithLogger(a.logger),
		template.WithDialect(template.Dialect(a.settings.Template.Dialect)),
	)
	return composer.New(a.resolver, renderer,
		composer.WithLogger(a.logger),
		composer.WithTracer(a.tel.Tracer.Tracer()),
		composer.WithMetrics(a.tel.Metrics),
		composer.WithExtraVars(vars),
	)
}
