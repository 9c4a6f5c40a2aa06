package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openfroyo/dynflow/pkg/composer"
	"github.com/openfroyo/dynflow/pkg/dataflow"
	"github.com/openfroyo/dynflow/pkg/engine"
	"github.com/openfroyo/dynflow/pkg/policy"
)

type buildOptions struct {
	export   string
	stdout   bool
	vars     []string
	policies []string
	watch    bool
}

// exportTarget is where a built dataflow goes.
type exportTarget struct {
	// display is the path as the user gave it, used in messages.
	display string
	path    string
	stdout  bool
}

func (a *app) newBuildCommand() *cobra.Command {
	var opts buildOptions

	cmd := &cobra.Command{
		Use:   "build <deployment>",
		Short: "Compose a dataflow from a deployment file",
		Long: `Compose a dataflow from a deployment file and export it.

The composed dataflow is written to the export file, by default the
export.default setting (dataflow.yml) in the working directory, creating
parent directories as needed. Without --export it is also printed to stdout.
Composition and policy checks finish before anything is written, so a failed
build leaves no file behind.`,
		Example: `  # Build into ./dataflow.yml and print it
  dynflow build deploy.yml

  # Build into a chosen file, overriding a deployment variable
  dynflow build deploy.yml --export out/robot.yml --var robot=alpha

  # Rebuild whenever one of the sources changes
  dynflow build deploy.yml --export out/robot.yml --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBuild(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.export, "export", "", "export file path (default from export.default)")
	cmd.Flags().BoolVar(&opts.stdout, "stdout", false, "also print the dataflow to stdout")
	cmd.Flags().StringArrayVar(&opts.vars, "var", nil, "set a deployment variable (key=value, repeatable)")
	cmd.Flags().StringSliceVar(&opts.policies, "policy", nil, "additional .rego file or directory (repeatable)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "rebuild when a source file changes")

	return cmd
}

func (a *app) runBuild(cmd *cobra.Command, deploymentArg string, opts buildOptions) error {
	ctx := cmd.Context()

	deployment, err := a.deploymentPath(deploymentArg)
	if err != nil {
		return err
	}

	target := exportTarget{display: a.settings.Export.Default, stdout: true}
	if cmd.Flags().Changed("export") {
		target = exportTarget{display: opts.export, stdout: opts.stdout}
		if info, err := os.Stat(a.abs(opts.export)); err == nil && info.IsDir() {
			return usageErrorf("--export must point to a file, not a directory")
		}
	}
	target.path = a.abs(target.display)

	vars, err := parseVars(opts.vars)
	if err != nil {
		return err
	}

	policyPaths := a.policyPaths(opts.policies)
	eng, err := a.newPolicyEngine(ctx, policyPaths)
	if err != nil {
		return err
	}

	c := a.newComposer(vars)

	if opts.watch {
		return a.watchBuild(ctx, c, eng, deployment, policyPaths, target)
	}

	res, err := c.Build(ctx, deployment)
	if err != nil {
		return err
	}
	return a.finishBuild(ctx, eng, res, target)
}

// finishBuild checks the policies and exports the dataflow.
func (a *app) finishBuild(ctx context.Context, eng *policy.Engine, res *composer.Result, target exportTarget) error {
	if _, err := a.checkPolicies(ctx, eng, res); err != nil {
		return err
	}

	data, err := dataflow.Marshal(res.Dataflow)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target.path), 0o755); err != nil {
		return engine.NewIOError(filepath.Dir(target.path), err)
	}
	if err := os.WriteFile(target.path, data, 0o644); err != nil {
		return engine.NewIOError(target.path, err)
	}

	if target.stdout {
		if _, err := a.stdout.Write(data); err != nil {
			return fmt.Errorf("failed to write dataflow to stdout: %w", err)
		}
	}

	fmt.Fprintf(a.stderr, "Dataflow exported to %s\n", target.display)

	a.logger.Debug().
		Str("run_id", res.RunID).
		Str("export", target.path).
		Int("nodes", len(res.Dataflow.Nodes)).
		Msg("Dataflow exported")

	return nil
}

// watchBuild rebuilds and re-exports after every source change until ctx is
// cancelled. Failed builds are logged and leave the last export in place.
func (a *app) watchBuild(ctx context.Context, c *composer.Composer, eng *policy.Engine, deployment string, policyPaths []string, target exportTarget) error {
	if len(policyPaths) > 0 {
		go func() {
			if err := eng.Watch(ctx, policyPaths); err != nil {
				a.logger.Error().Err(err).Msg("Policy watch stopped")
			}
		}()
	}

	return c.Watch(ctx, deployment, func(res *composer.Result, err error) {
		if err == nil {
			err = a.finishBuild(ctx, eng, res, target)
		}
		if err != nil {
			a.logger.Error().Err(err).Msg("Build failed, waiting for changes")
			return
		}
		if err := a.tel.Flush(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Telemetry flush failed")
		}
	})
}
