package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) newValidateCommand() *cobra.Command {
	var (
		vars     []string
		policies []string
	)

	cmd := &cobra.Command{
		Use:   "validate <deployment>",
		Short: "Check that a deployment composes and passes policies",
		Long: `Compose a deployment and run the policy checks without writing anything.

This command checks:
  - every file parses and has the expected shape
  - every template only uses declared variables
  - every referenced file can be read
  - the composed dataflow passes the built-in and configured policies`,
		Example: `  # Validate a deployment
  dynflow validate deploy.yml

  # Validate against an extra policy directory
  dynflow validate deploy.yml --policy ./policies`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			deployment, err := a.deploymentPath(args[0])
			if err != nil {
				return err
			}

			extra, err := parseVars(vars)
			if err != nil {
				return err
			}

			eng, err := a.newPolicyEngine(ctx, a.policyPaths(policies))
			if err != nil {
				return err
			}

			res, err := a.newComposer(extra).Build(ctx, deployment)
			if err != nil {
				return err
			}

			pr, err := a.checkPolicies(ctx, eng, res)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "%s: ok, %d entries from %d files (%s)\n",
				args[0], len(res.Dataflow.Nodes), len(res.Sources), pr.Summary())
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&vars, "var", nil, "set a deployment variable (key=value, repeatable)")
	cmd.Flags().StringSliceVar(&policies, "policy", nil, "additional .rego file or directory (repeatable)")

	return cmd
}
