package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/dynflow/pkg/composer"
	"github.com/openfroyo/dynflow/pkg/engine"
	"github.com/openfroyo/dynflow/pkg/policy"
)

// parseVars parses repeated key=value flags. Values are read as YAML scalars,
// so numbers and booleans keep their type; anything else stays a string.
func parseVars(raw []string) (map[string]interface{}, error) {
	vars := make(map[string]interface{}, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, usageErrorf("invalid --var %q: expected key=value", kv)
		}

		var parsed interface{}
		if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
			parsed = value
		}
		switch parsed.(type) {
		case string, bool, int, float64:
		default:
			parsed = value
		}
		vars[key] = parsed
	}
	return vars, nil
}

// deploymentPath resolves the deployment argument and checks that it names a
// file.
func (a *app) deploymentPath(arg string) (string, error) {
	path := a.abs(arg)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", usageErrorf("deployment file not found: %s", arg)
	}
	return path, nil
}

// policyPaths returns the configured policy paths followed by those given on
// the command line, resolved against the working directory.
func (a *app) policyPaths(flagPaths []string) []string {
	all := make([]string, 0, len(a.settings.Policy.Paths)+len(flagPaths))
	for _, p := range a.settings.Policy.Paths {
		all = append(all, a.abs(p))
	}
	for _, p := range flagPaths {
		all = append(all, a.abs(p))
	}
	return all
}

func (a *app) newPolicyEngine(ctx context.Context, policyPaths []string) (*policy.Engine, error) {
	eng, err := policy.NewEngine(ctx, a.logger)
	if err != nil {
		return nil, err
	}

	if len(policyPaths) > 0 {
		if err := eng.LoadPolicies(ctx, policyPaths); err != nil {
			return nil, err
		}
	}

	for _, name := range a.settings.Policy.Disable {
		if err := eng.DisablePolicy(name); err != nil {
			return nil, engine.NewConfigError("", "invalid policy.disable setting", err)
		}
	}

	return eng, nil
}

// checkPolicies evaluates the policies against a build result, logs the
// warnings and fails on blocking violations.
func (a *app) checkPolicies(ctx context.Context, eng *policy.Engine, res *composer.Result) (*policy.Result, error) {
	pr, err := eng.EvaluateDataflow(ctx, a.resolver.Relative(res.Deployment), res.Dataflow)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation failed: %w", err)
	}

	for _, w := range pr.Warnings {
		a.logger.Warn().
			Str("run_id", res.RunID).
			Str("policy", w.Policy).
			Str("node", w.Node).
			Str("severity", string(w.Severity)).
			Msg(w.Message)
	}

	return pr, pr.Err()
}
