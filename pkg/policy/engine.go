package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/openfroyo/dynflow/pkg/dataflow"
	"github.com/openfroyo/dynflow/pkg/engine"
)

// Engine evaluates compiled Rego policies against composed dataflows.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	disabled map[string]bool
	loader   *Loader
	logger   zerolog.Logger
}

type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

// NewEngine creates a policy engine holding the built-in policies.
func NewEngine(ctx context.Context, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		disabled: make(map[string]bool),
		loader:   NewLoader(logger),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	for _, p := range BuiltinPolicies() {
		cp, err := compile(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", p.Name, err)
		}
		e.policies[p.Name] = cp
	}

	return e, nil
}

// compile prepares the query for the deny set of the policy's package.
func compile(ctx context.Context, p Policy) (*compiledPolicy, error) {
	filename := p.Source
	if filename == "" {
		filename = p.Name + ".rego"
	}

	module, err := ast.ParseModule(filename, p.Rego)
	if err != nil {
		return nil, err
	}
	if module == nil {
		return nil, fmt.Errorf("%s: empty module", filename)
	}

	query, err := rego.New(
		rego.Query(module.Package.Path.String()+".deny"),
		rego.ParsedModule(module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}

	return &compiledPolicy{policy: &p, query: query}, nil
}

// LoadPolicies loads the policies at paths and makes them the engine's user
// policies.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := e.loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return engine.NewConfigError("", "failed to load policies", err)
	}
	return e.SetUserPolicies(ctx, policies)
}

// SetUserPolicies compiles policies and replaces every non-built-in policy
// with them. Nothing changes if any of them fails to compile.
func (e *Engine) SetUserPolicies(ctx context.Context, policies []Policy) error {
	compiled := make(map[string]*compiledPolicy, len(policies))
	for _, p := range policies {
		if _, dup := compiled[p.Name]; dup {
			return engine.NewConfigError(p.Source, fmt.Sprintf("duplicate policy name %q", p.Name), nil)
		}
		cp, err := compile(ctx, p)
		if err != nil {
			return engine.NewConfigError(p.Source, "invalid policy "+p.Name, err)
		}
		compiled[p.Name] = cp
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for name := range compiled {
		if cp, ok := e.policies[name]; ok && cp.policy.Builtin {
			return engine.NewConfigError(compiled[name].policy.Source,
				fmt.Sprintf("policy name %q is reserved by a built-in policy", name), nil)
		}
	}

	for name, cp := range e.policies {
		if !cp.policy.Builtin {
			delete(e.policies, name)
		}
	}
	for name, cp := range compiled {
		e.policies[name] = cp
	}

	e.logger.Info().Int("count", len(compiled)).Msg("User policies loaded")
	return nil
}

// Watch reloads the user policies whenever a policy file under paths changes,
// until ctx is cancelled.
func (e *Engine) Watch(ctx context.Context, paths []string) error {
	return e.loader.Watch(ctx, paths, func(policies []Policy) error {
		return e.SetUserPolicies(ctx, policies)
	})
}

// EvaluateDataflow evaluates every enabled policy against df, which was built
// from the deployment at the given path.
func (e *Engine) EvaluateDataflow(ctx context.Context, deployment string, df *dataflow.Dataflow) (*Result, error) {
	doc, err := dataflow.ToGeneric(df)
	if err != nil {
		return nil, err
	}

	nodes, _ := doc["nodes"].([]interface{})
	if nodes == nil {
		nodes = []interface{}{}
	}
	return e.Evaluate(ctx, Input{Deployment: deployment, Nodes: nodes})
}

// Evaluate evaluates every enabled policy against input, in name order.
func (e *Engine) Evaluate(ctx context.Context, input Input) (*Result, error) {
	start := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	doc := map[string]interface{}{
		"deployment": input.Deployment,
		"nodes":      plain(input.Nodes),
	}

	result := &Result{Allowed: true, EvaluatedAt: start, EvaluatedPolicies: []string{}}
	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled || e.disabled[name] {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, name)

		violations, err := e.evaluatePolicy(ctx, cp, doc)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate policy %s: %w", name, err)
		}

		for _, v := range violations {
			if v.Severity.Blocking() {
				result.Allowed = false
				result.Violations = append(result.Violations, v)
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}
	result.Duration = time.Since(start)

	e.logger.Debug().
		Str("deployment", input.Deployment).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("Policy evaluation completed")

	return result, nil
}

func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input interface{}) ([]Violation, error) {
	rs, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, r := range rs {
		for _, expr := range r.Expressions {
			set, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range set {
				violations = append(violations, newViolation(cp.policy, d))
			}
		}
	}

	// Sets come back in OPA's order; sort for stable reports.
	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].Node != violations[j].Node {
			return violations[i].Node < violations[j].Node
		}
		return violations[i].Message < violations[j].Message
	})

	return violations, nil
}

func newViolation(p *Policy, d interface{}) Violation {
	v := Violation{Policy: p.Name, Severity: p.Severity}

	switch d := d.(type) {
	case string:
		v.Message = d
	case map[string]interface{}:
		if msg, ok := d["message"].(string); ok {
			v.Message = msg
		}
		if node, ok := d["node"].(string); ok {
			v.Node = node
		}
		if sev, ok := d["severity"].(string); ok && Severity(sev).Valid() {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", d)
	}

	return v
}

// plain converts decoded YAML into values OPA accepts: mappings with
// non-string keys get their keys formatted as strings.
func plain(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = plain(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[fmt.Sprint(k)] = plain(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = plain(val)
		}
		return out
	default:
		return v
	}
}

func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, ok := e.policies[name]
	if !ok {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns all loaded policies in name order.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, *e.policies[name].policy)
	}
	return policies
}

// EnablePolicy re-enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, ok := e.policies[name]
	if !ok {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = true
	delete(e.disabled, name)

	e.logger.Debug().Str("policy", name).Msg("Policy enabled")
	return nil
}

// DisablePolicy disables a policy by name. The setting survives reloads of
// user policies.
func (e *Engine) DisablePolicy(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.policies[name]; !ok {
		return fmt.Errorf("policy not found: %s", name)
	}
	e.disabled[name] = true

	e.logger.Debug().Str("policy", name).Msg("Policy disabled")
	return nil
}
