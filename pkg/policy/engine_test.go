package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/dynflow/pkg/dataflow"
	"github.com/openfroyo/dynflow/pkg/engine"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(context.Background(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func parseDataflow(t *testing.T, doc string) *dataflow.Dataflow {
	t.Helper()
	df, err := dataflow.Parse([]byte(doc), "test.yml")
	if err != nil {
		t.Fatalf("Failed to parse dataflow: %v", err)
	}
	return df
}

func writePolicy(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}
	return path
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	policies := eng.ListPolicies()
	want := []string{"duplicate-node-ids", "node-without-executable"}
	if len(policies) != len(want) {
		t.Fatalf("Expected %d built-in policies, got %d", len(want), len(policies))
	}
	for i, p := range policies {
		if p.Name != want[i] {
			t.Errorf("policies[%d] = %s, want %s", i, p.Name, want[i])
		}
		if !p.Builtin || p.Severity != SeverityWarning {
			t.Errorf("policy %s should be a built-in warning", p.Name)
		}
	}
}

func TestEvaluateDataflow_Builtins(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		warnings []Violation
	}{
		{
			name: "clean dataflow",
			doc: `nodes:
  - id: camera
    path: nodes/camera.py
  - id: plot
    operator:
      python: ops/plot.py
  - build: make
    python: ops/standalone.py
`,
		},
		{
			name: "duplicate ids",
			doc: `nodes:
  - id: camera
    path: a.py
  - id: camera
    path: b.py
  - id: camera
    path: c.py
`,
			warnings: []Violation{{
				Policy:   "duplicate-node-ids",
				Node:     "camera",
				Message:  `node id "camera" is declared 3 times`,
				Severity: SeverityWarning,
			}},
		},
		{
			name: "node without executable",
			doc: `nodes:
  - id: orphan
    inputs:
      tick: dora/timer/millis/100
`,
			warnings: []Violation{{
				Policy:   "node-without-executable",
				Node:     "orphan",
				Message:  `node "orphan" has neither a path nor an operator`,
				Severity: SeverityWarning,
			}},
		},
		{
			name: "empty dataflow",
			doc:  "nodes: []\n",
		},
	}

	eng := newTestEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := eng.EvaluateDataflow(context.Background(), "deploy.yml", parseDataflow(t, tt.doc))
			if err != nil {
				t.Fatalf("EvaluateDataflow failed: %v", err)
			}
			if !res.Allowed {
				t.Fatalf("built-in policies must not block, got %v", res.Violations)
			}
			if err := res.Err(); err != nil {
				t.Errorf("Err() = %v, want nil", err)
			}
			if len(res.Warnings) != len(tt.warnings) {
				t.Fatalf("got warnings %v, want %v", res.Warnings, tt.warnings)
			}
			for i := range tt.warnings {
				if res.Warnings[i] != tt.warnings[i] {
					t.Errorf("warnings[%d] = %+v, want %+v", i, res.Warnings[i], tt.warnings[i])
				}
			}
			if len(res.EvaluatedPolicies) != 2 {
				t.Errorf("expected 2 evaluated policies, got %v", res.EvaluatedPolicies)
			}
		})
	}
}

func TestEvaluateDataflow_UserPolicyBlocks(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "no-tmp.rego", `# Temporary nodes must not be deployed.
package team.naming

import rego.v1

deny contains violation if {
	some node in input.nodes
	startswith(node.id, "tmp-")
	violation := {"message": "temporary node", "node": node.id}
}

deny contains "deployment must be named deploy.yml" if {
	input.deployment != "deploy.yml"
}
`)

	eng := newTestEngine(t)
	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}

	df := parseDataflow(t, `nodes:
  - id: tmp-b
    path: b.py
  - id: tmp-a
    path: a.py
  - id: keep
    path: keep.py
`)

	res, err := eng.EvaluateDataflow(context.Background(), "other.yml", df)
	if err != nil {
		t.Fatalf("EvaluateDataflow failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected the dataflow to be rejected")
	}

	want := []Violation{
		{Policy: "no-tmp", Message: "deployment must be named deploy.yml", Severity: SeverityError},
		{Policy: "no-tmp", Node: "tmp-a", Message: "temporary node", Severity: SeverityError},
		{Policy: "no-tmp", Node: "tmp-b", Message: "temporary node", Severity: SeverityError},
	}
	if len(res.Violations) != len(want) {
		t.Fatalf("got violations %v, want %v", res.Violations, want)
	}
	for i := range want {
		if res.Violations[i] != want[i] {
			t.Errorf("violations[%d] = %+v, want %+v", i, res.Violations[i], want[i])
		}
	}

	err = res.Err()
	if !engine.IsPolicyError(err) {
		t.Fatalf("expected a policy error, got %v", err)
	}
	if !strings.Contains(err.Error(), "no-tmp (node tmp-a): temporary node") {
		t.Errorf("error should list the violations, got %q", err.Error())
	}
}

func TestEvaluateDataflow_ViolationSeverity(t *testing.T) {
	eng := newTestEngine(t)
	err := eng.SetUserPolicies(context.Background(), []Policy{{
		Name:     "soft",
		Severity: SeverityError,
		Enabled:  true,
		Rego: `package soft

import rego.v1

deny contains {"message": "just so you know", "severity": "info"} if true
deny contains {"message": "bogus severity", "severity": "loud"} if true
`,
	}})
	if err != nil {
		t.Fatalf("SetUserPolicies failed: %v", err)
	}

	res, err := eng.EvaluateDataflow(context.Background(), "deploy.yml", &dataflow.Dataflow{})
	if err != nil {
		t.Fatalf("EvaluateDataflow failed: %v", err)
	}

	// An unknown severity falls back to the policy's own.
	if len(res.Violations) != 1 || res.Violations[0].Message != "bogus severity" {
		t.Errorf("unexpected violations: %v", res.Violations)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Severity != SeverityInfo {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestSetUserPolicies_Errors(t *testing.T) {
	tests := []struct {
		name     string
		policies []Policy
	}{
		{
			name:     "syntax error",
			policies: []Policy{{Name: "broken", Rego: "package broken\n\ndeny contains if {"}},
		},
		{
			name: "duplicate names",
			policies: []Policy{
				{Name: "twice", Rego: "package a\n"},
				{Name: "twice", Rego: "package b\n"},
			},
		},
		{
			name:     "reserved name",
			policies: []Policy{{Name: "duplicate-node-ids", Rego: "package mine\n"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine(t)
			err := eng.SetUserPolicies(context.Background(), tt.policies)
			if !engine.IsConfigError(err) {
				t.Fatalf("expected a config error, got %v", err)
			}
			if n := len(eng.ListPolicies()); n != 2 {
				t.Errorf("failed load must leave the built-ins only, got %d policies", n)
			}
		})
	}
}

func TestSetUserPolicies_Replaces(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	if err := eng.SetUserPolicies(ctx, []Policy{{Name: "first", Rego: "package first\n", Enabled: true}}); err != nil {
		t.Fatalf("SetUserPolicies failed: %v", err)
	}
	if err := eng.SetUserPolicies(ctx, []Policy{{Name: "second", Rego: "package second\n", Enabled: true}}); err != nil {
		t.Fatalf("SetUserPolicies failed: %v", err)
	}

	if _, err := eng.GetPolicy("first"); err == nil {
		t.Error("first should have been replaced")
	}
	if _, err := eng.GetPolicy("second"); err != nil {
		t.Errorf("second should be loaded: %v", err)
	}
	if _, err := eng.GetPolicy("duplicate-node-ids"); err != nil {
		t.Errorf("built-ins must survive: %v", err)
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	df := parseDataflow(t, "nodes:\n  - id: orphan\n")

	if err := eng.DisablePolicy("node-without-executable"); err != nil {
		t.Fatalf("DisablePolicy failed: %v", err)
	}
	res, err := eng.EvaluateDataflow(context.Background(), "deploy.yml", df)
	if err != nil {
		t.Fatalf("EvaluateDataflow failed: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("disabled policy still reported: %v", res.Warnings)
	}
	if len(res.EvaluatedPolicies) != 1 {
		t.Errorf("expected one evaluated policy, got %v", res.EvaluatedPolicies)
	}

	if err := eng.EnablePolicy("node-without-executable"); err != nil {
		t.Fatalf("EnablePolicy failed: %v", err)
	}
	res, err = eng.EvaluateDataflow(context.Background(), "deploy.yml", df)
	if err != nil {
		t.Fatalf("EvaluateDataflow failed: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("re-enabled policy should report, got %v", res.Warnings)
	}

	if err := eng.DisablePolicy("nope"); err == nil {
		t.Error("disabling an unknown policy should fail")
	}
	if err := eng.EnablePolicy("nope"); err == nil {
		t.Error("enabling an unknown policy should fail")
	}
}

func TestPlain(t *testing.T) {
	in := []interface{}{
		map[string]interface{}{
			"env": map[interface{}]interface{}{1: "one", "two": []interface{}{map[interface{}]interface{}{true: "yes"}}},
		},
	}

	out := plain(in).([]interface{})
	env := out[0].(map[string]interface{})["env"].(map[string]interface{})
	if env["1"] != "one" {
		t.Errorf("integer key not converted: %v", env)
	}
	nested := env["two"].([]interface{})[0].(map[string]interface{})
	if nested["true"] != "yes" {
		t.Errorf("nested key not converted: %v", nested)
	}
}
