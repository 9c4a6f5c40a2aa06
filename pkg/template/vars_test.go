package template

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDeclaredVars(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"vars mapping", "vars:\n  name: cam\n  rate: 20\nnodes: []\n", 2},
		{"no vars", "nodes: []\n", 0},
		{"null vars", "vars:\n", 0},
		{"vars not a mapping", "vars: [1, 2]\n", 0},
		{"document not a mapping", "- a\n- b\n", 0},
		{"invalid yaml", "vars: [\n", 0},
		{"template text in values", "vars:\n  out: \"{{ cwd }}/out\"\n", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("failed to write fixture: %v", err)
			}

			got := DeclaredVars(path)
			if got == nil {
				t.Fatal("expected non-nil mapping")
			}
			if len(got) != tt.want {
				t.Errorf("expected %d vars, got %d (%v)", tt.want, len(got), got)
			}
		})
	}
}

func TestDeclaredVars_Unreadable(t *testing.T) {
	got := DeclaredVars(filepath.Join(t.TempDir(), "missing.yml"))
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty mapping, got %v", got)
	}
}

func TestEnvFromEnviron(t *testing.T) {
	env := EnvFromEnviron([]string{"A=1", "B=x=y", "EMPTY=", "=hidden", "NOEQ"})

	if len(env) != 3 {
		t.Fatalf("expected 3 entries, got %d (%v)", len(env), env)
	}
	if env["A"] != "1" || env["B"] != "x=y" || env["EMPTY"] != "" {
		t.Errorf("unexpected env: %v", env)
	}
}
