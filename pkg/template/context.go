package template

import (
	"maps"
	"sort"
)

// Reserved names available to every template. They take precedence over user
// variables of the same name.
const (
	NameVars = "vars"
	NameEnv  = "env"
	NameCwd  = "cwd"
)

// Context is the namespace a template is evaluated in.
type Context struct {
	// Vars is the merged user mapping: declared variables overlaid by extra ones.
	Vars map[string]interface{}

	// Env is the environment snapshot exposed as env.
	Env map[string]string

	// Cwd is the command root exposed as cwd.
	Cwd string
}

// Allowed reports whether a template may reference name as a variable.
func (c *Context) Allowed(name string) bool {
	switch name {
	case NameVars, NameEnv, NameCwd:
		return true
	}
	_, ok := c.Vars[name]
	return ok
}

// Names returns every variable name in scope, sorted.
func (c *Context) Names() []string {
	names := make([]string, 0, len(c.Vars)+3)
	for name := range c.Namespace() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Namespace returns the top-level names a template sees: every variable plus
// vars, env and cwd. The returned map is a fresh copy.
func (c *Context) Namespace() map[string]interface{} {
	ns := make(map[string]interface{}, len(c.Vars)+3)
	maps.Copy(ns, c.Vars)
	ns[NameVars] = maps.Clone(c.Vars)
	ns[NameEnv] = maps.Clone(c.Env)
	ns[NameCwd] = c.Cwd
	return ns
}

// BuildContext assembles the template namespace: every declared and extra
// variable at top level (extra wins), plus vars, env and cwd.
func (r *Renderer) BuildContext(declared, extra map[string]interface{}) *Context {
	return &Context{
		Vars: Merge(declared, extra),
		Env:  r.env,
		Cwd:  r.root,
	}
}

// Merge overlays mappings left to right: later values win on key collision.
// Nil mappings are skipped and the inputs are not modified.
func Merge(layers ...map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for _, layer := range layers {
		maps.Copy(out, layer)
	}
	return out
}
