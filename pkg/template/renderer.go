// Package template renders deployment and component documents.
//
// Documents are Jinja templates by default: {{ expr }} interpolates, {% if %},
// {% for %}, {% set %} and the other Jinja statements are available, and
// {% include %} resolves against the template's directory. The HCL dialect
// (${expr}, %{ if }, %{ for }) can be selected with WithDialect.
//
// A template sees its declared variables at top level and three reserved names:
//
//	vars  the merged variable mapping as one object
//	env   the environment snapshot handed to NewRenderer
//	cwd   the command root
//
// Every free name is checked before evaluation, so a template that mentions an
// unknown name fails with one error listing all of them. Names reached only
// through computed access, as in vars[k], are not visible to the check.
package template

import (
	"fmt"
	"os"

	"github.com/nikolalohinski/gonja/v2/config"
	"github.com/nikolalohinski/gonja/v2/exec"
	"github.com/rs/zerolog"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/openfroyo/dynflow/pkg/engine"
)

// Dialect names a template language.
type Dialect string

const (
	// DialectJinja is the Jinja template language.
	DialectJinja Dialect = "jinja"

	// DialectHCL is the HCL template language.
	DialectHCL Dialect = "hcl"
)

// ParseDialect converts a dialect name. The empty string selects DialectJinja.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(s) {
	case "", DialectJinja:
		return DialectJinja, nil
	case DialectHCL:
		return DialectHCL, nil
	default:
		return "", fmt.Errorf("unknown template dialect %q", s)
	}
}

// Renderer renders template documents against a fixed command root and
// environment snapshot.
type Renderer struct {
	root      string
	env       map[string]string
	dialect   Dialect
	functions map[string]function.Function
	jinja     *exec.Environment
	jinjaCfg  *config.Config
	logger    zerolog.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the renderer's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger.With().Str("component", "template").Logger()
	}
}

// WithDialect selects the template language.
func WithDialect(d Dialect) Option {
	return func(r *Renderer) {
		r.dialect = d
	}
}

// NewRenderer creates a renderer. env is copied, so later changes to the
// caller's map are not visible to templates.
func NewRenderer(root string, env map[string]string, opts ...Option) *Renderer {
	snapshot := make(map[string]string, len(env))
	for k, v := range env {
		snapshot[k] = v
	}

	r := &Renderer{
		root:      root,
		env:       snapshot,
		dialect:   DialectJinja,
		functions: Functions(),
		jinja:     jinjaEnvironment(),
		jinjaCfg:  jinjaConfig(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root returns the command root exposed as cwd.
func (r *Renderer) Root() string {
	return r.root
}

// Dialect returns the template language in use.
func (r *Renderer) Dialect() Dialect {
	return r.dialect
}

// Render reads the template at path and renders it.
func (r *Renderer) Render(path string, declared, extra map[string]interface{}) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", engine.NewIOError(path, err)
	}
	return r.RenderString(path, string(data), declared, extra)
}

// RenderString renders src, naming it name in errors. For the Jinja dialect
// name also anchors {% include %} and {% import %} lookups.
func (r *Renderer) RenderString(name, src string, declared, extra map[string]interface{}) (string, error) {
	c := r.BuildContext(declared, extra)

	var (
		out string
		err error
	)
	switch r.dialect {
	case DialectHCL:
		out, err = r.renderHCL(name, src, c)
	default:
		out, err = r.renderJinja(name, src, c)
	}
	if err != nil {
		return "", err
	}

	r.logger.Debug().
		Str("template", name).
		Str("dialect", string(r.dialect)).
		Int("bytes", len(out)).
		Msg("Rendered template")

	return out, nil
}

func (r *Renderer) renderHCL(name, src string, c *Context) (string, error) {
	expr, err := ParseHCL(name, src)
	if err != nil {
		return "", err
	}

	variables, functions := HCLFreeNames(expr)
	missing := append(Undeclared(variables, c.Allowed), Undeclared(functions, r.hasFunction)...)
	if len(missing) > 0 {
		return "", engine.NewUndeclaredNamesError(name, sortedUnique(missing))
	}

	return evaluateHCL(name, expr, c, r.functions)
}

func (r *Renderer) renderJinja(name, src string, c *Context) (string, error) {
	tpl, err := r.parseJinja(name, src)
	if err != nil {
		return "", err
	}

	allowed := func(n string) bool { return c.Allowed(n) || r.jinjaIntrinsic(n) }
	if err := Guard(name, JinjaFreeNames(tpl.Root()), allowed); err != nil {
		return "", err
	}

	out, err := tpl.ExecuteToString(exec.NewContext(c.Namespace()))
	if err != nil {
		return "", engine.NewTemplateError(name, "failed to render template", err)
	}
	return out, nil
}

func (r *Renderer) hasFunction(name string) bool {
	_, ok := r.functions[name]
	return ok
}
