package template

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/openfroyo/dynflow/pkg/engine"
)

// ParseHCL parses src as an HCL template.
func ParseHCL(name, src string) (hclsyntax.Expression, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(src), name, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, engine.NewTemplateError(name, "failed to parse template", diags)
	}
	return expr, nil
}

// HCLFreeNames returns the root name of every variable the template references
// outside its own for-loop scopes and the name of every function it calls.
// Both slices are sorted and free of duplicates.
func HCLFreeNames(expr hclsyntax.Expression) (variables, functions []string) {
	vars := make(map[string]struct{})
	for _, traversal := range expr.Variables() {
		vars[traversal.RootName()] = struct{}{}
	}

	funcs := make(map[string]struct{})
	hclsyntax.VisitAll(expr, func(n hclsyntax.Node) hcl.Diagnostics {
		if call, ok := n.(*hclsyntax.FunctionCallExpr); ok {
			funcs[call.Name] = struct{}{}
		}
		return nil
	})

	return sortedKeys(vars), sortedKeys(funcs)
}

// EvalContext converts c into an HCL evaluation context.
func EvalContext(c *Context, functions map[string]function.Function) (*hcl.EvalContext, error) {
	variables := make(map[string]cty.Value, len(c.Vars)+3)
	for name, v := range c.Vars {
		cv, err := ToCty(v)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		variables[name] = cv
	}

	varsVal, err := ToCty(c.Vars)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", NameVars, err)
	}
	variables[NameVars] = varsVal
	variables[NameEnv] = envValue(c.Env)
	variables[NameCwd] = cty.StringVal(c.Cwd)

	return &hcl.EvalContext{
		Variables: variables,
		Functions: functions,
	}, nil
}

func evaluateHCL(name string, expr hclsyntax.Expression, c *Context, functions map[string]function.Function) (string, error) {
	ectx, err := EvalContext(c, functions)
	if err != nil {
		return "", engine.NewTemplateError(name, "failed to build template context", err)
	}

	val, diags := expr.Value(ectx)
	if diags.HasErrors() {
		return "", engine.NewTemplateError(name, "failed to evaluate template", diags)
	}

	if val.IsNull() {
		return "", nil
	}
	if !val.IsWhollyKnown() {
		return "", engine.NewTemplateError(name, "template result is not known", nil)
	}

	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", engine.NewTemplateError(name,
			fmt.Sprintf("template result of type %s is not a string", val.Type().FriendlyName()), err)
	}
	if str.IsNull() {
		return "", nil
	}
	return str.AsString(), nil
}

// ToCty converts a value decoded from YAML (maps, slices and scalars) into a cty
// value. Mappings become objects and sequences become tuples.
func ToCty(v interface{}) (cty.Value, error) {
	if m, ok := v.(map[string]interface{}); ok && len(m) == 0 {
		return cty.EmptyObjectVal, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unsupported value: %w", err)
	}
	ty, err := ctyjson.ImpliedType(data)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unsupported value: %w", err)
	}
	val, err := ctyjson.Unmarshal(data, ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unsupported value: %w", err)
	}
	return val, nil
}

func envValue(env map[string]string) cty.Value {
	if len(env) == 0 {
		return cty.MapValEmpty(cty.String)
	}
	m := make(map[string]cty.Value, len(env))
	for k, v := range env {
		m[k] = cty.StringVal(v)
	}
	return cty.MapVal(m)
}
