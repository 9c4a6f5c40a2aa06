package template

import (
	"errors"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/nikolalohinski/gonja/v2"
	controlStructures "github.com/nikolalohinski/gonja/v2/builtins/control_structures"
	"github.com/nikolalohinski/gonja/v2/config"
	"github.com/nikolalohinski/gonja/v2/exec"
	"github.com/nikolalohinski/gonja/v2/loaders"
	"github.com/nikolalohinski/gonja/v2/nodes"
	"github.com/nikolalohinski/gonja/v2/tokens"

	"github.com/openfroyo/dynflow/pkg/engine"
)

// Names the Jinja runtime binds while rendering, on top of its global functions.
var jinjaImplicit = map[string]struct{}{
	"self":   {},
	"super":  {},
	"caller": {},
	"loop":   {},
}

func jinjaEnvironment() *exec.Environment {
	return gonja.DefaultEnvironment
}

// jinjaConfig keeps the source's trailing newline so that plain documents
// render to themselves.
func jinjaConfig() *config.Config {
	cfg := gonja.DefaultConfig.Inherit()
	cfg.KeepTrailingNewline = true
	return cfg
}

func (r *Renderer) jinjaIntrinsic(name string) bool {
	if _, ok := jinjaImplicit[name]; ok {
		return true
	}
	return r.jinja.Context.Has(name)
}

// parseJinja parses src. Includes and imports resolve against the directory
// of name, or the working directory when that does not exist.
func (r *Renderer) parseJinja(name, src string) (*exec.Template, error) {
	base, err := loaders.NewFileSystemLoader(filepath.Dir(name))
	if err != nil {
		if base, err = loaders.NewFileSystemLoader(""); err != nil {
			return nil, engine.NewTemplateError(name, "failed to create template loader", err)
		}
	}

	loader, err := loaders.NewShiftedLoader(name, strings.NewReader(src), base)
	if err != nil {
		return nil, engine.NewTemplateError(name, "failed to create template loader", err)
	}

	tpl, err := exec.NewTemplate(name, r.jinjaCfg, loader, r.jinja)
	if err != nil {
		// NewTemplate quotes the whole source in its message; keep the cause.
		if inner := errors.Unwrap(err); inner != nil {
			err = inner
		}
		return nil, engine.NewTemplateError(name, "failed to parse template", err)
	}
	return tpl, nil
}

// JinjaFreeNames returns every name the template reads that none of its own
// statements bind, sorted and free of duplicates. Bindings come from for
// loops, set, with, macro parameters and imports. Names used only inside
// included or imported files are not reported.
func JinjaFreeNames(root *nodes.Template) []string {
	w := &nameWalker{
		free:    make(map[string]struct{}),
		visited: make(map[visitKey]struct{}),
	}
	w.walk(reflect.ValueOf(root), newScope(nil))
	return sortedKeys(w.free)
}

var (
	nameType     = reflect.TypeOf(&nodes.Name{})
	variableType = reflect.TypeOf(&nodes.Variable{})
	templateType = reflect.TypeOf(&nodes.Template{})
	wrapperType  = reflect.TypeOf(&nodes.Wrapper{})
	macroType    = reflect.TypeOf(&nodes.Macro{})
	tokenType    = reflect.TypeOf(&tokens.Token{})
	forType      = reflect.TypeOf(&controlStructures.ForControlStructure{})
	setType      = reflect.TypeOf(&controlStructures.SetControlStructure{})
	withType     = reflect.TypeOf(&controlStructures.WithControlStructure{})
	importType   = reflect.TypeOf(&controlStructures.ImportControlStructure{})
	fromType     = reflect.TypeOf(&controlStructures.FromImportControlStructure{})
)

type scope struct {
	names  map[string]struct{}
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{names: make(map[string]struct{}), parent: parent}
}

func (s *scope) bind(name string) {
	if name != "" {
		s.names[name] = struct{}{}
	}
}

func (s *scope) bound(name string) bool {
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.names[name]; ok {
			return true
		}
	}
	return false
}

// nameWalker collects free names from a parsed template. Several built-in
// statements keep their operands in unexported fields, so the tree is read
// through reflection and never through Interface.
type nameWalker struct {
	free    map[string]struct{}
	visited map[visitKey]struct{}
}

type visitKey struct {
	typ reflect.Type
	ptr uintptr
}

func (w *nameWalker) ref(name string, s *scope) {
	if name != "" && !s.bound(name) {
		w.free[name] = struct{}{}
	}
}

func (w *nameWalker) walk(v reflect.Value, s *scope) {
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() || v.Type() == tokenType {
			return
		}
		key := visitKey{typ: v.Type(), ptr: v.Pointer()}
		if _, seen := w.visited[key]; seen {
			return
		}
		w.visited[key] = struct{}{}
		w.node(v, s)
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			w.walk(v.Index(i), s)
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			w.walk(iter.Value(), s)
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			w.walk(v.Field(i), s)
		}
	}
}

func (w *nameWalker) node(v reflect.Value, s *scope) {
	n := v.Elem()

	switch v.Type() {
	case nameType:
		w.ref(tokenValue(n.FieldByName("Name")), s)

	case variableType:
		parts := n.FieldByName("Parts")
		for i := 0; i < parts.Len(); i++ {
			part := parts.Index(i).Elem()
			if i == 0 && part.FieldByName("Type").Int() == nodes.VarTypeIdent {
				w.ref(part.FieldByName("S").String(), s)
			}
			w.walk(part.FieldByName("Args"), s)
			w.walk(part.FieldByName("Kwargs"), s)
		}

	case templateType:
		w.walk(n.FieldByName("Nodes"), s)
		w.walk(n.FieldByName("Blocks"), s)

	case wrapperType:
		// Only loops, macros and with blocks open a scope; a set inside an
		// if branch stays visible after it.
		w.walk(n.FieldByName("Nodes"), s)

	case macroType:
		s.bind(n.FieldByName("Name").String())
		body := newScope(s)
		kwargs := n.FieldByName("Kwargs")
		for i := 0; i < kwargs.Len(); i++ {
			pair := kwargs.Index(i).Elem()
			w.walk(pair.FieldByName("Value"), s)
			if key := elem(pair.FieldByName("Key")); key.IsValid() {
				body.bind(key.FieldByName("Val").String())
			}
		}
		body.bind(n.FieldByName("VarArgsName").String())
		body.bind(n.FieldByName("KwArgsName").String())
		w.walk(n.FieldByName("Wrapper"), body)

	case forType:
		w.walk(n.FieldByName("ObjectEvaluator"), s)
		body := newScope(s)
		body.bind(n.FieldByName("Key").String())
		body.bind(n.FieldByName("Value").String())
		w.walk(n.FieldByName("IfCondition"), body)
		w.walk(n.FieldByName("BodyWrapper"), body)
		w.walk(n.FieldByName("EmptyWrapper"), s)

	case setType:
		w.walk(n.FieldByName("expression"), s)
		w.walk(n.FieldByName("condition"), s)
		w.walk(n.FieldByName("alternative"), s)
		w.walk(n.FieldByName("body"), s)
		target := n.FieldByName("target")
		if t := elem(target); t.IsValid() && target.Elem().Type() == nameType {
			s.bind(tokenValue(t.FieldByName("Name")))
		} else {
			w.walk(target, s)
		}

	case withType:
		body := newScope(s)
		iter := n.FieldByName("pairs").MapRange()
		for iter.Next() {
			w.walk(iter.Value(), s)
			body.bind(iter.Key().String())
		}
		w.walk(n.FieldByName("wrapper"), body)

	case importType:
		w.walk(n.FieldByName("filenameExpression"), s)
		s.bind(n.FieldByName("as").String())

	case fromType:
		w.walk(n.FieldByName("FilenameExpression"), s)
		for _, alias := range n.FieldByName("As").MapKeys() {
			s.bind(alias.String())
		}

	default:
		w.walk(n, s)
	}
}

// elem dereferences an interface or pointer field down to its struct, or
// returns the zero Value when it is nil.
func elem(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func tokenValue(tok reflect.Value) string {
	t := elem(tok)
	if !t.IsValid() {
		return ""
	}
	return t.FieldByName("Val").String()
}
