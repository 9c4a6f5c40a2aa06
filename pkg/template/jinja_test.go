package template

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJinjaFreeNames(t *testing.T) {
	r := NewRenderer("/work", nil)

	tests := []struct {
		name string
		src  string
		want []string
	}{
		{"plain text", "nodes: []", []string{}},
		{"output", "{{ a }} {{ b.c }} {{ d[e] }}", []string{"a", "b", "d", "e"}},
		{"filters and tests", "{{ items | join(sep) }}{% if x is defined %}{% endif %}", []string{"items", "sep", "x"}},
		{"set binds after its value", "{% set x = y %}{{ x }}", []string{"y"}},
		{"set inside if stays visible", "{% if a %}{% set x = 1 %}{% endif %}{{ x }}", []string{"a"}},
		{"block set", "{% set body %}{{ y }}{% endset %}{{ body }}", []string{"y"}},
		{"for binds key, value and nothing outside", "{% for k, v in m.items() %}{{ k }}{{ v }}{% endfor %}{{ k }}", []string{"k", "m"}},
		{"for condition sees the loop variable", "{% for s in xs if s != skip %}{{ s }}{% endfor %}", []string{"skip", "xs"}},
		{"for else runs outside the loop scope", "{% for s in xs %}{% else %}{{ s }}{% endfor %}", []string{"s", "xs"}},
		{"macro parameters", "{% macro tag(n, suffix='x') %}{{ n }}{{ suffix }}{{ other }}{% endmacro %}{{ tag(name) }}", []string{"name", "other"}},
		{"with block", "{% with a = b %}{{ a }}{% endwith %}{{ a }}", []string{"a", "b"}},
		{"import alias", "{% import 'macros.j2' as m %}{{ m.tag(1) }}", []string{}},
		{"from import alias", "{% from 'macros.j2' import tag as t %}{{ t(1) }}", []string{}},
		{"conditional output", "{{ a if b else c }}", []string{"a", "b", "c"}},
		{"comments are ignored", "{# {{ hidden }} #}", []string{}},
		{"loop is reported raw", "{% for s in xs %}{{ loop.index }}{% endfor %}", []string{"loop", "xs"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl, err := r.parseJinja("test.yml", tt.src)
			require.NoError(t, err)
			require.Equal(t, tt.want, JinjaFreeNames(tpl.Root()))
		})
	}
}

func TestJinjaIntrinsic(t *testing.T) {
	r := NewRenderer("/work", nil)

	for _, name := range []string{"range", "dict", "namespace", "loop", "caller", "self"} {
		require.True(t, r.jinjaIntrinsic(name), name)
	}
	require.False(t, r.jinjaIntrinsic("name"))
}
