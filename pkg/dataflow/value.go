package dataflow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Value is a YAML value kept exactly as written: key order, nesting and scalar
// tags survive a decode/encode cycle. It backs the env, inputs and args fields,
// whose contents this tool passes through without interpreting.
//
// The zero Value is unset and is omitted on output.
type Value struct {
	node *yaml.Node
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Value) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null" {
		v.node = nil
		return nil
	}
	v.node = cloneNode(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (v Value) MarshalYAML() (interface{}, error) {
	if v.node == nil {
		return nil, nil
	}
	return v.node, nil
}

// IsZero reports whether the value is unset. yaml.v3 uses it for omitempty.
func (v Value) IsZero() bool {
	return v.node == nil
}

// Clone returns a deep copy.
func (v Value) Clone() Value {
	return Value{node: cloneNode(v.node)}
}

// Kind returns the YAML kind of the value, or 0 when unset.
func (v Value) Kind() yaml.Kind {
	if v.node == nil {
		return 0
	}
	return v.node.Kind
}

// Keys returns the keys of a mapping value in declaration order.
func (v Value) Keys() []string {
	if v.Kind() != yaml.MappingNode {
		return nil
	}
	keys := make([]string, 0, len(v.node.Content)/2)
	for i := 0; i+1 < len(v.node.Content); i += 2 {
		keys = append(keys, v.node.Content[i].Value)
	}
	return keys
}

// Lookup returns the scalar text stored under key in a mapping value.
func (v Value) Lookup(key string) (string, bool) {
	if v.Kind() != yaml.MappingNode {
		return "", false
	}
	for i := 0; i+1 < len(v.node.Content); i += 2 {
		if v.node.Content[i].Value == key {
			return v.node.Content[i+1].Value, true
		}
	}
	return "", false
}

// Interface decodes the value into plain Go maps, slices and scalars.
func (v Value) Interface() (interface{}, error) {
	if v.node == nil {
		return nil, nil
	}
	var out interface{}
	if err := v.node.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return out, nil
}

// MappingOf builds a mapping value from alternating keys and string values.
func MappingOf(kv ...string) Value {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: kv[i]},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: kv[i+1]},
		)
	}
	return Value{node: n}
}

// StringValue builds a string scalar value.
func StringValue(s string) Value {
	return Value{node: &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}}
}

// ListValue builds a sequence of string scalars.
func ListValue(items ...string) Value {
	n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, item := range items {
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: item})
	}
	return Value{node: n}
}

// cloneNode deep-copies a node tree. Aliases are replaced by copies of their
// targets, and flow styles, anchors and comments are dropped so the copy always
// encodes as plain block YAML.
func cloneNode(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		return cloneNode(n.Alias)
	}

	c := &yaml.Node{
		Kind:  n.Kind,
		Style: n.Style &^ yaml.FlowStyle,
		Tag:   n.Tag,
		Value: n.Value,
	}
	if len(n.Content) > 0 {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = cloneNode(child)
		}
	}
	return c
}
