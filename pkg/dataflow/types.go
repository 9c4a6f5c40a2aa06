// Package dataflow defines the dataflow and deployment records, decodes them from
// YAML, rewrites their path fields and encodes the final document.
package dataflow

import (
	"fmt"
	"slices"
)

// Dataflow is an ordered list of nodes and operators.
type Dataflow struct {
	Nodes []Entry `yaml:"nodes"`
}

// Append adds entries to the end of the dataflow.
func (df *Dataflow) Append(entries ...Entry) {
	df.Nodes = append(df.Nodes, entries...)
}

// Clone returns a deep copy.
func (df *Dataflow) Clone() *Dataflow {
	out := &Dataflow{Nodes: make([]Entry, 0, len(df.Nodes))}
	for _, e := range df.Nodes {
		out.Nodes = append(out.Nodes, e.Clone())
	}
	return out
}

// FindNode returns the first Node whose id matches. Operators never match.
func (df *Dataflow) FindNode(id string) (*Node, bool) {
	for _, e := range df.Nodes {
		if e.Node != nil && e.Node.ID == id {
			return e.Node, true
		}
	}
	return nil, false
}

// IDs returns the id of every Node entry, in order.
func (df *Dataflow) IDs() []string {
	ids := make([]string, 0, len(df.Nodes))
	for _, e := range df.Nodes {
		if e.Node != nil {
			ids = append(ids, e.Node.ID)
		}
	}
	return ids
}

// Entry is one element of a dataflow: exactly one of Node or Operator is set.
type Entry struct {
	Node     *Node
	Operator *Operator
}

// NodeEntry wraps a node.
func NodeEntry(n *Node) Entry {
	return Entry{Node: n}
}

// OperatorEntry wraps an operator.
func OperatorEntry(op *Operator) Entry {
	return Entry{Operator: op}
}

// Clone returns a deep copy.
func (e Entry) Clone() Entry {
	return Entry{Node: e.Node.Clone(), Operator: e.Operator.Clone()}
}

// MarshalYAML implements yaml.Marshaler by encoding whichever variant is set.
func (e Entry) MarshalYAML() (interface{}, error) {
	switch {
	case e.Node != nil:
		return e.Node, nil
	case e.Operator != nil:
		return e.Operator, nil
	default:
		return nil, fmt.Errorf("dataflow entry has neither node nor operator")
	}
}

// Node is an executable node of the dataflow.
type Node struct {
	// ID identifies the node within the dataflow.
	ID string `yaml:"id" validate:"required"`

	// Path is the executable or script.
	Path string `yaml:"path,omitempty"`

	// Env holds environment variables for the node.
	Env Value `yaml:"env,omitempty"`

	// Name is a human-readable name.
	Name string `yaml:"name,omitempty"`

	// Build is the build command.
	Build string `yaml:"build,omitempty"`

	// Operator is an operator embedded in the node.
	Operator *Operator `yaml:"operator,omitempty"`

	// Inputs maps input names to their sources.
	Inputs Value `yaml:"inputs,omitempty"`

	// Outputs lists the outputs the node produces.
	Outputs Names `yaml:"outputs,omitempty"`

	// Args is an argument string or list.
	Args Value `yaml:"args,omitempty"`
}

// Clone returns a deep copy. Cloning a nil node returns nil.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Env = n.Env.Clone()
	c.Operator = n.Operator.Clone()
	c.Inputs = n.Inputs.Clone()
	c.Outputs = slices.Clone(n.Outputs)
	c.Args = n.Args.Clone()
	return &c
}

// Names is a list of identifiers that tells an absent list apart from an empty
// one: a nil list is omitted when encoding, an empty one is kept as [].
type Names []string

// IsZero reports whether the list is absent.
func (n Names) IsZero() bool {
	return n == nil
}

// Operator is a script run by the dataflow runtime. Unlike a Node it has no id.
type Operator struct {
	// Build is the build command.
	Build string `yaml:"build,omitempty"`

	// Description describes the operator.
	Description string `yaml:"description,omitempty"`

	// Python is the operator's script path.
	Python string `yaml:"python,omitempty"`

	// Env holds environment variables for the operator.
	Env Value `yaml:"env,omitempty"`

	// Inputs maps input names to their sources.
	Inputs Value `yaml:"inputs,omitempty"`

	// Outputs lists the outputs the operator produces.
	Outputs Names `yaml:"outputs,omitempty"`

	// Args is an argument string or list.
	Args Value `yaml:"args,omitempty"`
}

// Clone returns a deep copy. Cloning a nil operator returns nil.
func (op *Operator) Clone() *Operator {
	if op == nil {
		return nil
	}
	c := *op
	c.Env = op.Env.Clone()
	c.Inputs = op.Inputs.Clone()
	c.Outputs = slices.Clone(op.Outputs)
	c.Args = op.Args.Clone()
	return &c
}

// DeploymentConfig is the root descriptor driving composition.
type DeploymentConfig struct {
	// Vars are the deployment-level template variables.
	Vars map[string]interface{}

	// Nodes are the direct entries, in declaration order.
	Nodes []DeploymentEntry

	// Components are templated sub-dataflows, in declaration order.
	Components []DynamicComponent
}

// DeploymentEntry is a Node, an Operator or a DynamicNode reference.
type DeploymentEntry struct {
	Node     *Node
	Operator *Operator
	Dynamic  *DynamicNode
}

// DynamicNode points at a node defined in another dataflow document.
type DynamicNode struct {
	// ID is the id of the node to extract.
	ID string `yaml:"id" validate:"required"`

	// Path is the dataflow document holding the node.
	Path string `yaml:"path" validate:"required"`

	// Kind is always "dynamic".
	Kind string `yaml:"kind,omitempty" validate:"omitempty,eq=dynamic"`
}

// DynamicComponent points at a template whose rendered output is a dataflow.
type DynamicComponent struct {
	// ID identifies the component.
	ID string `yaml:"id" validate:"required"`

	// Path is the template document.
	Path string `yaml:"path" validate:"required"`

	// Vars override deployment variables while rendering this component.
	Vars map[string]interface{} `yaml:"vars,omitempty"`
}
