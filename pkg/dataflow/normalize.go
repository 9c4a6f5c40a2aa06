package dataflow

import "github.com/openfroyo/dynflow/pkg/paths"

// MapPaths returns a deep copy of df with fn applied to every path field: each
// node's path, each standalone operator's python script and each embedded
// operator's python script. df is not modified. Empty fields are left alone.
func MapPaths(df *Dataflow, fn func(string) string) *Dataflow {
	out := df.Clone()
	for _, e := range out.Nodes {
		if e.Node != nil {
			mapNodePaths(e.Node, fn)
		}
		if e.Operator != nil {
			mapOperatorPaths(e.Operator, fn)
		}
	}
	return out
}

// MapNodePaths returns a copy of n with fn applied to its path fields.
func MapNodePaths(n *Node, fn func(string) string) *Node {
	c := n.Clone()
	mapNodePaths(c, fn)
	return c
}

// MapOperatorPaths returns a copy of op with fn applied to its script path.
func MapOperatorPaths(op *Operator, fn func(string) string) *Operator {
	c := op.Clone()
	mapOperatorPaths(c, fn)
	return c
}

// Normalize rewrites every path field to absolute form, resolving relative values
// against baseDir first and the command root second.
func Normalize(df *Dataflow, r *paths.Resolver, baseDir string) *Dataflow {
	return MapPaths(df, func(p string) string { return r.FieldValue(p, baseDir) })
}

// Relativize rewrites every absolute path field relative to the command root.
func Relativize(df *Dataflow, r *paths.Resolver) *Dataflow {
	return MapPaths(df, r.Relative)
}

func mapNodePaths(n *Node, fn func(string) string) {
	if n.Path != "" {
		n.Path = fn(n.Path)
	}
	if n.Operator != nil {
		mapOperatorPaths(n.Operator, fn)
	}
}

func mapOperatorPaths(op *Operator, fn func(string) string) {
	if op.Python != "" {
		op.Python = fn(op.Python)
	}
}
