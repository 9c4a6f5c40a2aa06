package policy

// BuiltinPolicies returns the policies every engine starts with. They only
// warn.
func BuiltinPolicies() []Policy {
	return []Policy{
		duplicateNodeIDsPolicy(),
		nodeWithoutExecutablePolicy(),
	}
}

// duplicateNodeIDsPolicy flags node ids declared more than once. A dataflow
// runtime addresses nodes by id, so only one of them would be reachable.
func duplicateNodeIDsPolicy() Policy {
	return Policy{
		Name:        "duplicate-node-ids",
		Description: "Node ids must be unique within a dataflow",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"nodes", "identity"},
		Rego: `package dynflow.policies.duplicates

import rego.v1

node_ids := {node.id | some node in input.nodes; node.id}

deny contains violation if {
	some id in node_ids
	uses := count([node | some node in input.nodes; node.id == id])
	uses > 1
	violation := {
		"message": sprintf("node id %q is declared %d times", [id, uses]),
		"node": id,
	}
}
`,
	}
}

// nodeWithoutExecutablePolicy flags nodes that name neither a path nor an
// inline operator.
func nodeWithoutExecutablePolicy() Policy {
	return Policy{
		Name:        "node-without-executable",
		Description: "Every node should declare a path or an operator",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"nodes"},
		Rego: `package dynflow.policies.executable

import rego.v1

deny contains violation if {
	some node in input.nodes
	node.id
	not node.path
	not node.operator
	violation := {
		"message": sprintf("node %q has neither a path nor an operator", [node.id]),
		"node": node.id,
	}
}
`,
	}
}
