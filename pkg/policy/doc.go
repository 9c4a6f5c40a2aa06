// Package policy checks composed dataflows with Open Policy Agent (OPA).
//
// Policies are Rego modules. Each module's deny set is queried with the
// composed dataflow as input:
//
//	{
//	  "deployment": "deploy.yml",
//	  "nodes": [{"id": "camera", "path": "nodes/camera.py"}, ...]
//	}
//
// The entries under nodes have the same shape as the exported document. A deny
// element is either a message string or an object with message and optional
// node and severity fields:
//
//	package team.naming
//
//	import rego.v1
//
//	deny contains violation if {
//		some node in input.nodes
//		startswith(node.id, "tmp-")
//		violation := {"message": "temporary node left in the dataflow", "node": node.id}
//	}
//
// # Severities
//
// Violations of severity error or critical block the export; info and warning
// are reported only. User policies default to error. The built-in policies,
// duplicate-node-ids and node-without-executable, only warn.
//
// # Loading
//
// User policies come from .rego files, JSON policy definitions carrying the
// Rego source in a rego field, or directories of either. Engine.Watch reloads
// them when they change.
package policy
