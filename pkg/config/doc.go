// Package config holds the dynflow settings and the CUE schemas that document
// shapes are checked against.
//
// # Settings
//
// LoadSettings reads, in increasing precedence, the built-in defaults, a YAML
// settings file (--config, else .dynflow.yaml in the working directory) and
// DYNFLOW_* environment variables; command line flags bound to the same viper
// instance win over all of them:
//
//	log:
//	  level: debug
//	  format: json
//	export:
//	  default: build/dataflow.yml
//	tracing:
//	  exporter: otlp
//	  endpoint: localhost:4317
//	  insecure: true
//	metrics:
//	  textfile: /var/lib/node_exporter/dynflow.prom
//	policy:
//	  paths: [policies]
//	  disable: [node-without-executable]
//
// # Schemas
//
// SchemaRegistry compiles the closed CUE definitions for dataflow entries,
// deployments and components. Validate unifies a decoded document with one of
// them, so unknown keys and wrong types are reported with their CUE path before
// the document is decoded into Go types.
package config
