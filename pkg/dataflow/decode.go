package dataflow

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/dynflow/pkg/config"
	"github.com/openfroyo/dynflow/pkg/engine"
)

var validate = validator.New()

// Parse decodes a dataflow document. An empty document, a null document and a
// document whose nodes key is null all yield an empty dataflow.
func Parse(data []byte, source string) (*Dataflow, error) {
	root, err := parseDocument(data, source, config.SchemaDataflow)
	if err != nil {
		return nil, err
	}

	df := &Dataflow{}
	items, err := sequenceAt(root, "nodes", source)
	if err != nil {
		return nil, err
	}

	for i, item := range items {
		entry, err := decodeEntry(item)
		if err != nil {
			return nil, engine.NewConfigError(source,
				fmt.Sprintf("nodes[%d] matches neither node nor operator", i), err)
		}
		df.Append(entry)
	}

	return df, nil
}

// ParseDeployment decodes a rendered deployment descriptor.
func ParseDeployment(data []byte, source string) (*DeploymentConfig, error) {
	root, err := parseDocument(data, source, config.SchemaDeployment)
	if err != nil {
		return nil, err
	}

	cfg := &DeploymentConfig{Vars: map[string]interface{}{}}
	if root == nil {
		return cfg, nil
	}

	if vars := valueAt(root, "vars"); vars != nil && !isNull(vars) {
		if err := vars.Decode(&cfg.Vars); err != nil {
			return nil, engine.NewConfigError(source, "vars must be a mapping", err)
		}
	}

	items, err := sequenceAt(root, "nodes", source)
	if err != nil {
		return nil, err
	}
	for i, item := range items {
		entry, err := decodeDeploymentEntry(item)
		if err != nil {
			return nil, engine.NewConfigError(source,
				fmt.Sprintf("nodes[%d] matches neither node, operator nor dynamic node", i), err)
		}
		cfg.Nodes = append(cfg.Nodes, entry)
	}

	components, err := sequenceAt(root, "components", source)
	if err != nil {
		return nil, err
	}
	for i, item := range components {
		comp, err := decodeAs[DynamicComponent](config.SchemaComponent, item)
		if err != nil {
			return nil, engine.NewConfigError(source, fmt.Sprintf("invalid components[%d]", i), err)
		}
		cfg.Components = append(cfg.Components, *comp)
	}

	return cfg, nil
}

// parseDocument returns the top-level mapping of a YAML document after checking it
// against the named schema. It returns nil for an empty or null document.
func parseDocument(data []byte, source, schema string) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, engine.NewConfigError(source, "invalid YAML", err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil, nil
		}
		root = root.Content[0]
	}
	if root.Kind == 0 || isNull(root) {
		return nil, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, engine.NewConfigError(source, "document must be a mapping", nil)
	}

	var generic interface{}
	if err := root.Decode(&generic); err != nil {
		return nil, engine.NewConfigError(source, "invalid document", err)
	}
	if err := config.DefaultSchemas().Validate(schema, generic); err != nil {
		return nil, engine.NewConfigError(source, "invalid "+schema, err)
	}

	return root, nil
}

// decodeEntry tries each dataflow entry shape in order: Node, then Operator.
func decodeEntry(item *yaml.Node) (Entry, error) {
	node, nodeErr := decodeAs[Node](config.SchemaNode, item)
	if nodeErr == nil {
		return NodeEntry(node), nil
	}

	op, opErr := decodeAs[Operator](config.SchemaOperator, item)
	if opErr == nil {
		return OperatorEntry(op), nil
	}

	return Entry{}, errors.Join(
		fmt.Errorf("as node: %w", nodeErr),
		fmt.Errorf("as operator: %w", opErr),
	)
}

// decodeDeploymentEntry tries Node, then Operator, then DynamicNode. The shapes
// overlap, so the order decides which one an ambiguous record becomes.
func decodeDeploymentEntry(item *yaml.Node) (DeploymentEntry, error) {
	entry, entryErr := decodeEntry(item)
	if entryErr == nil {
		return DeploymentEntry{Node: entry.Node, Operator: entry.Operator}, nil
	}

	dyn, dynErr := decodeAs[DynamicNode](config.SchemaDynamicNode, item)
	if dynErr == nil {
		return DeploymentEntry{Dynamic: dyn}, nil
	}

	return DeploymentEntry{}, errors.Join(entryErr, fmt.Errorf("as dynamic node: %w", dynErr))
}

// decodeAs decodes item into T when it matches the closed schema and the struct
// validation rules of T.
func decodeAs[T any](schema string, item *yaml.Node) (*T, error) {
	var generic interface{}
	if err := item.Decode(&generic); err != nil {
		return nil, err
	}
	if err := config.DefaultSchemas().Validate(schema, generic); err != nil {
		return nil, err
	}

	var out T
	if err := item.Decode(&out); err != nil {
		return nil, err
	}
	if err := validate.Struct(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// valueAt returns the value stored under key in a mapping node.
func valueAt(mapping *yaml.Node, key string) *yaml.Node {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// sequenceAt returns the items of the sequence stored under key. A missing or
// null value yields no items.
func sequenceAt(mapping *yaml.Node, key, source string) ([]*yaml.Node, error) {
	v := valueAt(mapping, key)
	if v != nil && v.Kind == yaml.AliasNode {
		v = v.Alias
	}
	if v == nil || isNull(v) {
		return nil, nil
	}
	if v.Kind != yaml.SequenceNode {
		return nil, engine.NewConfigError(source, key+" must be a sequence", nil)
	}
	return v.Content, nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}
