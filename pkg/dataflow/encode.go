package dataflow

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Marshal encodes df as a block-style YAML document with two-space indentation.
// Sequence items are indented under their parent key, unset fields are omitted
// and keys follow declaration order.
func Marshal(df *Dataflow) ([]byte, error) {
	if df == nil {
		df = &Dataflow{}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	doc := df
	if doc.Nodes == nil {
		doc = &Dataflow{Nodes: []Entry{}}
	}
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode dataflow: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode dataflow: %w", err)
	}

	return buf.Bytes(), nil
}

// ToGeneric returns df as plain maps, slices and scalars, in the same shape the
// encoded document has.
func ToGeneric(df *Dataflow) (map[string]interface{}, error) {
	data, err := Marshal(df)
	if err != nil {
		return nil, err
	}

	var out map[string]interface{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode dataflow: %w", err)
	}
	return out, nil
}
