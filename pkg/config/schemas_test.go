package config

import (
	"strings"
	"testing"
)

func TestSchemaRegistry_RegisterAndGet(t *testing.T) {
	sr := NewSchemaRegistry()

	customSchema := `
#CustomType: {
	field1: string
	field2: int
}
#CustomType
`

	err := sr.RegisterSchema("custom", customSchema)
	if err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}

	schema, ok := sr.GetSchema("custom")
	if !ok {
		t.Fatal("expected to find custom schema")
	}

	if schema.Err() != nil {
		t.Errorf("schema has errors: %v", schema.Err())
	}

	if err := sr.Validate("custom", map[string]interface{}{"field1": "a", "field2": 2}); err != nil {
		t.Errorf("expected custom schema to accept valid data: %v", err)
	}
}

func TestSchemaRegistry_RegisterInvalid(t *testing.T) {
	sr := NewSchemaRegistry()
	if err := sr.RegisterSchema("broken", "#Broken: {"); err == nil {
		t.Error("expected compile error for invalid schema")
	}
}

func TestSchemaRegistry_BuiltInSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	want := []string{
		SchemaComponent,
		SchemaDataflow,
		SchemaDeployment,
		SchemaDynamicNode,
		SchemaNode,
		SchemaOperator,
	}

	got := sr.ListSchemas()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected schemas %v, got %v", want, got)
	}
}

func TestSchemaRegistry_Validate(t *testing.T) {
	sr := DefaultSchemas()

	tests := []struct {
		name    string
		schema  string
		data    map[string]interface{}
		wantErr bool
	}{
		{
			name:   "minimal node",
			schema: SchemaNode,
			data:   map[string]interface{}{"id": "camera"},
		},
		{
			name:   "full node with embedded operator",
			schema: SchemaNode,
			data: map[string]interface{}{
				"id":      "op",
				"path":    "nodes/op.py",
				"env":     map[string]interface{}{"A": 1},
				"inputs":  map[string]interface{}{"tick": "dora/timer/millis/100"},
				"outputs": []interface{}{"image"},
				"args":    "--fast",
				"operator": map[string]interface{}{
					"python": "op.py",
				},
			},
		},
		{
			name:    "node missing id",
			schema:  SchemaNode,
			data:    map[string]interface{}{"path": "x.py"},
			wantErr: true,
		},
		{
			name:    "node with unknown field",
			schema:  SchemaNode,
			data:    map[string]interface{}{"id": "a", "kind": "dynamic"},
			wantErr: true,
		},
		{
			name:    "node with non-string outputs",
			schema:  SchemaNode,
			data:    map[string]interface{}{"id": "a", "outputs": []interface{}{1}},
			wantErr: true,
		},
		{
			name:   "operator without id",
			schema: SchemaOperator,
			data:   map[string]interface{}{"python": "op.py", "args": []interface{}{"-v"}},
		},
		{
			name:    "operator rejects id",
			schema:  SchemaOperator,
			data:    map[string]interface{}{"id": "a"},
			wantErr: true,
		},
		{
			name:   "dynamic node",
			schema: SchemaDynamicNode,
			data:   map[string]interface{}{"id": "a", "path": "flow.yml", "kind": "dynamic"},
		},
		{
			name:    "dynamic node with other kind",
			schema:  SchemaDynamicNode,
			data:    map[string]interface{}{"id": "a", "path": "flow.yml", "kind": "static"},
			wantErr: true,
		},
		{
			name:   "component",
			schema: SchemaComponent,
			data:   map[string]interface{}{"id": "c", "path": "c.yml", "vars": map[string]interface{}{"x": 1}},
		},
		{
			name:    "deployment rejects unknown key",
			schema:  SchemaDeployment,
			data:    map[string]interface{}{"nodes": []interface{}{}, "extra": true},
			wantErr: true,
		},
		{
			name:   "deployment with null vars",
			schema: SchemaDeployment,
			data:   map[string]interface{}{"vars": nil},
		},
		{
			name:   "dataflow tolerates unknown keys",
			schema: SchemaDataflow,
			data:   map[string]interface{}{"nodes": []interface{}{}, "communication": "tcp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.Validate(tt.schema, tt.data)
			if tt.wantErr && err == nil {
				t.Errorf("expected validation error, got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestSchemaRegistry_UnknownSchema(t *testing.T) {
	sr := NewSchemaRegistry()
	if err := sr.Validate("nope", map[string]interface{}{}); err == nil {
		t.Error("expected error for unknown schema")
	}
}
