package dataflow

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMarshal_Format(t *testing.T) {
	df := &Dataflow{Nodes: []Entry{
		NodeEntry(&Node{
			ID:      "camera",
			Path:    "nodes/camera.py",
			Inputs:  MappingOf("tick", "dora/timer/millis/20"),
			Outputs: []string{"image"},
		}),
		OperatorEntry(&Operator{
			Python: "ops/plot.py",
			Args:   StringValue("--fast"),
		}),
	}}

	out, err := Marshal(df)
	require.NoError(t, err)

	want := `nodes:
  - id: camera
    path: nodes/camera.py
    inputs:
      tick: dora/timer/millis/20
    outputs:
      - image
  - python: ops/plot.py
    args: --fast
`
	require.Equal(t, want, string(out))
}

func TestMarshal_Empty(t *testing.T) {
	out, err := Marshal(&Dataflow{})
	require.NoError(t, err)
	require.Equal(t, "nodes: []\n", string(out))

	out, err = Marshal(nil)
	require.NoError(t, err)
	require.Equal(t, "nodes: []\n", string(out))
}

func TestMarshal_KeepsOrderAndDropsFlowStyle(t *testing.T) {
	data := `nodes:
  - id: a
    env: {Z: "1", A: x}
    outputs: [o1, o2]
`
	df, err := Parse([]byte(data), "flow.yml")
	require.NoError(t, err)

	out, err := Marshal(df)
	require.NoError(t, err)

	want := `nodes:
  - id: a
    env:
      Z: "1"
      A: x
    outputs:
      - o1
      - o2
`
	require.Equal(t, want, string(out))
}

func TestMarshal_KeepsExplicitEmptyOutputs(t *testing.T) {
	data := `nodes:
  - id: n1
    path: a.py
    outputs: []
  - id: n2
    path: b.py
  - python: op.py
    outputs: []
`
	df, err := Parse([]byte(data), "flow.yml")
	require.NoError(t, err)
	require.NotNil(t, df.Nodes[0].Node.Outputs)
	require.Empty(t, df.Nodes[0].Node.Outputs)
	require.Nil(t, df.Nodes[1].Node.Outputs)
	require.NotNil(t, df.Nodes[2].Operator.Outputs)

	out, err := Marshal(df)
	require.NoError(t, err)
	require.Equal(t, data, string(out))

	cloned := df.Clone()
	require.NotNil(t, cloned.Nodes[0].Node.Outputs)
	require.Nil(t, cloned.Nodes[1].Node.Outputs)
}

func TestMarshal_UnicodeLiteral(t *testing.T) {
	df := &Dataflow{Nodes: []Entry{NodeEntry(&Node{ID: "caméra", Name: "カメラ"})}}

	out, err := Marshal(df)
	require.NoError(t, err)
	require.Equal(t, "nodes:\n  - id: caméra\n    name: カメラ\n", string(out))
}

func TestMarshal_EmptyEntry(t *testing.T) {
	_, err := Marshal(&Dataflow{Nodes: []Entry{{}}})
	require.Error(t, err)
}

func TestToGeneric(t *testing.T) {
	df := &Dataflow{Nodes: []Entry{
		NodeEntry(&Node{ID: "a", Path: "a.py", Env: MappingOf("K", "v")}),
	}}

	g, err := ToGeneric(df)
	require.NoError(t, err)

	nodes, ok := g["nodes"].([]interface{})
	require.True(t, ok)
	require.Len(t, nodes, 1)
	require.Equal(t, map[string]interface{}{
		"id":   "a",
		"path": "a.py",
		"env":  map[string]interface{}{"K": "v"},
	}, nodes[0])
}

func genDataflow() *rapid.Generator[*Dataflow] {
	ident := rapid.StringMatching(`[a-z][a-z0-9_]{0,8}`)
	path := rapid.StringMatching(`[a-z]{1,6}/[a-z]{1,6}\.py`)

	node := rapid.Custom(func(t *rapid.T) Entry {
		n := &Node{ID: ident.Draw(t, "id")}
		if rapid.Bool().Draw(t, "hasPath") {
			n.Path = path.Draw(t, "path")
		}
		if rapid.Bool().Draw(t, "hasEnv") {
			n.Env = MappingOf(ident.Draw(t, "envKey"), ident.Draw(t, "envValue"))
		}
		if rapid.Bool().Draw(t, "hasOperator") {
			n.Operator = &Operator{Python: path.Draw(t, "opPython")}
		}
		n.Outputs = rapid.SliceOfN(ident, 0, 3).Draw(t, "outputs")
		return NodeEntry(n)
	})

	operator := rapid.Custom(func(t *rapid.T) Entry {
		return OperatorEntry(&Operator{
			Python:  path.Draw(t, "python"),
			Inputs:  MappingOf(ident.Draw(t, "input"), ident.Draw(t, "source")),
			Outputs: rapid.SliceOfN(ident, 0, 3).Draw(t, "outputs"),
		})
	})

	return rapid.Custom(func(t *rapid.T) *Dataflow {
		entries := rapid.SliceOfN(rapid.OneOf(node, operator), 0, 6).Draw(t, "entries")
		return &Dataflow{Nodes: entries}
	})
}

func TestMarshal_RoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		df := genDataflow().Draw(t, "dataflow")

		first, err := Marshal(df)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		parsed, err := Parse(first, "flow.yml")
		if err != nil {
			t.Fatalf("parse: %v\n%s", err, first)
		}
		if len(parsed.Nodes) != len(df.Nodes) {
			t.Fatalf("expected %d entries, got %d", len(df.Nodes), len(parsed.Nodes))
		}

		second, err := Marshal(parsed)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(first) != string(second) {
			t.Fatalf("round trip changed document:\n%s\n---\n%s", first, second)
		}
	})
}
