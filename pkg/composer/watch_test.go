package composer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openfroyo/dynflow/pkg/engine"
)

type buildOutcome struct {
	res *Result
	err error
}

func TestWatch_RebuildsOnChange(t *testing.T) {
	root := t.TempDir()
	deploy := filepath.Join(root, "deploy.yml")
	comp := filepath.Join(root, "components", "c.yml")
	writeFile(t, comp, "nodes:\n  - id: first\n")
	writeFile(t, deploy, "components:\n  - id: c\n    path: components/c.yml\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newComposer(t, root)
	outcomes := make(chan buildOutcome, 8)
	done := make(chan error, 1)
	go func() {
		done <- c.watch(ctx, deploy, 20*time.Millisecond, func(res *Result, err error) {
			outcomes <- buildOutcome{res, err}
		})
	}()

	next := func() buildOutcome {
		t.Helper()
		select {
		case o := <-outcomes:
			return o
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for build")
			return buildOutcome{}
		}
	}

	first := next()
	require.NoError(t, first.err)
	require.Equal(t, []string{"first"}, first.res.Dataflow.IDs())

	// A broken component is reported and watching continues.
	writeFile(t, comp, "nodes:\n  - id: {{ undefined }}\n")
	var broken buildOutcome
	for broken = next(); broken.err == nil; broken = next() {
	}
	require.Nil(t, broken.res)
	require.True(t, engine.IsTemplateError(broken.err))

	writeFile(t, comp, "nodes:\n  - id: second\n")
	var fixed buildOutcome
	for fixed = next(); fixed.err != nil || len(fixed.res.Dataflow.Nodes) == 0; fixed = next() {
	}
	require.Equal(t, []string{"second"}, fixed.res.Dataflow.IDs())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
