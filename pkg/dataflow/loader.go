package dataflow

import (
	"os"
	"path/filepath"

	"github.com/openfroyo/dynflow/pkg/engine"
	"github.com/openfroyo/dynflow/pkg/paths"
)

// Loader reads dataflow documents and normalizes their paths.
type Loader struct {
	Resolver *paths.Resolver
}

// NewLoader creates a loader resolving field paths with r.
func NewLoader(r *paths.Resolver) *Loader {
	return &Loader{Resolver: r}
}

// Load reads the dataflow at path and normalizes every path field against the
// directory containing it. The returned error carries path exactly as given.
func (l *Loader) Load(path string) (*Dataflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewIOError(path, err)
	}

	df, err := Parse(data, path)
	if err != nil {
		return nil, err
	}

	return Normalize(df, l.Resolver, filepath.Dir(path)), nil
}

// ParseRendered parses rendered template output and normalizes it against
// baseDir, the directory of the template it came from.
func (l *Loader) ParseRendered(text, source, baseDir string) (*Dataflow, error) {
	df, err := Parse([]byte(text), source)
	if err != nil {
		return nil, err
	}
	return Normalize(df, l.Resolver, baseDir), nil
}
