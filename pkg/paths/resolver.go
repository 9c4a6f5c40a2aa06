// Package paths resolves file references found in deployment descriptors.
//
// A relative reference is tried first against the directory of the document that
// contains it and then against the command root, the directory the tool was
// invoked from. The fallback is returned whether or not it exists; a missing file
// surfaces later, when something tries to read it.
//
// Canonical paths are absolute and cleaned. Symlinks are not resolved.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// Resolver resolves relative references against a local directory and a command root.
type Resolver struct {
	// Root is the canonical command root. All exported paths are relative to it.
	Root string
}

// NewResolver creates a Resolver rooted at root, which is made absolute.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve command root %s: %w", root, err)
	}
	return &Resolver{Root: filepath.Clean(abs)}, nil
}

// ForIO resolves a reference to a file that is about to be opened for reading.
func (r *Resolver) ForIO(raw, baseDir string) string {
	return r.resolve(raw, baseDir)
}

// FieldValue resolves a path-valued field of a node or operator record.
// An empty value stays empty.
func (r *Resolver) FieldValue(raw, baseDir string) string {
	if raw == "" {
		return ""
	}
	return r.resolve(raw, baseDir)
}

// Relative expresses an absolute path relative to the command root, using ".."
// segments when the path lies outside it. Relative and empty inputs are returned
// unchanged.
func (r *Resolver) Relative(abs string) string {
	if abs == "" || !filepath.IsAbs(abs) {
		return abs
	}
	rel, err := filepath.Rel(r.Root, abs)
	if err != nil {
		return abs
	}
	return rel
}

func (r *Resolver) resolve(raw, baseDir string) string {
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}

	local := canonical(filepath.Join(baseDir, raw))
	if _, err := os.Stat(local); err == nil {
		return local
	}

	return canonical(filepath.Join(r.Root, raw))
}

// canonical returns the cleaned absolute form of p. Symlinks are left in place.
func canonical(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}
