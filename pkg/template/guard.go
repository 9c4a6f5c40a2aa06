package template

import (
	"sort"

	"github.com/openfroyo/dynflow/pkg/engine"
)

// Guard fails with a template error listing every name in refs that allowed
// rejects. It runs before evaluation.
func Guard(source string, refs []string, allowed func(name string) bool) error {
	missing := Undeclared(refs, allowed)
	if len(missing) == 0 {
		return nil
	}
	return engine.NewUndeclaredNamesError(source, missing)
}

// Undeclared returns the names in refs that allowed rejects, sorted and free
// of duplicates.
func Undeclared(refs []string, allowed func(name string) bool) []string {
	var missing []string
	for _, name := range refs {
		if !allowed(name) {
			missing = append(missing, name)
		}
	}
	return sortedUnique(missing)
}

func sortedUnique(names []string) []string {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
