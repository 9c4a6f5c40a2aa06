package template

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeclaredVars reads the top-level vars mapping of the raw document at path,
// before any rendering. An unreadable file, invalid YAML, a document that is not
// a mapping or a vars value that is not a mapping all yield an empty mapping;
// the real validation happens once the rendered document is parsed.
func DeclaredVars(path string) map[string]interface{} {
	out := make(map[string]interface{})

	data, err := os.ReadFile(path)
	if err != nil {
		return out
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return out
	}

	vars, ok := doc["vars"].(map[string]interface{})
	if !ok {
		return out
	}
	for k, v := range vars {
		out[k] = v
	}
	return out
}

// EnvFromEnviron parses KEY=VALUE pairs as returned by os.Environ.
func EnvFromEnviron(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}
