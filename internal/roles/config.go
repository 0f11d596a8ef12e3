package roles

import (
	"os"

	"gopkg.in/yaml.v3"
)

// overrideEntry is one role's tunable fields in the roster config file,
// mirroring the teacher's YAML-driven specialist definitions
// (internal/config.SpecialistConfig).
type overrideEntry struct {
	Delta *float64 `yaml:"delta,omitempty"`
}

// rosterFile is the on-disk shape of a roster override file: a flat map of
// role name to its tunable fields. Prompt templates stay Go code — only the
// numeric support-delta rules are safe to retune without a release.
type rosterFile struct {
	Roles map[string]overrideEntry `yaml:"roles"`
}

// LoadOverrides reads a roster override file and applies any role.Delta
// overrides to a copy of Registry, leaving the built-in registry untouched.
// A missing file is not an error: the built-in roster is the default.
func LoadOverrides(path string) (map[string]Role, error) {
	out := make(map[string]Role, len(Registry))
	for k, v := range Registry {
		out[k] = v
	}
	if path == "" {
		return out, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	for name, override := range file.Roles {
		role, ok := out[name]
		if !ok || override.Delta == nil {
			continue
		}
		fixed := *override.Delta
		role.Delta = func(Output) float64 { return fixed }
		out[name] = role
	}
	return out, nil
}
