package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// fileSchema is the top-level structure of a profile file. A file may carry
// any number of profile blocks.
type fileSchema struct {
	Profiles []*Profile `hcl:"profile,block"`
}

// LoadFile decodes and validates every profile in one HCL file.
func LoadFile(path string) ([]*Profile, error) {
	var f fileSchema
	if err := hclsimple.DecodeFile(path, nil, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	for _, p := range f.Profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	return f.Profiles, nil
}

// LoadDir loads every *.hcl file in dir, sorted by file name so runs are
// deterministic, and rejects duplicate profile names across files.
func LoadDir(dir string) ([]*Profile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read profile directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".hcl" {
			continue
		}

		names = append(names, entry.Name())
	}

	sort.Strings(names)

	seen := make(map[string]string)

	var profiles []*Profile
	for _, name := range names {
		loaded, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		for _, p := range loaded {
			if prev, ok := seen[p.Name]; ok {
				return nil, fmt.Errorf("profile %s defined in both %s and %s", p.Name, prev, name)
			}

			seen[p.Name] = name
		}

		profiles = append(profiles, loaded...)
	}

	if len(profiles) == 0 {
		return nil, fmt.Errorf("no profiles found in %s", dir)
	}

	return profiles, nil
}
