package verify

import (
	"debug/elf"
	"fmt"
)

// BinaryInfo describes a compiled consumer binary: its architecture, ELF
// type, and full dynamic-dependency list. An empty dependency list is a
// valid, desirable outcome for fully-static builds.
type BinaryInfo struct {
	Class       string
	Machine     string
	Type        string
	DynamicDeps []string
}

// Static reports whether the binary has no dynamic dependencies at all.
func (b *BinaryInfo) Static() bool {
	return len(b.DynamicDeps) == 0
}

// InspectBinary reads the ELF header and DT_NEEDED entries of the binary at
// path. A non-empty dependency list is never a failure here; only execution
// results are allowed to fail a consumer artifact.
func InspectBinary(path string) (*BinaryInfo, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("not a readable ELF binary: %w", err)
	}

	defer f.Close()

	// ImportedLibraries returns the DT_NEEDED list; for a fully static
	// binary there is no dynamic section and the list is empty.
	deps, err := f.ImportedLibraries()
	if err != nil {
		return nil, fmt.Errorf("read dynamic dependencies: %w", err)
	}

	return &BinaryInfo{
		Class:       f.Class.String(),
		Machine:     f.Machine.String(),
		Type:        f.Type.String(),
		DynamicDeps: deps,
	}, nil
}
