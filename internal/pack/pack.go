// Package pack assembles the distribution bundle: the static archive, the
// public header tree and the build manifest, nothing else. No compiler or
// build tool ships in the bundle.
//
// Every declared file must be present. The packaging this replaces used to
// copy an optional binary with a fallback that swallowed missing-file
// errors; that masks broken builds, so here a missing file always fails the
// stage.
package pack

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/boostpack/boostpack/internal/arena"
	"github.com/boostpack/boostpack/internal/manifest"
)

// Stage is the arena stage name for distribution bundles.
const Stage = "bundle"

// Packager assembles bundles from published library artifacts.
type Packager struct {
	store *arena.Arena
}

// New creates a Packager.
func New(store *arena.Arena) *Packager {
	return &Packager{store: store}
}

// Assemble builds the bundle for the library artifact under libKey and the
// given manifest, and publishes it under the returned key. The bundle's
// header tree is byte-for-byte the artifact's header tree, so identical
// inputs reproduce identical trees.
func (p *Packager) Assemble(libKey arena.Key, m *manifest.Manifest) (arena.Key, error) {
	bundleKey := arena.Key{Revision: libKey.Revision, Profile: libKey.Profile, Stage: Stage}

	record, err := p.store.Get(libKey)
	if err != nil {
		return bundleKey, err
	}

	if record == nil {
		return bundleKey, fmt.Errorf("no library artifact published for %s", libKey)
	}

	staging, err := os.MkdirTemp("", "boostpack-bundle-")
	if err != nil {
		return bundleKey, err
	}

	defer os.RemoveAll(staging)

	if err := p.store.Materialize(libKey, staging); err != nil {
		return bundleKey, err
	}

	if err := m.Write(staging); err != nil {
		return bundleKey, err
	}

	files := append([]string{}, record.Files...)
	files = append(files, manifest.FileName)

	// Hard check: every declared file must exist. Missing files are never
	// skipped silently.
	var errs *multierror.Error
	for _, file := range files {
		if _, err := os.Stat(filepath.Join(staging, file)); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("bundle file missing: %s", file))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return bundleKey, err
	}

	if _, err := p.store.Publish(bundleKey, staging, files); err != nil {
		return bundleKey, err
	}

	return bundleKey, nil
}

// Export copies a published bundle into destDir for downstream consumption.
func (p *Packager) Export(bundleKey arena.Key, destDir string) error {
	return p.store.Materialize(bundleKey, destDir)
}
