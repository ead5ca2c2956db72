// Package verify inspects built artifacts: exported symbols of the static
// archive, and file type plus dynamic dependencies of consumer binaries.
package verify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/boostpack/boostpack/internal/arena"
	"github.com/boostpack/boostpack/internal/errdefs"
	"github.com/boostpack/boostpack/internal/logging"
	"github.com/boostpack/boostpack/internal/toolchain"
)

// LibraryReport is the structural summary of a library artifact. The
// manifest stage renders it into the build record.
type LibraryReport struct {
	ArchivePath string
	ArchiveSize int64
	Symbols     SymbolReport
	Headers     []string
	HeaderCount int
}

// Verifier checks library artifacts laid out as lib/<archive> + include/**.
type Verifier struct {
	runner *toolchain.Runner
}

// New creates a Verifier.
func New(runner *toolchain.Runner) *Verifier {
	return &Verifier{runner: runner}
}

// VerifyLibrary asserts the structural properties of the artifact at dir.
// Missing archive, missing headers, or an archive without entry-point
// exports are fatal. Absent optional-feature symbols are reported in the
// returned LibraryReport but never fail the check.
func (v *Verifier) VerifyLibrary(ctx context.Context, dir, archiveName string) (*LibraryReport, error) {
	log := logging.FromContext(ctx)

	var errs *multierror.Error

	archivePath := filepath.Join(dir, "lib", archiveName)
	info, err := os.Stat(archivePath)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("archive missing: %w", err))
	}

	includeDir := filepath.Join(dir, "include")
	headers, err := headerList(includeDir)
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	if len(headers) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("header tree under %s is empty", includeDir))
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, errdefs.SymbolVerification(err)
	}

	nmOut, err := v.runner.Run(ctx, toolchain.Invocation{
		Path: "nm",
		Args: []string{"-g", "--defined-only", archivePath},
	})
	if err != nil {
		return nil, errdefs.SymbolVerification(fmt.Errorf("nm failed: %w", err))
	}

	symbols := ParseSymbols(nmOut)
	if symbols.EntryPoints == 0 {
		return nil, errdefs.SymbolVerification(fmt.Errorf(
			"archive exports no %s* symbols; the build is broken or mis-configured", EntryPointPrefix))
	}

	// Optional-feature symbols are advisory only.
	log.Info().
		Int("entry_points", symbols.EntryPoints).
		Bool("openmp_symbols", symbols.OpenMP).
		Bool("blas_symbols", symbols.BLAS).
		Msg("archive symbol check passed")

	if !symbols.OpenMP {
		log.Warn().Msg("no parallel-runtime symbols in archive (expected for openmp=false profiles)")
	}

	return &LibraryReport{
		ArchivePath: archivePath,
		ArchiveSize: info.Size(),
		Symbols:     symbols,
		Headers:     headers,
		HeaderCount: len(headers),
	}, nil
}

// headerList returns the sorted header file names under includeDir,
// relative to it. This list is the portability contract downstream
// consumers rely on.
func headerList(includeDir string) ([]string, error) {
	if _, err := os.Stat(includeDir); err != nil {
		return nil, fmt.Errorf("include tree missing: %w", err)
	}

	// EnumerateFiles sorts, which keeps the manifest deterministic.
	return arena.EnumerateFiles(includeDir)
}
