// Package builder implements the library build stage: it configures and
// compiles the fetched source into a position-independent static archive
// plus its public header tree, and publishes both into the arena.
package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/boostpack/boostpack/internal/arena"
	"github.com/boostpack/boostpack/internal/errdefs"
	"github.com/boostpack/boostpack/internal/logging"
	"github.com/boostpack/boostpack/internal/profile"
	"github.com/boostpack/boostpack/internal/source"
	"github.com/boostpack/boostpack/internal/toolchain"
)

const (
	// Stage is the arena stage name for library artifacts.
	Stage = "library"

	// ArchiveName is the static archive file the build must produce.
	ArchiveName = "lib_lightgbm.a"

	// IncludeDir is the public header tree inside the source checkout.
	IncludeDir = "include"
)

// Builder runs the configure and compile steps for one profile.
type Builder struct {
	runner *toolchain.Runner
	store  *arena.Arena
	jobs   int
}

// New creates a Builder. jobs caps compile parallelism (0 means detected
// core count).
func New(runner *toolchain.Runner, store *arena.Arena, jobs int) *Builder {
	return &Builder{runner: runner, store: store, jobs: jobs}
}

// ConfigureArgs returns the cmake arguments for a profile. Static output is
// always on, the command-line tool and language bindings are always off to
// keep the build surface minimal, and GPU stays off unconditionally.
func ConfigureArgs(prof *profile.Profile, srcDir, buildDir string) []string {
	args := []string{
		"-S", srcDir,
		"-B", buildDir,
		"-DCMAKE_BUILD_TYPE=Release",
		"-DCMAKE_POSITION_INDEPENDENT_CODE=ON",
		"-DBUILD_STATIC_LIB=ON",
		"-DBUILD_CLI=OFF",
		"-DUSE_SWIG=OFF",
		"-DUSE_GPU=OFF",
		"-DCMAKE_C_COMPILER=" + prof.CC,
		"-DCMAKE_CXX_COMPILER=" + prof.CXX,
	}

	if prof.OpenMP {
		args = append(args, "-DUSE_OPENMP=ON")
	} else {
		args = append(args, "-DUSE_OPENMP=OFF")
	}

	if prof.BLAS == "openblas" {
		args = append(args, "-DUSE_OPENBLAS=ON")
	}

	return args
}

// Build produces the library artifact for (rev, prof) from the checkout at
// srcDir and publishes it under the returned arena key.
func (b *Builder) Build(ctx context.Context, rev *source.Revision, prof *profile.Profile, srcDir string) (arena.Key, error) {
	log := logging.FromContext(ctx).With().Str("profile", prof.Name).Logger()
	key := arena.Key{Revision: rev.Commit, Profile: prof.Fingerprint(), Stage: Stage}

	// The minimum cmake check runs before anything else: a stale build
	// system is a configuration error, not a compile error.
	cmakeBanner, err := b.runner.CheckCMake(ctx)
	if err != nil {
		return key, err
	}

	log.Info().Str("cmake", cmakeBanner).Msg("configuring library build")

	buildDir := filepath.Join(srcDir, "build-"+prof.Name)

	out, err := b.runner.Run(ctx, toolchain.Invocation{
		Dir:  srcDir,
		Path: "cmake",
		Args: ConfigureArgs(prof, srcDir, buildDir),
	})
	if err != nil {
		return key, errdefs.Configuration(withHint(errors.Wrap(err, "configure"), out))
	}

	jobs := toolchain.Jobs(b.jobs)
	log.Info().Int("jobs", jobs).Msg("compiling static archive")

	out, err = b.runner.Run(ctx, toolchain.Invocation{
		Dir:  srcDir,
		Path: "cmake",
		Args: []string{"--build", buildDir, "--parallel", strconv.Itoa(jobs)},
	})
	if err != nil {
		return key, errdefs.Compilation(withHint(errors.Wrap(err, "compile"), out))
	}

	staging, files, err := b.stage(srcDir, buildDir)
	if err != nil {
		return key, errdefs.Compilation(err)
	}

	defer os.RemoveAll(staging)

	record, err := b.store.Publish(key, staging, files)
	if err != nil {
		return key, errdefs.Compilation(errors.Wrap(err, "publish library artifact"))
	}

	log.Info().Int("files", len(record.Files)).Int64("bytes", record.TotalSize).Msg("library artifact published")

	return key, nil
}

// stage lays the artifact out as lib/<archive> plus include/**, the shape
// every downstream stage consumes.
func (b *Builder) stage(srcDir, buildDir string) (string, []string, error) {
	archive := filepath.Join(buildDir, ArchiveName)
	if _, err := os.Stat(archive); err != nil {
		// Older build scripts drop the archive in the source root.
		archive = filepath.Join(srcDir, ArchiveName)
		if _, err := os.Stat(archive); err != nil {
			return "", nil, fmt.Errorf("build completed but %s was not produced", ArchiveName)
		}
	}

	staging, err := os.MkdirTemp("", "boostpack-stage-")
	if err != nil {
		return "", nil, err
	}

	archiveRel := filepath.ToSlash(filepath.Join("lib", ArchiveName))
	if err := arena.CopyArtifacts(filepath.Dir(archive), filepath.Join(staging, "lib"), []string{ArchiveName}); err != nil {
		os.RemoveAll(staging)
		return "", nil, err
	}

	headers, err := arena.EnumerateFiles(filepath.Join(srcDir, IncludeDir))
	if err != nil {
		os.RemoveAll(staging)
		return "", nil, fmt.Errorf("header tree missing: %w", err)
	}

	if err := arena.CopyArtifacts(filepath.Join(srcDir, IncludeDir), filepath.Join(staging, IncludeDir), headers); err != nil {
		os.RemoveAll(staging)
		return "", nil, err
	}

	files := []string{archiveRel}
	for _, h := range headers {
		files = append(files, filepath.ToSlash(filepath.Join(IncludeDir, h)))
	}

	return staging, files, nil
}

func withHint(err error, out string) error {
	if hint := errdefs.Hint(out); hint != "" {
		return errors.WithHint(err, hint)
	}

	return err
}
