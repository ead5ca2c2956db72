// Package consumer implements the consumer build stage: it compiles the
// embedded smoke-test program against the library artifact under the
// profile's linkage strategy, runs it immediately, and publishes the binary
// together with its recorded dynamic-dependency list.
//
// The fully-static strategy has a documented fallback: on a base libc where
// static linking of the runtime is unsupported, the build retries with the
// mixed strategy instead of aborting the pipeline. The fallback is a
// first-class outcome, tagged on the result, never inferred from exit codes.
package consumer

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/boostpack/boostpack/internal/arena"
	"github.com/boostpack/boostpack/internal/errdefs"
	"github.com/boostpack/boostpack/internal/logging"
	"github.com/boostpack/boostpack/internal/profile"
	"github.com/boostpack/boostpack/internal/source"
	"github.com/boostpack/boostpack/internal/toolchain"
	"github.com/boostpack/boostpack/internal/verify"
)

// Stage is the arena stage name for consumer binaries.
const Stage = "consumer"

// SourceName is the smoke-test source file written into the work directory.
const SourceName = "smoketest.cpp"

// DepsFileName records the binary's dynamic-dependency list in the artifact.
const DepsFileName = "dynamic-deps.txt"

// The smoke-test program lives in a subdirectory so the go tool does not
// treat it as a cgo source of this package.
//
//go:embed embedsrc/smoketest.cpp
var smokeTestSource string

// SmokeSource returns the embedded smoke-test program. The transplant stage
// writes it next to a bare library artifact so the target environment can
// compile it there.
func SmokeSource() string {
	return smokeTestSource
}

// Outcome tags the result of a consumer build: which strategy actually
// linked the binary and whether that was a fallback from the requested one.
type Outcome struct {
	Requested profile.Strategy
	Effective profile.Strategy
	FellBack  bool
	Binary    *verify.BinaryInfo
}

// Builder compiles and smoke-tests consumer binaries.
type Builder struct {
	runner  *toolchain.Runner
	store   *arena.Arena
	inspect func(string) (*verify.BinaryInfo, error)
}

// Option configures a Builder.
type Option func(*Builder)

// WithInspector replaces the ELF inspector. Tests use it to avoid needing a
// real toolchain.
func WithInspector(inspect func(string) (*verify.BinaryInfo, error)) Option {
	return func(b *Builder) {
		b.inspect = inspect
	}
}

// New creates a consumer Builder.
func New(runner *toolchain.Runner, store *arena.Arena, opts ...Option) *Builder {
	b := &Builder{
		runner:  runner,
		store:   store,
		inspect: verify.InspectBinary,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Build links the smoke test against the library artifact at libDir, runs
// it, and publishes the binary. Linkage failures under the fully-static
// strategy fall back to mixed; every other failure is fatal.
func (b *Builder) Build(ctx context.Context, rev *source.Revision, prof *profile.Profile, libDir string) (*Outcome, arena.Key, error) {
	log := logging.FromContext(ctx).With().Str("profile", prof.Name).Logger()
	key := arena.Key{Revision: rev.Commit, Profile: prof.Fingerprint(), Stage: Stage}

	workDir, err := os.MkdirTemp("", "boostpack-consumer-")
	if err != nil {
		return nil, key, errdefs.Compilation(err)
	}

	defer os.RemoveAll(workDir)

	if err := os.WriteFile(filepath.Join(workDir, SourceName), []byte(smokeTestSource), 0o644); err != nil {
		return nil, key, errdefs.Compilation(err)
	}

	requested := prof.Strategy()

	outcome, err := b.link(ctx, prof, requested, prof.StaticLibs, libDir, workDir)
	if err != nil {
		if requested != profile.StrategyStatic || !errdefs.Recoverable(err) {
			return nil, key, err
		}

		// Documented fallback branch: retry as mixed before giving up.
		fallbackLibs := prof.StaticLibs
		if len(fallbackLibs) == 0 {
			fallbackLibs = FallbackStaticLibs(prof)
		}

		log.Warn().Err(err).Msg("fully-static link unsupported here, retrying with mixed strategy")

		outcome, err = b.link(ctx, prof, profile.StrategyMixed, fallbackLibs, libDir, workDir)
		if err != nil {
			return nil, key, errors.Wrap(err, "fallback also failed")
		}

		outcome.FellBack = true
	}

	outcome.Requested = requested

	binPath := filepath.Join(workDir, BinaryName)

	info, err := b.inspect(binPath)
	if err != nil {
		return nil, key, errdefs.Linkage(errors.Wrap(err, "inspect consumer binary"))
	}

	outcome.Binary = info

	if outcome.Effective == profile.StrategyStatic && !info.Static() {
		log.Warn().Strs("deps", info.DynamicDeps).Msg("fully-static link left dynamic dependencies behind")
	}

	// Smoke test runs immediately; a crash or non-zero exit keeps the
	// artifact out of the arena entirely.
	smokeOut, err := b.runner.Run(ctx, toolchain.Invocation{Dir: workDir, Path: binPath})
	if err != nil {
		return nil, key, errdefs.SmokeTest(errors.Wrapf(err, "smoke test failed: %s", toolchain.FirstLine(smokeOut)))
	}

	log.Info().
		Str("strategy", string(outcome.Effective)).
		Bool("fell_back", outcome.FellBack).
		Int("dynamic_deps", len(info.DynamicDeps)).
		Msg("consumer binary built and smoke tested")

	if err := writeDepsFile(workDir, info); err != nil {
		return nil, key, err
	}

	if _, err := b.store.Publish(key, workDir, []string{BinaryName, DepsFileName}); err != nil {
		return nil, key, errors.Wrap(err, "publish consumer artifact")
	}

	return outcome, key, nil
}

// link runs one compile-and-link attempt under a single strategy.
func (b *Builder) link(ctx context.Context, prof *profile.Profile, strategy profile.Strategy, staticLibs []string, libDir, workDir string) (*Outcome, error) {
	args := LinkArgs(prof, strategy, staticLibs, libDir, workDir)

	out, err := b.runner.Run(ctx, toolchain.Invocation{Dir: workDir, Path: prof.CXX, Args: args})
	if err != nil {
		err = errors.Wrapf(err, "link (%s)", strategy)
		if hint := errdefs.Hint(out); hint != "" {
			err = errors.WithHint(err, hint)
		}

		return nil, errdefs.Linkage(err)
	}

	return &Outcome{Effective: strategy}, nil
}

// writeDepsFile records the binary's type, architecture and DT_NEEDED list
// alongside it. An empty list still produces the header lines, so a
// fully-static artifact is distinguishable from an uninspected one.
func writeDepsFile(dir string, info *verify.BinaryInfo) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "type: %s\n", info.Type)
	fmt.Fprintf(&sb, "machine: %s\n", info.Machine)
	fmt.Fprintf(&sb, "class: %s\n", info.Class)

	for _, dep := range info.DynamicDeps {
		fmt.Fprintf(&sb, "needs: %s\n", dep)
	}

	return os.WriteFile(filepath.Join(dir, DepsFileName), []byte(sb.String()), 0o644)
}
