// Package transplant validates portability: it takes an artifact built in
// one environment, places it in a different minimal base image, installs
// only that image's declared compatibility packages, and re-runs the smoke
// test. A failure here is a deployment-compatibility defect, reported
// distinctly from build failures, and blocks promotion of that one
// (artifact, environment) pairing only.
package transplant

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/boostpack/boostpack/internal/builder"
	"github.com/boostpack/boostpack/internal/consumer"
	"github.com/boostpack/boostpack/internal/errdefs"
	"github.com/boostpack/boostpack/internal/logging"
	"github.com/boostpack/boostpack/internal/profile"
	"github.com/boostpack/boostpack/internal/toolchain"
)

// DefaultEngine is the container engine used to stand up target
// environments.
const DefaultEngine = "docker"

// mountPoint is where the artifact appears inside the target environment.
const mountPoint = "/transplant"

// Runner executes transplant checks through a container engine.
type Runner struct {
	runner *toolchain.Runner
	engine string
}

// New creates a transplant Runner. An empty engine means DefaultEngine.
func New(runner *toolchain.Runner, engine string) *Runner {
	if engine == "" {
		engine = DefaultEngine
	}

	return &Runner{runner: runner, engine: engine}
}

// CheckBinary copies the consumer binary at dir into the target environment
// and executes it there after installing the declared compatibility
// packages. No compiler or build tooling is present in the target.
func (r *Runner) CheckBinary(ctx context.Context, dir string, target *profile.Transplant) error {
	script := joinScript(
		installCommand(target.Image, target.Packages),
		mountPoint+"/"+consumer.BinaryName,
	)

	return r.runScript(ctx, dir, target, script)
}

// CheckArchive transplants the bare library artifact (archive plus headers)
// instead: the target environment gets a compiler, builds the smoke test
// against the transplanted archive, and runs it. This proves the artifact
// is consumable on the other libc family, not merely executable.
func (r *Runner) CheckArchive(ctx context.Context, dir string, prof *profile.Profile) error {
	target := prof.Transplant

	srcPath := filepath.Join(dir, consumer.SourceName)
	if err := os.WriteFile(srcPath, []byte(consumer.SmokeSource()), 0o644); err != nil {
		return errdefs.Transplant(err)
	}

	openmp := ""
	if prof.OpenMP {
		openmp = " -fopenmp"
	}

	compile := fmt.Sprintf(
		"g++ -O2%s -o /tmp/%s %s/%s -I %s/%s %s/lib/%s -pthread -lm",
		openmp,
		consumer.BinaryName,
		mountPoint, consumer.SourceName,
		mountPoint, builder.IncludeDir,
		mountPoint, builder.ArchiveName,
	)

	script := joinScript(
		installCommand(target.Image, target.ArchivePackages),
		compile,
		"/tmp/"+consumer.BinaryName,
	)

	return r.runScript(ctx, dir, target, script)
}

func (r *Runner) runScript(ctx context.Context, dir string, target *profile.Transplant, script string) error {
	log := logging.FromContext(ctx)
	log.Info().Str("image", target.Image).Strs("packages", target.Packages).Msg("transplanting artifact")

	out, err := r.runner.Run(ctx, toolchain.Invocation{
		Path: r.engine,
		Args: []string{
			"run", "--rm",
			"-v", dir + ":" + mountPoint + ":ro",
			target.Image,
			"sh", "-c", script,
		},
	})
	if err != nil {
		return errdefs.Transplant(errors.Wrapf(err,
			"artifact failed in %s: %s", target.Image, toolchain.FirstLine(out)))
	}

	log.Info().Str("image", target.Image).Msg("transplant check passed")

	return nil
}

// installCommand returns the package-install step for the target image, or
// an empty string when no compatibility packages are declared. The package
// manager is chosen by image family.
func installCommand(image string, packages []string) string {
	if len(packages) == 0 {
		return ""
	}

	pkgs := strings.Join(packages, " ")

	if strings.HasPrefix(image, "alpine") {
		return "apk add --no-cache " + pkgs
	}

	return "apt-get update -qq && apt-get install -y -qq " + pkgs
}

func joinScript(steps ...string) string {
	var parts []string
	for _, step := range steps {
		if step != "" {
			parts = append(parts, step)
		}
	}

	return strings.Join(parts, " && ")
}
