package consumer

import (
	"path/filepath"

	"github.com/boostpack/boostpack/internal/builder"
	"github.com/boostpack/boostpack/internal/profile"
)

// BinaryName is the compiled smoke-test executable.
const BinaryName = "testapp"

// FallbackStaticLibs is the static subset used when a fully-static link
// fails and the profile names no mixed-mode libraries of its own. The
// compiler runtime pieces go static so only base OS libraries stay dynamic;
// the OpenMP runtime joins them only when the profile builds with it.
func FallbackStaticLibs(prof *profile.Profile) []string {
	libs := []string{"stdc++"}
	if prof.OpenMP {
		libs = append(libs, "gomp")
	}

	return libs
}

// LinkArgs builds the full compile-and-link argument list for one strategy.
// libDir is the materialized library artifact (lib/<archive> + include/**),
// workDir holds the smoke-test source and receives the binary.
func LinkArgs(prof *profile.Profile, strategy profile.Strategy, staticLibs []string, libDir, workDir string) []string {
	args := []string{
		"-O2",
		"-o", filepath.Join(workDir, BinaryName),
		filepath.Join(workDir, SourceName),
		"-I", filepath.Join(libDir, builder.IncludeDir),
		filepath.Join(libDir, "lib", builder.ArchiveName),
		"-pthread",
	}

	if prof.OpenMP {
		args = append(args, "-fopenmp")
	}

	switch strategy {
	case profile.StrategyStatic:
		// Everything static, the base C/C++ runtime included.
		args = append(args, "-static", "-static-libgcc", "-static-libstdc++")

	case profile.StrategyStaticRuntime:
		// Only the compiler's own runtime support libraries go static;
		// thread, math and loader libraries stay dynamic.
		args = append(args, "-static-libgcc", "-static-libstdc++")

	case profile.StrategyMixed:
		// Force the named subset static, then flip the linker back to
		// dynamic mode for everything that follows.
		for _, lib := range staticLibs {
			args = append(args, "-Wl,-Bstatic", "-l"+lib)
		}

		args = append(args, "-Wl,-Bdynamic")
	}

	return append(args, "-lm")
}
