// Package profile defines toolchain profiles: the description of one build
// environment (libc family, compilers, optional backends) plus the linkage
// strategy its consumer binary is linked with. Profiles are declared in HCL
// files and validated before the pipeline starts.
package profile

import (
	"fmt"
	"sort"
	"strings"
)

// Strategy selects how the consumer binary resolves its dependencies.
type Strategy string

const (
	// StrategyStatic links everything, including the base C/C++ runtime.
	// The output has no dynamic dependencies at all.
	StrategyStatic Strategy = "static"

	// StrategyStaticRuntime links only the compiler's own runtime support
	// libraries statically; OS libraries stay dynamic.
	StrategyStaticRuntime Strategy = "static-runtime"

	// StrategyMixed forces a named subset of libraries static via explicit
	// -Wl,-Bstatic/-Bdynamic switches; everything else stays dynamic.
	StrategyMixed Strategy = "mixed"
)

// ParseStrategy validates a strategy token from a profile file.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyStatic, StrategyStaticRuntime, StrategyMixed:
		return Strategy(s), nil
	}

	return "", fmt.Errorf("unknown linkage strategy %q (want static, static-runtime or mixed)", s)
}

// Transplant names the environment an artifact is re-verified in after the
// build, together with the compatibility packages that environment needs.
type Transplant struct {
	Image    string   `hcl:"image"`
	Packages []string `hcl:"packages,optional"`

	// ArchivePackages, when non-empty, additionally transplants the bare
	// archive+headers and compiles the smoke test inside the target using
	// these packages (a compiler among them). Empty skips that check.
	ArchivePackages []string `hcl:"archive_packages,optional"`
}

// Profile describes one build environment and linkage strategy.
type Profile struct {
	Name string `hcl:"name,label"`

	// Libc family the base image provides: "musl" or "glibc".
	Libc string `hcl:"libc"`

	CC  string `hcl:"cc,optional"`
	CXX string `hcl:"cxx,optional"`

	// OpenMP enables the parallel runtime in the library build.
	OpenMP bool `hcl:"openmp,optional"`

	// GPU must stay false; the packaging target has no GPU toolchain.
	GPU bool `hcl:"gpu,optional"`

	// BLAS backend: "none" or "openblas".
	BLAS string `hcl:"blas,optional"`

	Linkage string `hcl:"linkage"`

	// StaticLibs lists the libraries forced static under the mixed
	// strategy. Invalid for any other strategy.
	StaticLibs []string `hcl:"static_libs,optional"`

	Transplant *Transplant `hcl:"transplant,block"`
}

// Strategy returns the parsed linkage strategy. Call Validate first.
func (p *Profile) Strategy() Strategy {
	return Strategy(p.Linkage)
}

// Validate normalizes defaults and enforces the profile invariants.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile has no name")
	}

	switch p.Libc {
	case "musl", "glibc":
	default:
		return fmt.Errorf("profile %s: unknown libc %q (want musl or glibc)", p.Name, p.Libc)
	}

	if p.CC == "" {
		p.CC = "gcc"
	}

	if p.CXX == "" {
		p.CXX = "g++"
	}

	if p.GPU {
		return fmt.Errorf("profile %s: gpu builds are not a supported packaging target", p.Name)
	}

	switch p.BLAS {
	case "":
		p.BLAS = "none"
	case "none", "openblas":
	default:
		return fmt.Errorf("profile %s: unknown blas backend %q (want none or openblas)", p.Name, p.BLAS)
	}

	strategy, err := ParseStrategy(p.Linkage)
	if err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}

	// Exactly one strategy per invocation: mixed-mode switches may not ride
	// along with the fully-static or static-runtime strategies.
	if strategy != StrategyMixed && len(p.StaticLibs) > 0 {
		return fmt.Errorf("profile %s: static_libs is only valid with the mixed strategy", p.Name)
	}

	if strategy == StrategyMixed && len(p.StaticLibs) == 0 {
		return fmt.Errorf("profile %s: mixed strategy requires at least one entry in static_libs", p.Name)
	}

	return nil
}

// Fingerprint returns a canonical single-line rendering of every field that
// affects build output. It feeds the arena key, so identical profiles map to
// identical artifact namespaces.
func (p *Profile) Fingerprint() string {
	libs := make([]string, len(p.StaticLibs))
	copy(libs, p.StaticLibs)
	sort.Strings(libs)

	return strings.Join([]string{
		p.Name,
		p.Libc,
		p.CC,
		p.CXX,
		fmt.Sprintf("openmp=%t", p.OpenMP),
		"blas=" + p.BLAS,
		"linkage=" + p.Linkage,
		"static_libs=" + strings.Join(libs, ","),
	}, "|")
}
