package errdefs

import "strings"

// linkerHints maps well-known linker diagnostics to short explanations shown
// alongside a failed consumer build. Matching is substring-based on the
// captured tool output; the exit code itself carries no stable meaning.
var linkerHints = map[string]string{
	"cannot find -lgomp":            "OpenMP runtime not installed, or profile requested openmp without the toolchain providing libgomp",
	"cannot find -lopenblas":        "OpenBLAS development package missing for the selected blas backend",
	"undefined reference to `omp_":  "archive was built with OpenMP but the consumer link line omits the OpenMP runtime",
	"undefined reference to `dgemm": "archive expects a BLAS backend that the consumer link line does not provide",
	"attempted static link of dynamic object": "fully-static strategy unsupported here: a required library exists only as a shared object",
	"cannot find -lc":                  "static libc not installed; fully-static linking needs the libc static archive package",
	"CMake 3.28 or higher is required": "system cmake predates the library's minimum; provision cmake explicitly instead of relying on the base image",
}

// Hint returns an explanation for a captured tool output, or an empty string
// when nothing matches.
func Hint(output string) string {
	for needle, hint := range linkerHints {
		if strings.Contains(output, needle) {
			return hint
		}
	}

	return ""
}
