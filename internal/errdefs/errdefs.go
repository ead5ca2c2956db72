// Package errdefs defines the pipeline error taxonomy.
//
// Every failure in the pipeline belongs to exactly one class. Classes are
// modeled as reference errors combined via errors.Mark, so call sites test
// with errors.Is and never inspect message text or tool exit codes.
package errdefs

import (
	"github.com/cockroachdb/errors"
)

// Reference errors for each failure class.
var (
	// ErrFetch: source revision unresolvable or clone failed. Fatal, no
	// partial artifact is produced.
	ErrFetch = errors.New("fetch error")

	// ErrConfiguration: build-system prerequisite unmet or invalid option
	// combination. Caught before compilation starts.
	ErrConfiguration = errors.New("configuration error")

	// ErrCompilation: the library or consumer failed to compile.
	ErrCompilation = errors.New("compilation error")

	// ErrSymbolVerification: required entry-point symbols missing from a
	// built archive.
	ErrSymbolVerification = errors.New("symbol verification error")

	// ErrLinkage: the requested linkage strategy is unsupported in the
	// current environment. Recoverable via the documented fallback.
	ErrLinkage = errors.New("linkage error")

	// ErrSmokeTest: the consumer binary crashed or exited non-zero.
	ErrSmokeTest = errors.New("smoke test error")

	// ErrTransplant: the artifact runs where it was built but not in the
	// target deployment environment. A portability defect, not a build
	// failure: it blocks promotion of the (artifact, environment) pairing
	// without invalidating the original build.
	ErrTransplant = errors.New("transplant error")
)

// Fetch marks err as a fetch error.
func Fetch(err error) error { return errors.Mark(err, ErrFetch) }

// Configuration marks err as a configuration error.
func Configuration(err error) error { return errors.Mark(err, ErrConfiguration) }

// Compilation marks err as a compilation error.
func Compilation(err error) error { return errors.Mark(err, ErrCompilation) }

// SymbolVerification marks err as a symbol verification error.
func SymbolVerification(err error) error { return errors.Mark(err, ErrSymbolVerification) }

// Linkage marks err as a linkage error.
func Linkage(err error) error { return errors.Mark(err, ErrLinkage) }

// SmokeTest marks err as a smoke test error.
func SmokeTest(err error) error { return errors.Mark(err, ErrSmokeTest) }

// Transplant marks err as a transplant error.
func Transplant(err error) error { return errors.Mark(err, ErrTransplant) }

// Recoverable reports whether err may be recovered by a documented fallback
// rather than aborting the pipeline. Only linkage errors qualify: the
// consumer builder retries with the mixed strategy before giving up.
func Recoverable(err error) bool {
	return errors.Is(err, ErrLinkage)
}

// Class returns the taxonomy label for err, or "unclassified" when the error
// carries no mark. Used for log fields and the run report.
func Class(err error) string {
	switch {
	case errors.Is(err, ErrFetch):
		return "fetch"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrCompilation):
		return "compilation"
	case errors.Is(err, ErrSymbolVerification):
		return "symbol-verification"
	case errors.Is(err, ErrLinkage):
		return "linkage"
	case errors.Is(err, ErrSmokeTest):
		return "smoke-test"
	case errors.Is(err, ErrTransplant):
		return "transplant"
	default:
		return "unclassified"
	}
}
