package verify

import (
	"strings"
)

// EntryPointPrefix is the naming prefix of the wrapped library's public
// callable functions. Its presence among exported symbols is the coarse
// build-correctness signal the whole pipeline protects.
const EntryPointPrefix = "LGBM_"

// SymbolReport summarizes the exported symbols of a static archive.
type SymbolReport struct {
	// EntryPoints is the number of exported symbols carrying the entry
	// point prefix. Zero means a broken or mis-configured build.
	EntryPoints int

	// OpenMP reports whether parallel-runtime symbols are present.
	// Advisory: profiles without openmp legitimately omit them.
	OpenMP bool

	// BLAS reports whether linear-algebra backend symbols are present.
	// Advisory for the same reason.
	BLAS bool
}

// ParseSymbols scans `nm` output for the symbol classes the pipeline cares
// about. It understands the default bsd-style format: optional address,
// type letter, symbol name.
func ParseSymbols(nmOut string) SymbolReport {
	var report SymbolReport

	for _, line := range strings.Split(nmOut, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		name := fields[len(fields)-1]

		switch {
		case strings.HasPrefix(name, EntryPointPrefix):
			report.EntryPoints++
		case strings.HasPrefix(name, "omp_"), strings.HasPrefix(name, "GOMP_"), strings.HasPrefix(name, "__kmpc_"):
			report.OpenMP = true
		case strings.HasPrefix(name, "dgemm_"), strings.HasPrefix(name, "sgemm_"), strings.HasPrefix(name, "cblas_"):
			report.BLAS = true
		}
	}

	return report
}
