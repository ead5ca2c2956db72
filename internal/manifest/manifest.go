// Package manifest generates the plain-text build record shipped alongside
// the packaged archive. A manifest is generated once per library build and
// never mutated; rerunning the pipeline regenerates it wholesale.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/boostpack/boostpack/internal/profile"
	"github.com/boostpack/boostpack/internal/source"
	"github.com/boostpack/boostpack/internal/verify"
)

// FileName is the manifest file name inside the distribution bundle.
const FileName = "BUILD_INFO.txt"

// Manifest is the build record for one library artifact.
type Manifest struct {
	BuildDate    time.Time
	Revision     source.Revision
	Architecture string
	Toolchain    map[string]string
	ArchiveSize  int64
	OpenMP       bool
	BLAS         string
	Linkage      string
	Headers      []string
}

// Generate assembles a manifest from the verifier's report. The header list
// comes from the report already sorted; everything else is copied so the
// manifest stays stable even if its inputs are reused.
func Generate(rev *source.Revision, prof *profile.Profile, report *verify.LibraryReport, toolVersions map[string]string) *Manifest {
	headers := make([]string, len(report.Headers))
	copy(headers, report.Headers)

	tools := make(map[string]string, len(toolVersions))
	for k, v := range toolVersions {
		tools[k] = v
	}

	return &Manifest{
		BuildDate:    time.Now().UTC(),
		Revision:     *rev,
		Architecture: prof.Libc + "/" + hostArch(),
		Toolchain:    tools,
		ArchiveSize:  report.ArchiveSize,
		OpenMP:       report.Symbols.OpenMP,
		BLAS:         prof.BLAS,
		Linkage:      prof.Linkage,
		Headers:      headers,
	}
}

// Render produces the manifest text. All collections print in sorted order
// so identical inputs yield identical bodies (modulo the build date line).
func (m *Manifest) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "build date: %s\n", m.BuildDate.Format(time.RFC3339))
	fmt.Fprintf(&b, "revision: %s\n", m.Revision.String())
	fmt.Fprintf(&b, "architecture: %s\n", m.Architecture)

	tools := make([]string, 0, len(m.Toolchain))
	for tool := range m.Toolchain {
		tools = append(tools, tool)
	}

	sort.Strings(tools)

	for _, tool := range tools {
		fmt.Fprintf(&b, "toolchain %s: %s\n", tool, m.Toolchain[tool])
	}

	fmt.Fprintf(&b, "archive size: %d bytes\n", m.ArchiveSize)
	fmt.Fprintf(&b, "openmp: %t\n", m.OpenMP)
	fmt.Fprintf(&b, "blas: %s\n", m.BLAS)
	fmt.Fprintf(&b, "linkage: %s\n", m.Linkage)
	fmt.Fprintf(&b, "headers (%d):\n", len(m.Headers))

	for _, h := range m.Headers {
		fmt.Fprintf(&b, "  %s\n", h)
	}

	return b.String()
}

// Write renders the manifest into dir/FileName.
func (m *Manifest) Write(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	return os.WriteFile(filepath.Join(dir, FileName), []byte(m.Render()), 0o644)
}
