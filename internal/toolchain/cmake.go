package toolchain

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/boostpack/boostpack/internal/errdefs"
)

// MinCMakeVersion is the minimum build-system version the wrapped library's
// configure step accepts. Base-image package repositories often ship older
// releases, so the environment must provision a compatible cmake explicitly;
// this probe turns a missing or stale install into a configuration error
// before any compilation starts.
const MinCMakeVersion = "3.28.0"

var cmakeVersionRe = regexp.MustCompile(`cmake version (\d+)\.(\d+)\.(\d+)`)

// CheckCMake runs `cmake --version` and verifies the minimum version. The
// returned string is the full version banner line for the build manifest.
func (r *Runner) CheckCMake(ctx context.Context) (string, error) {
	out, err := r.Run(ctx, Invocation{Path: "cmake", Args: []string{"--version"}})
	if err != nil {
		return "", errdefs.Configuration(fmt.Errorf("cmake not available: %w", err))
	}

	m := cmakeVersionRe.FindStringSubmatch(out)
	if m == nil {
		return "", errdefs.Configuration(fmt.Errorf("unrecognized cmake version output: %q", FirstLine(out)))
	}

	if !versionAtLeast(m[1:], MinCMakeVersion) {
		return "", errdefs.Configuration(fmt.Errorf(
			"cmake %s.%s.%s is older than required %s; provision a newer cmake explicitly",
			m[1], m[2], m[3], MinCMakeVersion))
	}

	return FirstLine(out), nil
}

func versionAtLeast(parts []string, min string) bool {
	minParts := strings.SplitN(min, ".", 3)
	for i := 0; i < 3; i++ {
		have, _ := strconv.Atoi(parts[i])
		want, _ := strconv.Atoi(minParts[i])

		if have != want {
			return have > want
		}
	}

	return true
}

// ToolVersions probes the version banners of the profile's compilers for the
// build manifest. Probe failures are reported as "unknown" rather than
// failing the build; the manifest is a record, not a gate.
func (r *Runner) ToolVersions(ctx context.Context, tools ...string) map[string]string {
	versions := make(map[string]string, len(tools))

	for _, tool := range tools {
		out, err := r.Run(ctx, Invocation{Path: tool, Args: []string{"--version"}})
		if err != nil {
			versions[tool] = "unknown"
			continue
		}

		versions[tool] = FirstLine(out)
	}

	return versions
}
