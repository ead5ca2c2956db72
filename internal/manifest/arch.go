package manifest

import "runtime"

// hostArch names the architecture the archive was compiled for. The build
// always targets the host it runs on; cross builds happen by running the
// pipeline inside the target base image.
func hostArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	default:
		return runtime.GOARCH
	}
}
