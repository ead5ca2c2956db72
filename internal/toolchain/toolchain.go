// Package toolchain shells out to the external build tools the pipeline
// drives (cmake, make, compilers, nm). Every invocation goes through a
// Runner so tests can substitute a fake command.
package toolchain

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Commander is the subset of *exec.Cmd the Runner needs. It exists so tests
// can fake tool invocations.
type Commander interface {
	CombinedOutput() ([]byte, error)
}

// Invocation describes one external tool call.
type Invocation struct {
	Dir  string
	Env  []string // appended to the ambient environment
	Path string
	Args []string
}

// Runner executes tool invocations and captures their combined output.
type Runner struct {
	execCommand func(ctx context.Context, inv Invocation) Commander
}

// NewRunner creates a Runner backed by os/exec.
func NewRunner() *Runner {
	return &Runner{
		execCommand: func(ctx context.Context, inv Invocation) Commander {
			cmd := exec.CommandContext(ctx, inv.Path, inv.Args...)
			cmd.Dir = inv.Dir
			if len(inv.Env) > 0 {
				cmd.Env = append(os.Environ(), inv.Env...)
			}

			return cmd
		},
	}
}

// NewRunnerWithExec creates a Runner with a custom command factory. Tests in
// this and other packages use it to fake tool invocations.
func NewRunnerWithExec(execCommand func(ctx context.Context, inv Invocation) Commander) *Runner {
	return &Runner{execCommand: execCommand}
}

// Run executes inv and returns its combined output. On a non-zero exit the
// output is still returned so callers can surface tool diagnostics.
func (r *Runner) Run(ctx context.Context, inv Invocation) (string, error) {
	out, err := r.execCommand(ctx, inv).CombinedOutput()
	output := string(out)

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return output, fmt.Errorf("%s exited with code %d", inv.Path, exitErr.ExitCode())
		}

		return output, fmt.Errorf("run %s: %w", inv.Path, err)
	}

	return output, nil
}

// FirstLine returns the first line of a tool's output, used for version
// banners in the build manifest.
func FirstLine(out string) string {
	if i := strings.IndexByte(out, '\n'); i >= 0 {
		return strings.TrimSpace(out[:i])
	}

	return strings.TrimSpace(out)
}

// Jobs returns the compile parallelism: the detected core count, optionally
// capped by limit (0 means uncapped).
func Jobs(limit int) int {
	jobs := runtime.NumCPU()
	if limit > 0 && limit < jobs {
		jobs = limit
	}

	if jobs < 1 {
		jobs = 1
	}

	return jobs
}
