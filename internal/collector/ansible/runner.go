package ansible

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
)

// Output is what a finished command printed.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a command. A non-zero exit is reported through
// Output.ExitCode, not through the error.
type Runner interface {
	Run(ctx context.Context, env []string, name string, args ...string) (Output, error)
}

// ExecRunner runs commands on the local host.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, env []string, name string, args ...string) (Output, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	return out, err
}
