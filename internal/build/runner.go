package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/cockroachdb/errors"
)

// ToolError reports a non-zero exit status from an external tool.
type ToolError struct {
	Tool   string
	Status int
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s failed with status %d", e.Tool, e.Status)
}

// NewToolError wraps a non-zero exit status with a stack trace.
func NewToolError(tool string, status int) error {
	return errors.WithStack(&ToolError{Tool: tool, Status: status})
}

// Runner executes external tools.
//
// Run executes argv and returns the process exit status. The returned
// error is non-nil only when the process could not be started at all;
// a process that ran and exited non-zero yields (status, nil).
type Runner interface {
	Run(ctx context.Context, argv []string) (int, error)
}

// ExecRunner runs tools via os/exec, inheriting stdout and stderr.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, argv []string) (int, error) {
	if len(argv) == 0 {
		return -1, errors.New("empty argument vector")
	}
	slog.Debug("running external tool", "argv", argv)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) // #nosec G204 - argv is constructed by this program, not user input
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, errors.Wrap(err, argv[0])
}

// Run executes argv through r and converts a non-zero exit status into a
// ToolError.
func Run(ctx context.Context, r Runner, argv []string) error {
	status, err := r.Run(ctx, argv)
	if err != nil {
		return err
	}
	if status != 0 {
		return NewToolError(argv[0], status)
	}
	return nil
}

// Fetch downloads url to dest with wget through r.
func Fetch(ctx context.Context, r Runner, url, dest string) error {
	return Run(ctx, r, []string{"wget", url, "-O", dest})
}
