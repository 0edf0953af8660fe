package util

import (
	"context"
	"os"
	"os/exec"
)

const fallbackShell = "/bin/sh"

// GetShell returns the user's shell from $SHELL, falling back to /bin/sh.
func GetShell() string {
	shell, ok := os.LookupEnv("SHELL")
	if !ok || shell == "" {
		return fallbackShell
	}

	return shell
}

// ShellCommand builds a command that runs line through the user's shell, so targets may use
// quoting, pipes and environment assignments.
func ShellCommand(ctx context.Context, line string) *exec.Cmd {
	return exec.CommandContext(ctx, GetShell(), "-c", line)
}
