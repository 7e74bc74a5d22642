package utils

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"os/exec"
)

// DefaultCommandTimeout bounds external tool invocations that do not pick
// their own budget. Image conversion and TTS have been observed to hang
// indefinitely without one.
const DefaultCommandTimeout = 10 * time.Minute

// RunCommand executes a shell command with a bounded timeout and returns its
// combined output. A timeout of zero means DefaultCommandTimeout.
func RunCommand(ctx context.Context, command string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	Logf("run: %s", command)

	cmd := exec.CommandContext(ctx, "bash", "-lc", command)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return output.String(), fmt.Errorf("command timed out after %s: %w", timeout, err)
		}
		if Verbose && output.Len() > 0 {
			Logf("output (error):\n%s", strings.TrimRight(output.String(), "\n"))
		}
		return output.String(), fmt.Errorf("command failed: %w", err)
	}
	if Verbose && output.Len() > 0 {
		Logf("output:\n%s", strings.TrimRight(output.String(), "\n"))
	}
	return output.String(), nil
}

// CommandExists reports whether a binary is resolvable on PATH. Used for the
// fatal preflight check on required external tools.
func CommandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
