package keychain

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// runRotationCommand executes a rotation script and captures its stdout.
// The script must print the new password to stdout and nothing else.
func runRotationCommand(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("exit code %d: %s", exitErr.ExitCode(), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	value := strings.TrimRight(string(output), "\r\n")
	if value == "" {
		return "", errors.New("command printed no password")
	}
	return value, nil
}
