// Package security wraps the macOS security(1) command-line tool.
//
// The package builds argument vectors for keychain and generic-password
// operations, runs the tool once per request and classifies failures into a
// single *Error type carrying the tool's diagnostic text. It holds no state
// between calls; the keychain files are owned by the operating system.
package security

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
)

// DefaultPath is where macOS installs the security tool.
const DefaultPath = "/usr/bin/security"

// Request is one invocation of the tool. Args[0] is the sub-command.
type Request struct {
	Args  []string
	Stdin string
}

// Op returns the sub-command name.
func (r Request) Op() string {
	if len(r.Args) == 0 {
		return ""
	}
	return r.Args[0]
}

// Redacted returns the arguments with password values masked.
func (r Request) Redacted() []string {
	out := make([]string, len(r.Args))
	copy(out, r.Args)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == "-p" || out[i] == "-w" {
			out[i+1] = "****"
			i++
		}
	}
	return out
}

// Output holds both streams of a finished invocation. Some sub-commands,
// show-keychain-info among them, report on stderr.
type Output struct {
	Stdout []byte
	Stderr []byte
}

// Text returns stdout followed by stderr.
func (o Output) Text() string {
	return string(o.Stdout) + string(o.Stderr)
}

// Runner executes a single request against the tool.
type Runner interface {
	Run(ctx context.Context, req Request) (Output, error)
}

// ExecRunner runs the real binary.
type ExecRunner struct {
	path   string
	logger *slog.Logger
}

// Compile-time check to ensure ExecRunner implements Runner
var _ Runner = (*ExecRunner)(nil)

// NewExecRunner returns a runner for the binary at path, or DefaultPath if empty.
func NewExecRunner(path string) *ExecRunner {
	if path == "" {
		path = DefaultPath
	}
	return &ExecRunner{
		path:   path,
		logger: slog.With("component", "security"),
	}
}

// Path returns the binary being executed.
func (r *ExecRunner) Path() string {
	return r.path
}

func (r *ExecRunner) Run(ctx context.Context, req Request) (Output, error) {
	op := req.Op()
	if op == "" {
		return Output{}, InvalidArgument("", "empty request")
	}

	cmd := exec.CommandContext(ctx, r.path, req.Args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if req.Stdin != "" {
		cmd.Stdin = strings.NewReader(req.Stdin)
	}

	r.logger.Debug("running security", "args", req.Redacted())

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return out, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		diag := stderr.String()
		if strings.TrimSpace(diag) == "" {
			diag = stdout.String()
		}
		serr := Classify(op, exitErr.ExitCode(), diag)
		r.logger.Debug("security failed", "op", op, "exit_code", serr.ExitCode, "kind", serr.Kind.String())
		return out, serr
	}

	return out, &Error{
		Op:       op,
		Kind:     KindToolUnavailable,
		ExitCode: -1,
		Message:  err.Error(),
	}
}
