// Package runner turns configured shell commands into protect.Executor values.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/AlexKimmel/tamperguard/internal/action"
	"github.com/AlexKimmel/tamperguard/internal/protect"
)

var ErrNotConfigured = errors.New("runner: no command configured")

// Command runs one argv with an optional timeout.
type Command struct {
	Argv    []string
	Timeout time.Duration
}

// ExitError carries the command's exit status and the tail of its stderr.
type ExitError struct {
	Argv   []string
	Code   int
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with %d", e.Argv[0], e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

const maxStderr = 512

// Execute runs the command. A context cancellation or timeout kills it.
func (c Command) Execute(ctx context.Context) error {
	if len(c.Argv) == 0 {
		return ErrNotConfigured
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", c.Argv[0], ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		tail := strings.TrimSpace(stderr.String())
		if len(tail) > maxStderr {
			tail = tail[len(tail)-maxStderr:]
		}
		return &ExitError{Argv: c.Argv, Code: exitErr.ExitCode(), Stderr: tail, Err: err}
	}
	return fmt.Errorf("%s: %w", c.Argv[0], err)
}

// Registry maps every configured kind to its command.
type Registry struct {
	commands map[action.Kind]Command
}

func NewRegistry(commands map[action.Kind]Command) *Registry {
	r := &Registry{commands: make(map[action.Kind]Command, len(commands))}
	for k, c := range commands {
		r.commands[k] = c
	}
	return r
}

// Executor returns the executor for kind. Unconfigured kinds get an
// executor that fails with ErrNotConfigured, so the breaker sees it.
func (r *Registry) Executor(kind action.Kind) protect.Executor {
	if c, ok := r.commands[kind]; ok {
		return c
	}
	return protect.ExecutorFunc(func(context.Context) error {
		return fmt.Errorf("%w for %s", ErrNotConfigured, kind)
	})
}

// Timeout is the kind's command timeout, or 0 when the kind has no command
// or runs unbounded.
func (r *Registry) Timeout(kind action.Kind) time.Duration {
	return r.commands[kind].Timeout
}

func (r *Registry) Configured(kind action.Kind) bool {
	_, ok := r.commands[kind]
	return ok
}
