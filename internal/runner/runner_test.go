package runner

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexKimmel/tamperguard/internal/action"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommand_Success(t *testing.T) {
	requireShell(t)
	err := Command{Argv: []string{"sh", "-c", "exit 0"}}.Execute(context.Background())
	assert.NoError(t, err)
}

func TestCommand_ExitError(t *testing.T) {
	requireShell(t)
	err := Command{Argv: []string{"sh", "-c", "echo nope >&2; exit 3"}}.Execute(context.Background())

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, "nope", exitErr.Stderr)
	assert.Equal(t, "sh exited with 3: nope", exitErr.Error())
}

func TestCommand_Timeout(t *testing.T) {
	requireShell(t)
	err := Command{Argv: []string{"sh", "-c", "sleep 5"}, Timeout: 50 * time.Millisecond}.Execute(context.Background())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCommand_Empty(t *testing.T) {
	assert.ErrorIs(t, Command{}.Execute(context.Background()), ErrNotConfigured)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(map[action.Kind]Command{
		action.LockScreen: {Argv: []string{"true"}, Timeout: 2 * time.Second},
	})

	assert.True(t, r.Configured(action.LockScreen))
	assert.False(t, r.Configured(action.Shutdown))
	assert.Equal(t, 2*time.Second, r.Timeout(action.LockScreen))
	assert.Zero(t, r.Timeout(action.Shutdown))

	err := r.Executor(action.Shutdown).Execute(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), "shutdown")
}
