package command

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecCapturesStdout(t *testing.T) {
	requireShell(t)

	out, err := Exec{}.Run(context.Background(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestExecNonZeroExit(t *testing.T) {
	requireShell(t)

	_, err := Exec{}.Run(context.Background(), "sh", "-c", "echo 'dataset does not exist' >&2; exit 2")
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.Code)
	assert.Equal(t, "dataset does not exist\n", Stderr(err))
	assert.Contains(t, err.Error(), "exit status 2: dataset does not exist")
}

func TestExecMissingBinary(t *testing.T) {
	_, err := Exec{}.Run(context.Background(), "vmtopo-definitely-not-installed")
	require.Error(t, err)

	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
	assert.Empty(t, Stderr(err))
}

func TestFakeRules(t *testing.T) {
	f := &Fake{}
	f.On("zfs list", []byte("rpool\n"), nil)
	f.Fail("zfs clone", "no such snapshot")

	out, err := f.Run(context.Background(), "zfs", "list", "-H")
	require.NoError(t, err)
	assert.Equal(t, "rpool\n", string(out))

	_, err = f.Run(context.Background(), "zfs", "clone", "a@base", "b")
	assert.Equal(t, "no such snapshot", Stderr(err))

	_, err = f.Run(context.Background(), "dladm", "show-link")
	assert.NoError(t, err)

	assert.Equal(t, []string{"zfs list -H", "zfs clone a@base b", "dladm show-link"}, f.Calls())
}
