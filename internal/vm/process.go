//go:build unix

package vm

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/javanstorm/vmtopo/internal/errdefs"
)

// Spawner starts backend processes.
type Spawner interface {
	// Spawn starts path with args, detached from the caller's session, with
	// stdout and stderr appended to output. It returns once the process
	// exists and does not wait for it.
	Spawn(path string, args []string, output string) (pid int, err error)
}

// Killer signals backend processes.
type Killer interface {
	// Kill sends SIGKILL. A process that no longer exists is not an error.
	Kill(pid int) error
	// Alive reports whether pid names a live process.
	Alive(pid int) bool
}

// Host spawns and kills real processes.
type Host struct{}

var (
	_ Spawner = Host{}
	_ Killer  = Host{}
)

// Spawn implements Spawner.
func (Host) Spawn(path string, args []string, output string) (int, error) {
	out, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("open output log: %w", err)
	}
	defer out.Close()

	cmd := exec.Command(path, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// The backend outlives this invocation; nobody waits for it.
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release process: %w", err)
	}
	return pid, nil
}

// Kill implements Killer.
func (Host) Kill(pid int) error {
	if pid <= 0 {
		return errdefs.Invalid("kill", strconv.Itoa(pid), errors.New("not a single process"))
	}
	err := unix.Kill(pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// Alive implements Killer. A process owned by another user still counts.
func (Host) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
