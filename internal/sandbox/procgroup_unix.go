//go:build !windows

package sandbox

import (
	"os/exec"
	"syscall"
	"time"
)

// setProcGroup runs cmd in its own process group and wires Cancel/WaitDelay
// so that a timeout kills the whole group (including grandchildren spawned by
// the shell) rather than only the direct child.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative PID targets the entire process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	// Grace period for children to drain before pipe FDs are closed.
	cmd.WaitDelay = 3 * time.Second
}

// killProcGroup force-kills the process group of a running command. Used on
// shutdown for commands that have not finished.
func killProcGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
