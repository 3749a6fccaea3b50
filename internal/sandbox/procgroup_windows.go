//go:build windows

package sandbox

import (
	"os/exec"
	"time"
)

// setProcGroup is mostly a no-op on Windows: exec.CommandContext already
// sends os.Kill on cancellation and Unix-style process groups do not exist.
// WaitDelay gives children a grace period to drain.
func setProcGroup(cmd *exec.Cmd) {
	cmd.WaitDelay = 3 * time.Second
}

// killProcGroup kills the direct child. Grandchildren may survive on Windows.
func killProcGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
