//go:build !windows

package stage

import (
	"os/exec"
	"syscall"
)

// configureSysProc places the engine in its own process group so a timeout
// also stops the interpreter's children.
func configureSysProc(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative PID targets the process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
