//go:build windows

package stage

import "os/exec"

func configureSysProc(cmd *exec.Cmd) {}
