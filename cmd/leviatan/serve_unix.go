//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// setServeSysProcAttr sets platform-specific process attributes for daemon mode.
func setServeSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}
