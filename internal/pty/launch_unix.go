//go:build !windows

package pty

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr makes the child a session leader with the PTY slave
// as its controlling terminal (fd 0 is the slave by the time exec runs).
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	}
}
