//go:build !linux

package process

import (
	"os/exec"
	"syscall"
)

// ExecCommand constructs a command ready to start, but does not start it.
func (e *Executor) ExecCommand(command string, args ...string) *exec.Cmd {
	cmd := exec.Command(command, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	return cmd
}
