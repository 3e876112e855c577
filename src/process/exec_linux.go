//go:build linux

package process

import (
	"os/exec"
	"syscall"
)

// ExecCommand constructs a command ready to start, but does not start it.
// Pdeathsig is set so children don't outlive moon if it dies unexpectedly,
// and Setpgid lets KillProcess terminate the whole process group.
func (e *Executor) ExecCommand(command string, args ...string) *exec.Cmd {
	cmd := exec.Command(command, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGHUP,
		Setpgid:   true,
	}
	return cmd
}
