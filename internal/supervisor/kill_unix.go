//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// setpgid puts the child in its own process group so the whole tree started
// by a shell-ish command can be signalled together.
func setpgid(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalSoft sends a graceful termination request to the process group.
func signalSoft(cmd *exec.Cmd) error {
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

// signalHard forcibly kills the process group.
func signalHard(cmd *exec.Cmd) error {
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
