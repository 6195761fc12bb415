package procattr

import (
	"os/exec"
	"syscall"
)

// TerminateGroup sends SIGTERM to the child's process group. The
// negative PID addresses the whole group, so agent-spawned helpers go
// down too.
func TerminateGroup(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

// KillGroup sends SIGKILL to the child's process group.
func KillGroup(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
