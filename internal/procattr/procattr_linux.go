//go:build linux

// Package procattr configures spawned agent processes so they cannot
// outlive the client.
package procattr

import (
	"os/exec"
	"syscall"
)

// Set puts the child in its own process group and arranges for it to
// receive SIGTERM if this process dies, covering OOM kills and SIGKILL
// where deferred cleanup never runs.
func Set(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
