//go:build !linux

// Package procattr configures spawned agent processes so they cannot
// outlive the client.
package procattr

import (
	"os/exec"
	"syscall"
)

// Set puts the child in its own process group so the whole group can
// be signalled at shutdown. Pdeathsig is Linux-only.
func Set(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
