//go:build linux
// +build linux

package binaries

import (
	"os/exec"
	"syscall"
)

// ConfigureSysProcAttr sets a process group on Linux so the whole ffmpeg
// process tree can be killed on shutdown.
func ConfigureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
