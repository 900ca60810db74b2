//go:build darwin
// +build darwin

package binaries

import (
	"os/exec"
	"syscall"
)

// ConfigureSysProcAttr sets a process group on macOS so the whole ffmpeg
// process tree can be killed on shutdown.
func ConfigureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
