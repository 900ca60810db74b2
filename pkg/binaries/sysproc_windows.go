//go:build windows
// +build windows

package binaries

import "os/exec"

// ConfigureSysProcAttr is a no-op on Windows to keep builds portable.
func ConfigureSysProcAttr(cmd *exec.Cmd) {
}
