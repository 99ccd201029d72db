//go:build windows

package taskscope

import "os/exec"

// setProcessGroup is a no-op on Windows; killProcessGroup falls back to
// killing the direct child only.
func setProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
