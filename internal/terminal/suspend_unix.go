//go:build !windows

package terminal

import "syscall"

// The shell is started by pty as a session leader, so its process group id
// equals its pid; a negative pid signals the whole group.
func suspendProcess(pid int) error {
	return syscall.Kill(-pid, syscall.SIGSTOP)
}

func resumeProcess(pid int) error {
	return syscall.Kill(-pid, syscall.SIGCONT)
}
