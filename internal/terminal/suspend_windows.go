//go:build windows

package terminal

// Windows has no POSIX job-control signals; suspend/resume of a shell
// process group is out of scope for the local PTY backend there
// (spec §9: "Suspend/resume semantics for shells without job control:
// backend-specific, out of core scope").
func suspendProcess(pid int) error {
	return ErrNotSupported
}

func resumeProcess(pid int) error {
	return ErrNotSupported
}
