//go:build !windows

package inspector

import "golang.org/x/sys/unix"

// SIGUSR1 asks a Node process to start its inspector.
type usr1Signaler struct{}

func (usr1Signaler) Signal(pid int32) error {
	return unix.Kill(int(pid), unix.SIGUSR1)
}
