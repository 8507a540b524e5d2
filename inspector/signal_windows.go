//go:build windows

package inspector

import "errors"

type usr1Signaler struct{}

func (usr1Signaler) Signal(pid int32) error {
	return errors.New("SIGUSR1 is not available on windows")
}
