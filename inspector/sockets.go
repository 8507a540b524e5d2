package inspector

import (
	"context"
	"fmt"
	"syscall"

	psnet "github.com/shirou/gopsutil/v4/net"
)

// PortSet is a set of ports in the order they were first observed.
type PortSet []uint16

func NewPortSet(ports ...uint16) PortSet {
	s := PortSet{}
	for _, p := range ports {
		if !s.Contains(p) {
			s = append(s, p)
		}
	}
	return s
}

func (s PortSet) Contains(port uint16) bool {
	for _, p := range s {
		if p == port {
			return true
		}
	}
	return false
}

// Diff returns the ports of s that are not in other.
func (s PortSet) Diff(other PortSet) PortSet {
	out := PortSet{}
	for _, p := range s {
		if !other.Contains(p) {
			out = append(out, p)
		}
	}
	return out
}

func (s PortSet) Intersect(other PortSet) PortSet {
	out := PortSet{}
	for _, p := range s {
		if other.Contains(p) {
			out = append(out, p)
		}
	}
	return out
}

// SocketTable reports the TCP ports a process is listening on.
type SocketTable interface {
	Listening(ctx context.Context, pid int32) (PortSet, error)
}

// SystemSocketTable reads the live socket table of the host.
type SystemSocketTable struct{}

func (SystemSocketTable) Listening(ctx context.Context, pid int32) (PortSet, error) {
	// an unreadable fd table is reported by gopsutil as a process with no sockets
	if err := checkSocketsReadable(ctx, pid); err != nil {
		return nil, &SocketTableError{PID: pid, Err: err}
	}
	conns, err := psnet.ConnectionsPidWithContext(ctx, "inet", pid)
	if err != nil {
		return nil, &SocketTableError{PID: pid, Err: err}
	}
	ports := PortSet{}
	for _, c := range conns {
		if c.Type != syscall.SOCK_STREAM || c.Status != "LISTEN" {
			continue
		}
		port := uint16(c.Laddr.Port)
		if !ports.Contains(port) {
			ports = append(ports, port)
		}
	}
	return ports, nil
}

type SocketTableError struct {
	PID int32
	Err error
}

func (e *SocketTableError) Error() string {
	return fmt.Sprintf("could not enumerate open ports of process %d: %s", e.PID, e.Err)
}

func (e *SocketTableError) Unwrap() error { return e.Err }
