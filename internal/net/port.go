package net

import (
	"fmt"
	"net"
)

// FreeTCPPort returns a loopback port that nothing was listening on at the time of the call.
func FreeTCPPort() (uint16, error) {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("resolving 127.0.0.1:0: %w", err)
	}
	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("listening to acquire port: %w", err)
	}
	defer listener.Close()
	return uint16(listener.Addr().(*net.TCPAddr).Port), nil
}

// Listen opens a TCP listener on an ephemeral loopback port and returns it along with the port.
func Listen() (net.Listener, uint16, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("listening on loopback: %w", err)
	}
	return listener, uint16(listener.Addr().(*net.TCPAddr).Port), nil
}
