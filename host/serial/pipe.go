package serial

import "net"

type pipePort struct {
	net.Conn
}

func (p pipePort) Flush() error { return nil }

// Pipe returns two connected in-memory ports. Bytes written to one are
// read from the other. It stands in for a device cable when the device is
// simulated.
func Pipe() (Port, Port) {
	a, b := net.Pipe()
	return pipePort{a}, pipePort{b}
}
