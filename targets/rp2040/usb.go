//go:build rp2040

package main

import (
	"machine"
)

// InitUSB initializes USB serial communication
// TinyGo automatically sets up USB CDC-ACM on RP2040
func InitUSB() {
	// machine.Serial is USB CDC on RP2040
	err := machine.Serial.Configure(machine.UARTConfig{})
	if err != nil {
		return
	}
}

// usbLink writes status link frames to USB CDC.
type usbLink struct {
	failures uint32
}

// Write writes all of p, dropping the rest once the host stops reading.
func (u *usbLink) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := machine.Serial.Write(p[written:])
		if err != nil || n == 0 {
			// Likely disconnected: drop the frame rather than stall the loop
			u.failures++
			return len(p), nil
		}
		written += n
	}
	u.failures = 0
	return written, nil
}
