//go:build rp2040

package main

import (
	"machine"

	"chronos/core"
	"chronos/firmware"
)

const (
	watchdogTimeoutMS = 2000

	// dump the timing ring to the debug UART every this many seconds
	timingDumpSeconds = 60
)

func main() {
	// Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()
	InitDebugUART()

	cfg := firmware.Config{
		Timer:     core.DefaultTimerConfig(),
		Heartbeat: true,
		QueueSize: 256,
		PollMS:    firmware.DefaultPollMS,
	}

	fw, err := firmware.New(&timer, cfg, &usbLink{},
		core.WithWatchdog(core.WatchdogFunc(machine.Watchdog.Update)),
		core.WithDebugWriter(DebugPrintln),
	)
	if err != nil {
		// The registry cannot take the heartbeat: nothing useful can run
		panic("chronos: " + err.Error())
	}

	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: watchdogTimeoutMS}); err == nil {
		_ = machine.Watchdog.Start()
	}

	var lastDump uint32
	for {
		if err := fw.Step(); err != nil {
			DebugPrintln("step: " + err.Error())
		}
		machine.Watchdog.Update()

		if up := fw.Timer.Uptime(); up-lastDump >= timingDumpSeconds {
			lastDump = up
			fw.Timer.DumpTiming()
			fw.Timer.ClearTiming()
		}
	}
}
