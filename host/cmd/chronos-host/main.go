package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"chronos/config"
	"chronos/core"
	"chronos/firmware"
	"chronos/host/link"
	"chronos/host/mcu"
	"chronos/host/serial"
	"chronos/sim"
)

var (
	configPath = flag.String("config", "", "YAML configuration file")
	device     = flag.String("device", "", "Serial device path (overrides config)")
	baud       = flag.Int("baud", 0, "Baud rate (ignored for USB CDC)")
	simulate   = flag.Bool("sim", false, "Run a simulated device instead of opening a port")
	speed      = flag.Float64("speed", 0, "Simulation speed factor (overrides config)")
	duration   = flag.Duration("duration", 0, "Stop after this long (0 = until interrupted)")
	record     = flag.String("record", "", "Record received events to a CBOR file")
	timing     = flag.Bool("timing", false, "Dump the simulated device timing ring on exit")
	verbose    = flag.Bool("verbose", false, "Enable verbose output")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	fmt.Println("Chronos Host - 1Hz status link monitor")
	fmt.Println("======================================")
	fmt.Println()

	if *simulate {
		err = runSim(ctx, cfg, logger)
	} else {
		err = runDevice(ctx, cfg, logger)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	if *device != "" {
		cfg.Serial.Device = *device
	}
	if *baud > 0 {
		cfg.Serial.Baud = *baud
	}
	if *speed > 0 {
		cfg.Sim.Speed = *speed
	}
	return cfg, nil
}

func runDevice(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	m := mcu.NewMCU(logger)

	fmt.Printf("Connecting to device on %s...\n", cfg.Serial.Device)
	if err := m.Connect(&cfg.Serial); err != nil {
		return err
	}
	defer m.Close()
	fmt.Println("Connected successfully!")

	closeRec, err := startRecording(m)
	if err != nil {
		return err
	}
	defer closeRec()

	err = m.Run(ctx, printEvent)
	printSummary(m)
	return err
}

// runSim runs the firmware loop on a simulated timer and reads its status
// link through an in-memory pipe.
func runSim(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	machine := sim.NewMachine()
	devPort, hostPort := serial.Pipe()

	var kicks atomic.Uint32
	opts := []core.Option{
		core.WithDebugWriter(func(s string) { logger.Debug(s) }),
	}
	if cfg.Watchdog {
		opts = append(opts, core.WithWatchdog(core.WatchdogFunc(func() { kicks.Add(1) })))
	}

	fw, err := firmware.New(machine, cfg.Firmware(), devPort, opts...)
	if err != nil {
		return fmt.Errorf("start firmware: %w", err)
	}

	m := mcu.NewMCU(logger)
	m.Attach(hostPort)
	closeRec, err := startRecording(m)
	if err != nil {
		return err
	}
	defer closeRec()

	// The clock outlives the firmware loop so a delay in progress can end.
	clockCtx, stopClock := context.WithCancel(context.Background())
	defer stopClock()
	clock := sim.NewClock(machine, time.Duration(cfg.Sim.ResolutionMS)*time.Millisecond, cfg.Sim.Speed)
	go clock.Run(clockCtx)

	fwDone := make(chan error, 1)
	go func() {
		err := fw.Run(ctx)
		if err == nil && *timing {
			fw.Timer.DumpTiming()
			err = fw.DumpTiming()
		}
		_ = devPort.Close()
		fwDone <- err
	}()

	fmt.Printf("Simulating %d Hz timer at %.1fx speed\n", cfg.Timer.Frequency(), cfg.Sim.Speed)

	// The host side stops when the device closes its end of the pipe.
	readErr := m.Run(context.Background(), printEvent)
	fwErr := <-fwDone

	printSummary(m)
	stats := machine.Stats()
	fmt.Printf("Device: uptime=%ds delays=%d overflows=%d interrupts=%d sleeps=%d\n",
		fw.Timer.Uptime(), fw.Timer.Delays(), stats.Overflows, stats.Serviced, stats.Sleeps)
	if fw.Heartbeat != nil {
		fmt.Printf("Heartbeat: queued=%d dropped=%d\n", fw.Heartbeat.Queued(), fw.Heartbeat.Drops())
	}
	if cfg.Watchdog {
		fmt.Printf("Watchdog: kicks=%d\n", kicks.Load())
	}

	if fwErr != nil {
		return fmt.Errorf("firmware: %w", fwErr)
	}
	return readErr
}

func startRecording(m *mcu.MCU) (func(), error) {
	if *record == "" {
		return func() {}, nil
	}
	f, err := os.Create(*record)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	if err := m.Record(f); err != nil {
		f.Close()
		return nil, err
	}
	return func() { f.Close() }, nil
}

func printEvent(ev link.Event) {
	switch {
	case ev.Status != nil:
		st := ev.Status
		fmt.Printf("[%s] seq=%d uptime=%ds subscribers=%d counter=%d delays=%d drops=%d\n",
			ev.Time.Format("15:04:05.000"), ev.Sequence, st.Uptime, st.Subscribers,
			st.Counter, st.Delays, st.Drops)
	case ev.Timing != nil:
		tm := ev.Timing
		fmt.Printf("[TIMING] %s clock=%d v1=%d v2=%d\n",
			core.EventName(tm.Event), tm.Clock, tm.Value1, tm.Value2)
	}
}

func printSummary(m *mcu.MCU) {
	stats := m.LinkStats()
	fmt.Println()
	fmt.Printf("Link: frames=%d statuses=%d resyncs=%d dropped_bytes=%d\n",
		stats.Frames, m.Statuses(), stats.Resyncs, stats.Dropped)
}
