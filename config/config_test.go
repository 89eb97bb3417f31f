package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronos/core"
	"chronos/sim"
)

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, core.DefaultTimerConfig(), cfg.Timer)
	assert.True(t, cfg.Heartbeat.Enabled)
	assert.Equal(t, 256, cfg.Heartbeat.QueueSize)
	assert.Equal(t, uint16(100), cfg.Heartbeat.FlushMS)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Device)
	assert.Equal(t, 1, cfg.Sim.ResolutionMS)
	assert.Equal(t, 1.0, cfg.Sim.Speed)
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
timer:
  source: smclk
  source_hz: 32768
  divider: 4
  max_subscribers: 8
watchdog: true
heartbeat:
  queue_size: 512
  flush_ms: 250
serial:
  device: /dev/ttyUSB1
  baud: 115200
sim:
  speed: 10
`))
	require.NoError(t, err)

	assert.Equal(t, core.ClockSMCLK, cfg.Timer.Source)
	assert.Equal(t, uint32(8192), cfg.Timer.Frequency())
	assert.Equal(t, uint32(8192), cfg.Timer.Period)
	assert.Equal(t, 8, cfg.Timer.MaxSubscribers)
	assert.Equal(t, core.ModeContinuous, cfg.Timer.Mode)
	assert.True(t, cfg.Watchdog)
	assert.True(t, cfg.Heartbeat.Enabled)
	assert.Equal(t, 512, cfg.Heartbeat.QueueSize)

	fw := cfg.Firmware()
	assert.Equal(t, cfg.Timer, fw.Timer)
	assert.True(t, fw.Heartbeat)
	assert.Equal(t, 512, fw.QueueSize)
	assert.Equal(t, uint16(250), fw.PollMS)
	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Device)
	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.Equal(t, 10.0, cfg.Sim.Speed)
}

func TestParsePeriodFollowsClock(t *testing.T) {
	cfg, err := Parse([]byte("timer: {source_hz: 32768, divider: 4}"))
	require.NoError(t, err)
	assert.Equal(t, uint32(8192), cfg.Timer.Frequency())
	assert.Equal(t, cfg.Timer.Frequency(), cfg.Timer.Period)

	// One second of ticks produces exactly one overflow.
	m := sim.NewMachine()
	tm := core.NewTimer(m, core.WithConfig(cfg.Timer))
	require.NoError(t, tm.Initialize())
	m.Advance(cfg.Timer.Frequency() - 1)
	assert.Equal(t, uint32(0), tm.Uptime())
	m.Advance(1)
	assert.Equal(t, uint32(1), tm.Uptime())
}

func TestParseExplicitPeriod(t *testing.T) {
	cfg, err := Parse([]byte("timer: {source_hz: 32768, divider: 4, period: 4096}"))
	require.NoError(t, err)
	assert.Equal(t, uint32(4096), cfg.Timer.Period)
}

func TestParseRejectsBadTimer(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
		err  error
	}{
		{"divider", "timer: {divider: 3}", ErrInvalidDivider},
		{"frequency", "timer: {source_hz: 1500, divider: 2}", ErrFrequencyTooLow},
		{"period", "timer: {period: 1}", ErrPeriodTooShort},
		{"subscribers", "timer: {max_subscribers: -1}", ErrInvalidSubscribe},
	}

	_, err := Parse([]byte("timer: {source: pll}"))
	assert.ErrorContains(t, err, "unknown clock source")

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("timer: [unclosed"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chronos.yaml")
	require.NoError(t, os.WriteFile(path, []byte("heartbeat: {enabled: false}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Heartbeat.Enabled)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
