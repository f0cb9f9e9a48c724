// Package config loads the demo binary's board description. The kernel
// itself takes no environment variables, CLI flags, or config files (spec
// §6); this is strictly the outer driver's concern — which serial port to
// open, which bytecode image to flash, how fast to tick.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config describes one demo run.
type Config struct {
	// TimesliceTicks is spec §6's TIMESLICE_TICK: the slice length in
	// tick units. Must be in (0, 255].
	TimesliceTicks uint8 `yaml:"timeslice_ticks"`

	// TickHz is spec §6's TICK_HZ: the tick frequency.
	TickHz int `yaml:"tick_hz"`

	// TickSource selects the HAL backend: "hosted" (software timer) or
	// "serial" (a companion board's tick pulses).
	TickSource string `yaml:"tick_source"`

	// SerialPort and SerialBaud are only used when TickSource == "serial".
	SerialPort string `yaml:"serial_port"`
	SerialBaud int    `yaml:"serial_baud"`

	// Tasks lists the bytecode images to load at startup, in priority
	// order.
	Tasks []TaskSpec `yaml:"tasks"`
}

// TaskSpec describes one task's bytecode image and base priority.
type TaskSpec struct {
	Name        string `yaml:"name"`
	BytecodeHex string `yaml:"bytecode_hex"`
	Priority    uint8  `yaml:"priority"`
}

// Default returns a Config matching the spec's stated defaults: 10-tick
// slices at 1kHz, ticking on the host's own clock.
func Default() Config {
	return Config{
		TimesliceTicks: 10,
		TickHz:         1000,
		TickSource:     "hosted",
	}
}

// Load reads and validates a YAML config file.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.TimesliceTicks == 0 {
		return cfg, fmt.Errorf("config: timeslice_ticks must be > 0")
	}
	if cfg.TickHz <= 0 {
		return cfg, fmt.Errorf("config: tick_hz must be > 0")
	}
	switch cfg.TickSource {
	case "hosted", "serial":
	default:
		return cfg, fmt.Errorf("config: unknown tick_source %q", cfg.TickSource)
	}
	return cfg, nil
}
