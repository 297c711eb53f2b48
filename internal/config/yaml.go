// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"emgrep/internal/analysis"
	applog "emgrep/internal/log"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration, loaded from YAML.
type Config struct {
	Debug       bool              `yaml:"debug"`     // Forces debug logging.
	LogLevel    string            `yaml:"log_level"` // debug, info, warn, error.
	Signal      SignalConfig      `yaml:"signal"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Source      SourceConfig      `yaml:"source"`
	Storage     StorageConfig     `yaml:"storage"`
	Recording   RecordingConfig   `yaml:"recording"`
	Transport   TransportConfig   `yaml:"transport"`
	API         APIConfig         `yaml:"api"`
}

// SignalConfig sizes the envelope pipeline.
type SignalConfig struct {
	SampleRate     float64       `yaml:"sample_rate"`     // Samples per second delivered by the source.
	Window         time.Duration `yaml:"window"`          // RMS window length; converted to samples.
	HistorySeconds int           `yaml:"history_seconds"` // Envelope history horizon.
	TimeBase       string        `yaml:"time_base"`       // "wall" or "samples".
	QueueSize      int           `yaml:"queue_size"`      // Engine inbox capacity in batches.
}

// CalibrationConfig controls MVC capture.
type CalibrationConfig struct {
	Duration time.Duration `yaml:"duration"`
}

// SourceConfig selects and configures the sample source.
type SourceConfig struct {
	Kind            string          `yaml:"kind"`              // portaudio, wav, nats or serial.
	FramesPerBuffer int             `yaml:"frames_per_buffer"` // Samples per delivered batch.
	FullScaleVolts  float64         `yaml:"full_scale_volts"`  // Volts represented by PCM full scale.
	PortAudio       PortAudioConfig `yaml:"portaudio"`
	WAV             WAVConfig       `yaml:"wav"`
	NATS            NATSConfig      `yaml:"nats"`
	Serial          SerialConfig    `yaml:"serial"`
}

type PortAudioConfig struct {
	InputDevice int  `yaml:"input_device"` // PortAudio device index, -1 for default.
	LowLatency  bool `yaml:"low_latency"`
}

type WAVConfig struct {
	Path     string `yaml:"path"`
	Realtime bool   `yaml:"realtime"` // Pace batches at the file's sample rate.
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// StorageConfig selects the history backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // json, sqlite, postgres or memory.
	Path   string `yaml:"path"`   // Directory for json, file for sqlite.
	DSN    string `yaml:"dsn"`    // Connection string for postgres.
}

// RecordingConfig controls raw per-set WAV capture.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	BitDepth  int    `yaml:"bit_depth"` // 16, 24 or 32.
}

// TransportConfig holds the outbound feeds.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`
	WebSocketAddress string        `yaml:"websocket_address"` // Empty mounts /ws on the API server only.
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
	MQTTEnabled      bool          `yaml:"mqtt_enabled"`
	MQTTBroker       string        `yaml:"mqtt_broker"`
	MQTTTopic        string        `yaml:"mqtt_topic"`
	MQTTClientID     string        `yaml:"mqtt_client_id"`
}

// APIConfig controls the HTTP control API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoadConfig loads configuration from the YAML file at path. An empty path
// tries config.yaml in the working directory and falls back to the built-in
// defaults. Environment overrides are applied after the file, then the
// result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// WindowSize returns the RMS window length in samples.
func (c *Config) WindowSize() int {
	return analysis.WindowSizeFor(c.Signal.SampleRate, c.Signal.Window.Seconds())
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is not a known level", c.LogLevel))
	}

	s := c.Signal
	check(s.SampleRate >= MinSampleRate && s.SampleRate <= MaxSampleRate,
		"signal.sample_rate %.0f outside [%d, %d]", s.SampleRate, MinSampleRate, MaxSampleRate)
	check(s.Window > 0, "signal.window must be positive")
	check(s.HistorySeconds > 0, "signal.history_seconds must be positive")
	if s.SampleRate > 0 && s.Window > 0 && s.HistorySeconds > 0 {
		check(analysis.EnvelopeCapacity(s.SampleRate, c.WindowSize(), s.HistorySeconds) > 0,
			"signal.window %s is too long for sample_rate %.0f (fewer than one window per second)", s.Window, s.SampleRate)
	}
	check(s.TimeBase == "wall" || s.TimeBase == "samples", "signal.time_base %q must be wall or samples", s.TimeBase)
	check(s.QueueSize > 0, "signal.queue_size must be positive")
	check(c.Calibration.Duration > 0, "calibration.duration must be positive")

	src := c.Source
	check(src.FramesPerBuffer > 0 && src.FramesPerBuffer <= MaxBufferFrame,
		"source.frames_per_buffer %d outside [1, %d]", src.FramesPerBuffer, MaxBufferFrame)
	check(src.FullScaleVolts > 0, "source.full_scale_volts must be positive")
	switch src.Kind {
	case SourcePortAudio:
		check(src.PortAudio.InputDevice >= MinDeviceID, "source.portaudio.input_device %d is invalid", src.PortAudio.InputDevice)
	case SourceWAV:
		// The path may be given on the command line instead.
	case SourceNATS:
		check(src.NATS.URL != "" && src.NATS.Subject != "", "source.nats.url and subject must be set")
	case SourceSerial:
		check(src.Serial.Port != "" && src.Serial.Baud > 0, "source.serial.port and baud must be set")
	default:
		errs = append(errs, fmt.Errorf("source.kind %q is not one of portaudio, wav, nats, serial", src.Kind))
	}

	switch c.Storage.Driver {
	case "json", "sqlite":
		check(c.Storage.Path != "", "storage.path must be set for %s", c.Storage.Driver)
	case "postgres":
		check(c.Storage.DSN != "", "storage.dsn must be set for postgres")
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of json, sqlite, postgres, memory", c.Storage.Driver))
	}

	if c.Recording.Enabled {
		check(c.Recording.OutputDir != "", "recording.output_dir must be set when recording is enabled")
		d := c.Recording.BitDepth
		check(d == 16 || d == 24 || d == 32, "recording.bit_depth %d must be 16, 24 or 32", d)
	}

	t := c.Transport
	if t.UDPEnabled {
		check(strings.Contains(t.UDPTargetAddress, ":"), "transport.udp_target_address %q appears invalid (missing port?)", t.UDPTargetAddress)
		check(t.UDPSendInterval > 0, "transport.udp_send_interval must be positive when UDP is enabled")
	}
	if t.MQTTEnabled {
		check(t.MQTTBroker != "" && t.MQTTTopic != "", "transport.mqtt_broker and mqtt_topic must be set when MQTT is enabled")
	}
	if c.API.Enabled {
		check(c.API.Address != "", "api.address must be set when the API is enabled")
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies ENV_* variables on top of file values. Values
// that fail to parse are ignored.
func (c *Config) applyEnvOverrides() {
	str := func(name string, dst *string) {
		if val, ok := os.LookupEnv(name); ok {
			*dst = val
			applog.Infof("configuration: overriding %s from env: %s", name, val)
		}
	}
	boolean := func(name string, dst *bool) {
		if val, ok := os.LookupEnv(name); ok {
			if b, err := strconv.ParseBool(val); err == nil {
				*dst = b
				applog.Infof("configuration: overriding %s from env: %v", name, b)
			}
		}
	}
	duration := func(name string, dst *time.Duration) {
		if val, ok := os.LookupEnv(name); ok {
			if d, err := time.ParseDuration(val); err == nil {
				*dst = d
				applog.Infof("configuration: overriding %s from env: %s", name, d)
			}
		}
	}

	boolean("ENV_DEBUG", &c.Debug)
	str("ENV_LOG_LEVEL", &c.LogLevel)
	str("ENV_SOURCE", &c.Source.Kind)
	str("ENV_STORAGE_DRIVER", &c.Storage.Driver)
	str("ENV_STORAGE_PATH", &c.Storage.Path)
	str("ENV_STORAGE_DSN", &c.Storage.DSN)
	str("ENV_API_ADDRESS", &c.API.Address)
	duration("ENV_CALIBRATION_DURATION", &c.Calibration.Duration)

	boolean("ENV_UDP_ENABLED", &c.Transport.UDPEnabled)
	str("ENV_UDP_TARGET_ADDRESS", &c.Transport.UDPTargetAddress)
	duration("ENV_UDP_SEND_INTERVAL", &c.Transport.UDPSendInterval)

	boolean("ENV_MQTT_ENABLED", &c.Transport.MQTTEnabled)
	str("ENV_MQTT_BROKER", &c.Transport.MQTTBroker)
	str("ENV_MQTT_TOPIC", &c.Transport.MQTTTopic)

	str("ENV_NATS_URL", &c.Source.NATS.URL)
	str("ENV_SERIAL_PORT", &c.Source.Serial.Port)
}
