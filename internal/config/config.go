// SPDX-License-Identifier: MIT
package config

import "time"

// Defaults and limits for the EMG engine configuration.
const (
	DefaultSampleRate      = 1000.0 // Typical surface EMG front end.
	DefaultWindow          = 100 * time.Millisecond
	DefaultHistorySeconds  = 6
	DefaultFramesPerBuffer = 100
	DefaultFullScaleVolts  = 1.0
	DefaultQueueSize       = 256
	DefaultCalibration     = 3 * time.Second

	MinDeviceID    = -1 // -1 selects the system default input device.
	MinSampleRate  = 100
	MaxSampleRate  = 192000
	MaxBufferFrame = 8192
)

// Source kinds.
const (
	SourcePortAudio = "portaudio"
	SourceWAV       = "wav"
	SourceNATS      = "nats"
	SourceSerial    = "serial"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Signal: SignalConfig{
			SampleRate:     DefaultSampleRate,
			Window:         DefaultWindow,
			HistorySeconds: DefaultHistorySeconds,
			TimeBase:       "wall",
			QueueSize:      DefaultQueueSize,
		},
		Calibration: CalibrationConfig{Duration: DefaultCalibration},
		Source: SourceConfig{
			Kind:            SourcePortAudio,
			FramesPerBuffer: DefaultFramesPerBuffer,
			FullScaleVolts:  DefaultFullScaleVolts,
			PortAudio:       PortAudioConfig{InputDevice: MinDeviceID},
			WAV:             WAVConfig{Realtime: true},
			NATS:            NATSConfig{URL: "nats://127.0.0.1:4222", Subject: "emg.samples"},
			Serial:          SerialConfig{Port: "/dev/ttyUSB0", Baud: 115200},
		},
		Storage: StorageConfig{Driver: "json", Path: "./data"},
		Recording: RecordingConfig{
			OutputDir: "./recordings",
			BitDepth:  16,
		},
		Transport: TransportConfig{
			WebSocketAddress: ":8081",
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  50 * time.Millisecond,
			MQTTBroker:       "tcp://127.0.0.1:1883",
			MQTTTopic:        "emgrep",
		},
		API: APIConfig{Enabled: true, Address: ":8080"},
	}
}
