// SPDX-License-Identifier: MIT
package cmd

import (
	"os"
	"time"

	"emgrep/pkg/build"

	"github.com/spf13/cobra"
)

// Commands other than the live engine.
const (
	CommandList      = "list"
	CommandPresets   = "presets"
	CommandHistory   = "history"
	CommandReplay    = "replay"
	CommandCalibrate = "calibrate"
)

// Options holds the parsed command line. Flags that were not given leave
// the configuration file values in place.
type Options struct {
	Live       bool // Run the live engine; false after --help or --version.
	Command    string
	ConfigPath string
	Args       []string

	Verbose    bool
	ShowStatus bool

	Source   string
	DeviceID int
	deviceOK bool

	Record bool

	// Replay
	Realtime bool
	Preset   string
	DryRun   bool

	// Calibrate
	Duration time.Duration
}

func ParseArgs() (*Options, error) {
	return parseArgs(os.Args[1:])
}

func parseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Live EMG envelope, rep counting and set recording",
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Live = true
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Global configuration
	rootCmd.PersistentFlags().StringVarP(&options.ConfigPath, "config", "c", "",
		"Path to the YAML configuration file (default ./config.yaml when present)")
	rootCmd.PersistentFlags().BoolVarP(&options.Verbose, "verbose", "v", false,
		"Show debug output")
	rootCmd.PersistentFlags().StringVarP(&options.Source, "source", "s", "",
		"Sample source: portaudio, wav, nats or serial")
	rootCmd.PersistentFlags().IntVarP(&options.DeviceID, "device", "d", -1,
		"Specify input device ID. Use 'list' command to see available devices.")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		options.deviceOK = cmd.Flags().Changed("device")
	}

	// Live engine
	rootCmd.Flags().BoolVarP(&options.Record, "record", "r", false,
		"Record the raw samples of every set to WAV")
	rootCmd.Flags().BoolVar(&options.ShowStatus, "status", false,
		"Print a live status line")

	// List command
	rootCmd.AddCommand(&cobra.Command{
		Use:   CommandList,
		Short: "List available input devices",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandList
		},
	})

	// Presets command
	rootCmd.AddCommand(&cobra.Command{
		Use:   CommandPresets,
		Short: "List the built-in exercise presets",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandPresets
		},
	})

	// History command
	rootCmd.AddCommand(&cobra.Command{
		Use:   CommandHistory,
		Short: "Show recorded sets, most recent first",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandHistory
		},
	})

	// Replay command
	replayCmd := &cobra.Command{
		Use:   CommandReplay + " <file.wav>",
		Short: "Replay a WAV recording as one set",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandReplay
			options.Args = args
		},
	}
	replayCmd.Flags().BoolVar(&options.Realtime, "realtime", false,
		"Pace samples at the file's sample rate")
	replayCmd.Flags().StringVarP(&options.Preset, "preset", "p", "",
		"Apply this preset before replaying")
	replayCmd.Flags().BoolVarP(&options.DryRun, "dry-run", "n", false,
		"Do not persist the replayed set")
	rootCmd.AddCommand(replayCmd)

	// Calibrate command
	calibrateCmd := &cobra.Command{
		Use:   CommandCalibrate,
		Short: "Capture a maximum voluntary contraction from the live source",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandCalibrate
		},
	}
	calibrateCmd.Flags().DurationVarP(&options.Duration, "duration", "t", 0,
		"Capture duration (default from configuration)")
	rootCmd.AddCommand(calibrateCmd)

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return options, nil
}
