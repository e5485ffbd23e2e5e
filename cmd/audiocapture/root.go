package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/petems/audiocapture/internal/capture"
	"github.com/petems/audiocapture/internal/config"
	"github.com/petems/audiocapture/internal/logging"
)

type rootFlags struct {
	configPath string
	backend    string
	logLevel   string
	output     string

	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:     "audiocapture",
		Short:   "Capture audio from an input device into a WAV file",
		Version: fmt.Sprintf("%s (%s)", Version, Commit),
		Example: `  audiocapture
  audiocapture devices
  audiocapture record --device 1 --duration 10s --output take.wav
  audiocapture inspect take.wav`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return flags.load(cmd)
		},
		// Without a subcommand, run the interactive console
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd, &flags)
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to the config file (default: "+config.Path()+")")
	cmd.PersistentFlags().StringVar(&flags.backend, "backend", "", "Audio backend (malgo, portaudio, synth)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&flags.output, "output", "o", "", "WAV file to write")

	cmd.AddCommand(newConsoleCmd(&flags))
	cmd.AddCommand(newDevicesCmd(&flags))
	cmd.AddCommand(newRecordCmd(&flags))
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newBackendsCmd())

	return cmd
}

// load reads the config file and applies flag overrides.
func (f *rootFlags) load(cmd *cobra.Command) error {
	var (
		cfg *config.Config
		err error
	)
	if f.configPath != "" {
		cfg, err = config.LoadFile(f.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("backend") {
		cfg.Audio.Backend = f.backend
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if cmd.Flags().Changed("output") {
		cfg.Output.File = f.output
	}

	f.cfg = cfg
	f.log = logging.NewWithLevel(cfg.LogLevel)
	return nil
}

func (f *rootFlags) newSession(callback capture.FrameFunc) *capture.Session {
	return capture.New(capture.Config{
		Backend:       f.cfg.Audio.Backend,
		SampleRate:    f.cfg.Audio.SampleRate,
		Channels:      f.cfg.Audio.Channels,
		LatencyFrames: f.cfg.Audio.LatencyFrames,
		OutputFile:    f.cfg.Output.File,
		Callback:      callback,
		Logger:        f.log,
	})
}
