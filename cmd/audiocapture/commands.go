package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/petems/audiocapture/internal/audio"
	"github.com/petems/audiocapture/internal/capture"
	"github.com/petems/audiocapture/internal/console"
	"github.com/petems/audiocapture/internal/permissions"
	"github.com/petems/audiocapture/internal/wavfile"
)

func newConsoleCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Run the interactive capture console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd, flags)
		},
	}
}

func runConsole(cmd *cobra.Command, flags *rootFlags) error {
	if err := ensureMicrophone(flags); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := flags.newSession(nil)
	if idx := flags.cfg.Audio.DeviceIndex; idx >= 0 {
		if err := session.Initialize(); err != nil {
			return err
		}
		if err := session.SelectDevice(idx); err != nil {
			flags.log.Warn().Err(err).Int("index", idx).Msg("Configured device unavailable, using default")
		}
	}

	c := console.New(console.Config{
		Session:        session,
		Logger:         flags.log,
		In:             cmd.InOrStdin(),
		Out:            cmd.OutOrStdout(),
		MeterInterval:  flags.cfg.Console.MeterInterval,
		CopyPathOnSave: flags.cfg.Output.CopyPathOnSave,
	})
	return c.Run(ctx)
}

// ensureMicrophone checks capture permission for hardware backends.
func ensureMicrophone(flags *rootFlags) error {
	if flags.cfg.Audio.Backend == "synth" {
		return nil
	}
	if err := permissions.EnsureMicrophone(); err != nil {
		flags.log.Error().Err(err).Msg("Required permissions not granted")
		return err
	}
	return nil
}

func newDevicesCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session := flags.newSession(nil)
			if err := session.Initialize(); err != nil {
				return err
			}
			defer session.Teardown()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Input devices (%s):\n", session.Status().Backend)
			for _, d := range session.ListInputDevices() {
				line := fmt.Sprintf("  [%d] %s", d.Index, d.Name)
				if d.Default {
					line += color.GreenString(" (default)")
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newRecordCmd(flags *rootFlags) *cobra.Command {
	var (
		device   int
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from an input device and save a WAV file",
		Long:  "Record from an input device until the duration elapses or the process is interrupted, then save the recording.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("device") {
				device = flags.cfg.Audio.DeviceIndex
			}
			return runRecord(cmd, flags, device, duration)
		},
	}

	cmd.Flags().IntVar(&device, "device", capture.DefaultDevice, "Input device index (-1 for the default device)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Recording length (0 records until interrupted)")

	return cmd
}

func runRecord(cmd *cobra.Command, flags *rootFlags, device int, duration time.Duration) error {
	if err := ensureMicrophone(flags); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	meter := console.NewMeter(flags.cfg.Console.MeterInterval, flags.log)
	session := flags.newSession(meter.Observe)
	if err := session.Initialize(); err != nil {
		return err
	}
	defer session.Teardown()

	if err := session.Start(device); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Recording from %s, press Ctrl+C to stop\n", session.CurrentDevice().Name)
	<-ctx.Done()

	if err := session.Stop(); err != nil {
		return err
	}

	res, err := session.Export()
	if err != nil {
		if errors.Is(err, capture.ErrEmptyRecording) {
			return fmt.Errorf("no audio captured: %w", err)
		}
		return err
	}

	color.New(color.FgGreen).Fprintf(out, "Saved %s\n", res.Path)
	fmt.Fprintf(out, "%d frames, %d channels, %d Hz (%.2fs)\n",
		res.Frames, res.Channels, res.SampleRate, float64(res.Frames)/float64(res.SampleRate))
	return nil
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show the format and level of a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, samples, err := wavfile.Read(args[0])
			if err != nil {
				return err
			}

			floats := make([]float32, len(samples))
			for i, s := range samples {
				floats[i] = float32(s) / 32767
			}
			level := console.Measure(floats)

			frames := 0
			if format.Channels > 0 {
				frames = len(samples) / format.Channels
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File: %s\n", args[0])
			fmt.Fprintf(out, "Channels: %d\n", format.Channels)
			fmt.Fprintf(out, "Sample Rate: %d Hz\n", format.SampleRate)
			fmt.Fprintf(out, "Bits: %d\n", format.BitsPerSample)
			fmt.Fprintf(out, "Frames: %d (%.2fs)\n", frames, float64(frames)/float64(format.SampleRate))
			fmt.Fprintf(out, "Peak: %.3f, RMS: %.3f\n", level.Peak, level.RMS)
			return nil
		},
	}
}

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List compiled-in audio backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def := audio.DefaultBackend()
			for _, name := range audio.Backends() {
				if name == def {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", name, color.GreenString("(default)"))
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
