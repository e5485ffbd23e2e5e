// Package console implements the interactive capture console: a line based
// command loop driving one capture.Session.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/petems/audiocapture/internal/capture"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
)

// errQuit ends the command loop.
var errQuit = errors.New("quit")

type Config struct {
	Session *capture.Session
	Logger  zerolog.Logger
	In      io.Reader
	Out     io.Writer

	// MeterInterval is the number of callbacks between level log lines.
	MeterInterval int
	// CopyPathOnSave copies the saved WAV path to the clipboard.
	CopyPathOnSave bool
	// Clipboard overrides the system clipboard writer.
	Clipboard func(text string) error
}

type Console struct {
	session   *capture.Session
	log       zerolog.Logger
	in        io.Reader
	out       io.Writer
	meter     *Meter
	copyPath  bool
	clipboard func(string) error

	readerOnce sync.Once
	lines      chan string
	readErr    error
}

func New(cfg Config) *Console {
	clip := cfg.Clipboard
	if clip == nil {
		clip = clipboard.WriteAll
	}

	c := &Console{
		session:   cfg.Session,
		log:       cfg.Logger,
		in:        cfg.In,
		out:       cfg.Out,
		meter:     NewMeter(cfg.MeterInterval, cfg.Logger),
		copyPath:  cfg.CopyPathOnSave,
		clipboard: clip,
		lines:     make(chan string),
	}
	c.session.SetCallback(c.meter.Observe)
	return c
}

// Run reads commands until quit, end of input or ctx is done. Any active
// capture is stopped and the session torn down before Run returns.
func (c *Console) Run(ctx context.Context) error {
	defer c.Shutdown()

	fmt.Fprintln(c.out, "Audio capture console")
	fmt.Fprintln(c.out, "Type 'help' for commands or 'quit' to exit")

	for {
		fmt.Fprint(c.out, "\n> ")
		line, err := c.readLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				fmt.Fprintln(c.out)
				return nil
			}
			return err
		}

		if err := c.Execute(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			errColor.Fprintf(c.out, "Error: %v\n", err)
		}
	}
}

// Execute runs one command line.
func (c *Console) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "start":
		return c.start(ctx, args)
	case "stop":
		return c.stop()
	case "save":
		return c.save()
	case "devices":
		return c.devices()
	case "device":
		return c.selectDevice(args)
	case "output":
		return c.output(args)
	case "status":
		c.status()
		return nil
	case "help":
		c.help()
		return nil
	case "quit", "exit":
		return errQuit
	}

	fmt.Fprintf(c.out, "Unknown command: %s\n", fields[0])
	fmt.Fprintln(c.out, "Type 'help' for available commands")
	return nil
}

// Shutdown stops any active capture without saving and releases the
// audio system.
func (c *Console) Shutdown() {
	if c.session.IsCapturing() {
		c.log.Info().Msg("Stopping capture on shutdown")
	}
	if err := c.session.Teardown(); err != nil {
		c.log.Error().Err(err).Msg("Teardown error")
	}
}

func (c *Console) ensureInitialized() error {
	if c.session.State() != capture.StateUninitialized {
		return nil
	}
	return c.session.Initialize()
}

func (c *Console) start(ctx context.Context, args []string) error {
	if c.session.IsCapturing() {
		fmt.Fprintln(c.out, "Already capturing. Stop first.")
		return nil
	}
	if err := c.ensureInitialized(); err != nil {
		return err
	}

	index := capture.DefaultDevice
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid device number %q", args[0])
		}
		index = n
	} else {
		devices := c.session.ListInputDevices()
		if len(devices) == 0 {
			fmt.Fprintln(c.out, "No input devices available")
			return nil
		}

		fmt.Fprintln(c.out, "Available input devices:")
		for _, d := range devices {
			fmt.Fprintf(c.out, "  %d: %s\n", d.Index, d.Name)
		}
		fmt.Fprint(c.out, "Enter device number (or press Enter for default): ")

		input, err := c.readLine(ctx)
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		index = c.parseDeviceChoice(input, len(devices))
	}

	fmt.Fprintln(c.out, "Starting audio capture...")
	c.meter.Reset()
	if err := c.session.Start(index); err != nil {
		return fmt.Errorf("failed to start audio capture: %w", err)
	}

	st := c.session.Status()
	okColor.Fprintln(c.out, "Audio capture started. Type 'stop' to stop and save.")
	fmt.Fprintf(c.out, "Using device: %s\n", st.Device.Name)
	return nil
}

// parseDeviceChoice maps the prompt answer to a device index. Empty or
// invalid answers select the default device.
func (c *Console) parseDeviceChoice(input string, count int) int {
	input = strings.TrimSpace(input)
	if input == "" {
		return capture.DefaultDevice
	}

	n, err := strconv.Atoi(input)
	if err != nil {
		warnColor.Fprintln(c.out, "Invalid input, using default device")
		return capture.DefaultDevice
	}
	if n < 0 || n >= count {
		warnColor.Fprintln(c.out, "Invalid device number, using default device")
		return capture.DefaultDevice
	}
	return n
}

func (c *Console) stop() error {
	if !c.session.IsCapturing() {
		fmt.Fprintln(c.out, "No capture running")
		return nil
	}

	if err := c.session.Stop(); err != nil {
		return err
	}
	err := c.save()
	fmt.Fprintln(c.out, "Capture stopped")
	return err
}

func (c *Console) save() error {
	res, err := c.session.Export()
	if err != nil {
		if errors.Is(err, capture.ErrEmptyRecording) {
			warnColor.Fprintln(c.out, "Nothing recorded, no file written")
			return nil
		}
		return fmt.Errorf("failed to save WAV audio file: %w", err)
	}

	okColor.Fprintf(c.out, "WAV audio saved to %s\n", res.Path)
	fmt.Fprintf(c.out, "%d frames, %d channels, %d Hz (%.2fs)\n",
		res.Frames, res.Channels, res.SampleRate, float64(res.Frames)/float64(res.SampleRate))

	if c.copyPath {
		if err := c.clipboard(res.Path); err != nil {
			c.log.Warn().Err(err).Msg("Failed to copy path to clipboard")
		} else {
			dimColor.Fprintln(c.out, "Path copied to clipboard")
		}
	}
	return nil
}

func (c *Console) devices() error {
	if err := c.ensureInitialized(); err != nil {
		return err
	}

	current := c.session.CurrentDevice()
	fmt.Fprintln(c.out, "Available audio devices:")
	for _, d := range c.session.ListInputDevices() {
		marker := " "
		if d.ID == current.ID {
			marker = "*"
		}
		fmt.Fprintf(c.out, "%s[%d] %s\n", marker, d.Index, d.Name)
	}
	return nil
}

func (c *Console) selectDevice(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: device <n>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid device number %q", args[0])
	}
	if err := c.ensureInitialized(); err != nil {
		return err
	}
	if err := c.session.SelectDevice(n); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Selected device: %s\n", c.session.CurrentDevice().Name)
	return nil
}

func (c *Console) output(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(c.out, "Output file: %s\n", capture.WavPath(c.session.OutputFile()))
		return nil
	}
	c.session.SetOutputFile(strings.Join(args, " "))
	fmt.Fprintf(c.out, "Output file: %s\n", capture.WavPath(c.session.OutputFile()))
	return nil
}

func (c *Console) status() {
	st := c.session.Status()
	if st.State != capture.StateRunning {
		fmt.Fprintln(c.out, "Status: Not capturing")
		if st.RecordedFrames > 0 {
			fmt.Fprintf(c.out, "Last recording: %d frames\n", st.RecordedFrames)
		}
		return
	}

	level, calls := c.meter.Last()
	okColor.Fprintln(c.out, "Status: Capturing audio")
	fmt.Fprintf(c.out, "Backend: %s\n", st.Backend)
	fmt.Fprintf(c.out, "Device: %s\n", st.Device.Name)
	fmt.Fprintf(c.out, "Sample Rate: %d Hz\n", st.SampleRate)
	fmt.Fprintf(c.out, "Channels: %d\n", st.Channels)
	fmt.Fprintf(c.out, "Recorded: %d frames in %d callbacks\n", st.RecordedFrames, calls)
	fmt.Fprintf(c.out, "Level: peak %.3f (%s), rms %.3f\n", level.Peak, formatDB(level.DBFS()), level.RMS)
	if st.DroppedBuffers > 0 {
		warnColor.Fprintf(c.out, "Dropped buffers: %d\n", st.DroppedBuffers)
	}
	fmt.Fprintf(c.out, "Output file: %s\n", capture.WavPath(st.OutputFile))
}

func formatDB(db float64) string {
	if math.IsInf(db, -1) {
		return "-inf dBFS"
	}
	return fmt.Sprintf("%.1f dBFS", db)
}

func (c *Console) help() {
	fmt.Fprintln(c.out, "\nCommands:")
	fmt.Fprintln(c.out, "  start [n]      - Start audio capture (prompts for a device without n)")
	fmt.Fprintln(c.out, "  stop           - Stop capture and save to file")
	fmt.Fprintln(c.out, "  save           - Save the last recording again")
	fmt.Fprintln(c.out, "  devices        - List available audio devices")
	fmt.Fprintln(c.out, "  device <n>     - Select the input device")
	fmt.Fprintln(c.out, "  output [path]  - Show or set the output file")
	fmt.Fprintln(c.out, "  status         - Show current status")
	fmt.Fprintln(c.out, "  help           - Show this help")
	fmt.Fprintln(c.out, "  quit           - Exit program")
}

// readLine returns the next input line. The reader goroutine is started on
// first use and outlives ctx.
func (c *Console) readLine(ctx context.Context) (string, error) {
	c.readerOnce.Do(func() {
		go func() {
			defer close(c.lines)
			scanner := bufio.NewScanner(c.in)
			for scanner.Scan() {
				c.lines <- scanner.Text()
			}
			c.readErr = scanner.Err()
		}()
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			if c.readErr != nil {
				return "", c.readErr
			}
			return "", io.EOF
		}
		return line, nil
	}
}
