// Package main provides the command-line interface for the real-time audio
// effects loop.
//
// It opens an audio device (a live PortAudio duplex stream, or a WAV file
// replayed through the effect chain), opens a window that draws the latest
// processed block, and prints frame rate and processing latency once per
// second until the window is closed, the input ends or the process is
// interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/opd-ai/fxloop"
	"github.com/opd-ai/fxloop/audio"
	"github.com/opd-ai/fxloop/device"
	"github.com/opd-ai/fxloop/device/pa"
	"github.com/opd-ai/fxloop/display"
	"github.com/opd-ai/fxloop/display/sdlview"
	"github.com/opd-ai/fxloop/stats"
	"github.com/sirupsen/logrus"
)

func init() {
	// SDL event handling and rendering must stay on the main thread.
	runtime.LockOSThread()
}

// CLIConfig holds command-line settings.
type CLIConfig struct {
	configPath string

	sampleRate int
	channels   int
	blockSize  int
	effects    string
	gain       float64
	agcTarget  float64
	carryOver  bool

	input  string
	output string
	paced  bool

	headless bool
	view     string
	fps      int
	duration time.Duration

	logLevel        string
	logFile         string
	detailedLogging bool
	help            bool

	// flags given explicitly on the command line
	set map[string]bool
}

// parseCLIFlags parses args into a CLIConfig.
func parseCLIFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	defaults := fxloop.NewOptions()
	config := &CLIConfig{set: make(map[string]bool)}

	fs.StringVar(&config.configPath, "config", "", "YAML options file")

	// Stream configuration
	fs.IntVar(&config.sampleRate, "sample-rate", defaults.SampleRate, "Sample rate in Hz")
	fs.IntVar(&config.channels, "channels", defaults.Channels, "Number of interleaved channels")
	fs.IntVar(&config.blockSize, "block-size", defaults.BlockSize, "Frames per device callback")

	// Effect configuration
	fs.StringVar(&config.effects, "effects", strings.Join(defaults.EffectChain, ","), "Comma-separated effect chain, applied in order")
	fs.Float64Var(&config.gain, "gain", defaults.Gain, "Linear gain for the gain effect (0-4)")
	fs.Float64Var(&config.agcTarget, "auto-gain-target", defaults.AutoGainTarget, "Peak level the auto_gain effect steers toward (0-1]")
	fs.BoolVar(&config.carryOver, "reverb-carry-over", defaults.ReverbCarryOver, "Keep reverb feedback across blocks")

	// Device configuration
	fs.StringVar(&config.input, "input", "", "Replay this 16-bit WAV file instead of the live device")
	fs.StringVar(&config.output, "output", "", "Write processed audio to this WAV file (with -input)")
	fs.BoolVar(&config.paced, "paced", true, "Deliver file blocks in real time (with -input)")

	// Display configuration
	fs.BoolVar(&config.headless, "headless", false, "Run without a window")
	fs.StringVar(&config.view, "view", defaults.View, "Window view: waveform or spectrum")
	fs.IntVar(&config.fps, "fps", defaults.TargetFPS, "Target render frame rate")
	fs.DurationVar(&config.duration, "duration", 0, "Stop after this long (0 = until quit)")

	// Logging configuration
	fs.StringVar(&config.logLevel, "log-level", "INFO", "Log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	fs.StringVar(&config.logFile, "log-file", "", "Log file path (default: stderr)")
	fs.BoolVar(&config.detailedLogging, "detailed-logging", defaults.DetailedLogging, "Trace every audio block (affects latency)")

	fs.BoolVar(&config.help, "help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { config.set[f.Name] = true })
	return config, nil
}

// printUsage prints the usage information.
func printUsage(fs *flag.FlagSet) {
	fmt.Println("fxloop - real-time audio effects loop")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options]\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	fs.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  # Live duplex stream with the default chain\n")
	fmt.Printf("  %s\n", os.Args[0])
	fmt.Println()
	fmt.Printf("  # Process a file offline without a window\n")
	fmt.Printf("  %s -input in.wav -output out.wav -paced=false -headless\n", os.Args[0])
	fmt.Println()
	fmt.Printf("  # Level the input and watch its spectrum\n")
	fmt.Printf("  %s -effects auto_gain,reverb -view spectrum\n", os.Args[0])
}

// buildOptions loads the options file, if any, and applies explicitly set
// flags on top of it.
func buildOptions(config *CLIConfig) (*fxloop.Options, error) {
	opts := fxloop.NewOptions()
	if config.configPath != "" {
		loaded, err := fxloop.LoadOptions(config.configPath)
		if err != nil {
			return nil, err
		}
		opts = loaded
	}

	if config.set["sample-rate"] {
		opts.SampleRate = config.sampleRate
	}
	if config.set["channels"] {
		opts.Channels = config.channels
	}
	if config.set["block-size"] {
		opts.BlockSize = config.blockSize
	}
	if config.set["effects"] {
		opts.EffectChain = splitEffects(config.effects)
	}
	if config.set["gain"] {
		opts.Gain = config.gain
	}
	if config.set["auto-gain-target"] {
		opts.AutoGainTarget = config.agcTarget
	}
	if config.set["reverb-carry-over"] {
		opts.ReverbCarryOver = config.carryOver
	}
	if config.set["view"] {
		opts.View = config.view
	}
	if config.set["fps"] {
		opts.TargetFPS = config.fps
	}
	if config.set["detailed-logging"] {
		opts.DetailedLogging = config.detailedLogging
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func splitEffects(list string) []string {
	var ids []string
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// setupLogging configures the standard logrus logger. The returned closer
// closes the log file, if one was opened.
func setupLogging(level, file string) (io.Closer, error) {
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(parsed)

	if file == "" {
		return io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logrus.SetOutput(f)
	return f, nil
}

// openDevice opens the file or live device. done is closed when a file
// device runs out of input; it is nil for the live device.
func openDevice(config *CLIConfig, opts *fxloop.Options, proc device.BlockProcessor) (device.Device, <-chan struct{}, error) {
	if config.input != "" {
		dev, err := device.OpenFile(proc, device.FileConfig{
			InputPath:  config.input,
			OutputPath: config.output,
			BlockSize:  opts.BlockSize,
			SampleRate: opts.SampleRate,
			Channels:   opts.Channels,
			Paced:      config.paced,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := dev.Start(); err != nil {
			_ = dev.Close()
			return nil, nil, err
		}
		return dev, dev.Done(), nil
	}

	dev, err := pa.Open(proc, pa.Config{
		SampleRate: opts.SampleRate,
		Channels:   opts.Channels,
		BlockSize:  opts.BlockSize,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := dev.Start(); err != nil {
		_ = dev.Close()
		return nil, nil, err
	}
	return dev, nil, nil
}

func openSurface(config *CLIConfig, opts *fxloop.Options) (display.Surface, error) {
	if config.headless {
		return display.NewHeadlessSurface(), nil
	}
	view, err := display.ParseView(opts.View)
	if err != nil {
		return nil, err
	}
	return sdlview.Open("fxloop", opts.WindowWidth, opts.WindowHeight, view)
}

// run executes one session. Shutdown stops the device before the engine
// is closed.
func run(ctx context.Context, config *CLIConfig, out io.Writer) (err error) {
	opts, err := buildOptions(config)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	opts.Sink = stats.NewWriterSink(out)

	engine, err := fxloop.New(opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := engine.Close(); err == nil {
			err = closeErr
		}
	}()

	surface, err := openSurface(config, opts)
	if err != nil {
		return err
	}
	defer surface.Close()

	dev, inputDone, err := openDevice(config, opts, engine.Processor())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := dev.Close(); err == nil {
			err = closeErr
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if config.duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, config.duration)
		defer cancel()
	}
	if inputDone != nil {
		go func() {
			select {
			case <-inputDone:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	loop, err := display.NewLoop(engine.Processor(), engine.Reporter(), surface, display.LoopConfig{
		Channels:      opts.Channels,
		BlockSize:     opts.BlockSize,
		FrameInterval: opts.FrameInterval(),
	})
	if err != nil {
		return err
	}

	runErr := loop.Run(ctx)
	if stopErr := dev.Stop(); runErr == nil {
		runErr = stopErr
	}
	if f, ok := dev.(*device.FileDevice); ok && runErr == nil {
		runErr = f.Err()
	}

	s := engine.Processor().Stats().Snapshot()
	logrus.WithFields(logrus.Fields{
		"function":        "run",
		"frames":          loop.Frames(),
		"blocks":          s.Blocks,
		"short_blocks":    s.ShortBlocks,
		"effect_failures": s.EffectFailures,
	}).Info("Session finished")

	return runErr
}

// setupSignalHandling cancels ctx on interrupt or terminate signals.
func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logrus.WithFields(logrus.Fields{
			"function": "setupSignalHandling",
			"signal":   sig.String(),
		}).Info("Received signal, shutting down")
		cancel()
	}()
}

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	config, err := parseCLIFlags(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if config.help {
		printUsage(fs)
		os.Exit(0)
	}

	logCloser, err := setupLogging(config.logLevel, config.logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	if err := run(ctx, config, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, audio.ErrDeviceInit) {
			fmt.Fprintln(os.Stderr, "Check that an audio device is available, or use -input.")
		}
		logCloser.Close()
		os.Exit(1)
	}
}
