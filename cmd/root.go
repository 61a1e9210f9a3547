package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/audiolibrelab/audiobridge/internal/audio"
	"github.com/audiolibrelab/audiobridge/internal/config"
	"github.com/audiolibrelab/audiobridge/internal/metrics"
	"github.com/audiolibrelab/audiobridge/internal/service"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "audiobridge",
	Short: "Audio device routing and recording tool",
	Long: `AudioBridge lists audio devices, combines them into aggregate devices,
switches the default output and records any device to a file with ffmpeg.

The same operations are available remotely through 'audiobridge serve'
(HTTP, websocket events and MCP tools).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)

		if cfgFile == "" {
			cfgFile = config.DefaultPath()
		}

		// config init writes the file, it must not need one
		if cmd.Name() == "init" {
			cfg = config.Default()
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("%w: failed to load config: %w", audio.ErrUsage, err)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/audiobridge.yaml)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=ffmpeg output")

	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(createMultiOutputCmd)
	rootCmd.AddCommand(createMultiInputCmd)
	rootCmd.AddCommand(setDefaultCmd)
	rootCmd.AddCommand(deviceNameCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(infoCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	slog.SetDefault(slog.New(handler))
}

// ffmpegLogWriter returns where ffmpeg stderr lines are copied, if anywhere
func ffmpegLogWriter() io.Writer {
	if verboseLevel >= 2 {
		return os.Stderr
	}
	return nil
}

// newService wires the configured backend, ffmpeg spawner and pid signaler.
// m may be nil.
func newService(m *metrics.Metrics) *service.BridgeService {
	deps := service.Dependencies{
		Backend:  audio.NewBackend(cfg),
		Spawner:  audio.NewFFmpegSpawner(cfg.Recorder, ffmpegLogWriter()),
		Signaler: audio.NewProcessSignaler(cfg.Recorder.FFmpegBinary, os.Args[0]),
		Metrics:  m,
	}

	slog.Debug("Creating service", "backend", deps.Backend.Type(), "config", cfgFile)
	return service.New(cfg, deps)
}
