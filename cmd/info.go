package cmd

import (
	"fmt"
	"os/exec"
	"time"

	"github.com/audiolibrelab/audiobridge/internal/audio"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the backend, default output and recording settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend := audio.NewBackend(cfg)
		ctx := cmd.Context()

		fmt.Printf("=== AUDIO ===\n")
		fmt.Printf("backend: %s (available: %v)\n", backend.Type(), audio.GetAvailableBackends())
		fmt.Printf("default output settable: %t\n", backend.IsDefaultOutputSettable(ctx))
		if current, err := audio.NewSwitch(backend).Current(ctx); err != nil {
			fmt.Printf("default output: unknown (%v)\n", err)
		} else {
			fmt.Printf("default output: %s [%s]\n", current.Name, current.UID)
		}

		fmt.Printf("\n=== RECORDER ===\n")
		if path, err := exec.LookPath(cfg.Recorder.FFmpegBinary); err != nil {
			fmt.Printf("ffmpeg: not found (%s)\n", cfg.Recorder.FFmpegBinary)
		} else {
			fmt.Printf("ffmpeg: %s\n", path)
		}
		fmt.Printf("default device: %s\n", cfg.Recorder.DefaultDevice)
		fmt.Printf("restore output: %s\n", cfg.Recorder.RestoreOutput)
		fmt.Printf("next recording: %s\n", cfg.RecordingPath(time.Now()))
		fmt.Printf("stop timeout: %s\n", cfg.Recorder.StopTimeout)

		fmt.Printf("\n=== SERVER ===\n")
		fmt.Printf("listen: %s (mcp: %t)\n", cfg.ListenAddress(), cfg.Server.EnableMCP)
		fmt.Printf("config: %s\n", cfgFile)

		return nil
	},
}
