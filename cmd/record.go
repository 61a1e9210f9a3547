package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/audiolibrelab/audiobridge/internal/audio"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record [device] [output]",
	Short: "Record a device to a file until interrupted",
	Long: `Record an output or input device with ffmpeg. The default output is
redirected to the device while recording and restored afterwards.

The device defaults to recorder.default_device and the output file to a
timestamped file in recorder.output_directory. Press Ctrl+C, or run
'audiobridge stop <pid>' with the pid printed at start, to finish.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var device, output string
		if len(args) > 0 {
			device = args[0]
		}
		if len(args) > 1 {
			output = args[1]
		}
		if o, _ := cmd.Flags().GetString("output"); o != "" {
			output = o
		}

		ctx := cmd.Context()
		svc := newService(nil)

		finished := make(chan audio.Event, 1)
		svc.Subscribe(audio.ObserverFunc(func(e audio.Event) {
			if e.Terminal() {
				select {
				case finished <- e:
				default:
				}
			}
		}))

		slog.Debug("Record command started", "device", device, "output", output)
		started, err := svc.StartRecording(ctx, device, output)
		if err != nil {
			if errors.Is(err, audio.ErrDeviceNotFound) {
				return withExitCode(exitTargetNotFound, err)
			}
			return err
		}

		stopWatching := svc.WatchSignals(ctx)
		defer stopWatching()

		fmt.Printf("Recording %s to %s\n", started.Device.Name, started.Path)
		fmt.Printf("PID: %d (capture process %d)\n", os.Getpid(), started.PID)
		fmt.Printf("Press Ctrl+C or run 'audiobridge stop %d' to finish\n", os.Getpid())

		ev := <-finished

		if _, err := svc.RestoreOutput(ctx); err != nil {
			slog.Warn("Could not restore default output", "device", cfg.Recorder.RestoreOutput, "error", err)
		}

		if ev.Type != audio.EventRecordingStopped {
			return fmt.Errorf("recording failed: %s", ev.Error)
		}

		fmt.Printf("Saved %s (%s, %d bytes)\n", ev.Result.OutputPath, ev.Result.Duration.Round(time.Second), ev.Result.Size)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <pid>",
	Short: "Stop a recording started by 'audiobridge record'",
	Long: `Send an interrupt to the recording process with the given pid and
restore the default output. The pid is the one printed by 'audiobridge record'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var pid int
		if _, err := fmt.Sscanf(args[0], "%d", &pid); err != nil || pid <= 0 {
			return fmt.Errorf("%w: pid must be a positive integer: %s", audio.ErrUsage, args[0])
		}

		if _, err := newService(nil).StopRecording(cmd.Context(), pid); err != nil {
			return err
		}
		fmt.Printf("Stop signal sent to %d\n", pid)
		return nil
	},
}

func init() {
	recordCmd.Flags().StringP("output", "o", "", "output file (overrides the generated name)")
}
