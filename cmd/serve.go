package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/audiolibrelab/audiobridge/internal/metrics"
	"github.com/audiolibrelab/audiobridge/internal/notify"
	"github.com/audiolibrelab/audiobridge/internal/server"
	"github.com/audiolibrelab/audiobridge/internal/service"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the control server",
	Long: `Start the AudioBridge server to control devices and recordings remotely.

Endpoints: /status, /devices, /devices/name/{index}, /aggregate, /default,
/recording/start, /recording/stop, /recordings, /files/, /events (websocket),
/metrics (Prometheus) and /mcp (Model Context Protocol).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("address") {
			cfg.Server.Address, _ = cmd.Flags().GetString("address")
		}

		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m := metrics.NewMetrics(registry)

		svc := newService(m)

		if cfg.MQTT.Enabled {
			publisher, err := notify.NewMQTTPublisher(cfg.MQTT)
			if err != nil {
				return fmt.Errorf("failed to start MQTT notifier: %w", err)
			}
			defer publisher.Disconnect()

			notifier := notify.NewEventNotifier(publisher, cfg.MQTT.Topic)
			defer notifier.Close()
			svc.Subscribe(notifier)
			slog.Info("Publishing session events over MQTT", "broker", cfg.MQTT.Broker, "topic", cfg.MQTT.Topic)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.New(service.NewControlAPI(svc), cfg, m, registry)
		if err := srv.Start(ctx); err != nil {
			return err
		}

		stopActiveRecording(svc)
		return nil
	},
}

// stopActiveRecording finalizes a recording left running at shutdown
func stopActiveRecording(svc *service.BridgeService) {
	status := svc.GetStatus()
	if status.Session == nil {
		return
	}

	slog.Info("Stopping active recording before exit", "pid", status.Session.PID)
	if _, err := svc.StopRecording(context.Background(), 0); err != nil {
		slog.Error("Failed to stop recording on shutdown", "error", err)
	}
}

func init() {
	serveCmd.Flags().Int("port", 0, "port for the server (overrides config)")
	serveCmd.Flags().String("address", "", "listen address (overrides config)")
}
