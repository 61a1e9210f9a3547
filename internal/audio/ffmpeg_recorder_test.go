package audio

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/audiolibrelab/audiobridge/internal/config"
)

func testRecorderConfig() config.RecorderConfig {
	return config.Default().Recorder
}

func TestBuildArgs(t *testing.T) {
	spawner := NewFFmpegSpawner(testRecorderConfig(), nil)

	args := strings.Join(spawner.buildArgs(testEndpoint, "/tmp/recording-1.m4a"), " ")

	for _, want := range []string{
		"-f pulse",
		"-i blackhole_2ch.monitor",
		"-ac 2",
		"-ar 44100",
		"-c:a aac",
		"-b:a 192k",
		"-nostdin",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("Expected %q in %q", want, args)
		}
	}
	if !strings.HasSuffix(args, "-y /tmp/recording-1.m4a") {
		t.Errorf("Expected output path last, got %q", args)
	}
}

func TestBuildArgs_NoBitrate(t *testing.T) {
	cfg := testRecorderConfig()
	cfg.Codec = "flac"
	cfg.Bitrate = ""
	args := strings.Join(NewFFmpegSpawner(cfg, nil).buildArgs(testEndpoint, "out.flac"), " ")

	if strings.Contains(args, "-b:a") {
		t.Errorf("Expected no bitrate flag, got %q", args)
	}
	if !strings.Contains(args, "-c:a flac") {
		t.Errorf("Expected flac codec, got %q", args)
	}
}

func TestCaptureInput(t *testing.T) {
	input := Endpoint{UID: "alsa_input.mic", Name: "Mic", Direction: DirectionInput}
	monitor := Endpoint{UID: "sink.monitor", Name: "Monitor", Direction: DirectionOutput}

	tests := []struct {
		ep     Endpoint
		format string
		want   string
	}{
		{testEndpoint, "pulse", "blackhole_2ch.monitor"},
		{input, "pulse", "alsa_input.mic"},
		{monitor, "pulse", "sink.monitor"},
		{testEndpoint, "avfoundation", ":BlackHole 2ch"},
		{input, "alsa", "alsa_input.mic"},
	}

	for _, tt := range tests {
		if got := captureInput(tt.ep, tt.format); got != tt.want {
			t.Errorf("captureInput(%s, %s) = %q, expected %q", tt.ep.UID, tt.format, got, tt.want)
		}
	}
}

func TestSpawn_MissingBinary(t *testing.T) {
	cfg := testRecorderConfig()
	cfg.FFmpegBinary = "audiobridge-no-such-ffmpeg"

	_, err := NewFFmpegSpawner(cfg, nil).Spawn(context.Background(), testEndpoint, t.TempDir()+"/out.m4a")
	if err == nil || !strings.Contains(err.Error(), "ffmpeg not found") {
		t.Errorf("Expected ffmpeg not found error, got: %v", err)
	}
}

func TestInterruptedExit(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	err := exec.Command("sh", "-c", "exit 255").Run()
	if !interruptedExit(err) {
		t.Errorf("Expected exit 255 to count as interrupted, got: %v", err)
	}

	err = exec.Command("sh", "-c", "exit 1").Run()
	if interruptedExit(err) {
		t.Errorf("Expected exit 1 not to count as interrupted")
	}

	err = exec.Command("sh", "-c", "kill -INT $$").Run()
	if !interruptedExit(err) {
		t.Errorf("Expected SIGINT death to count as interrupted, got: %v", err)
	}

	if interruptedExit(errors.New("plain error")) {
		t.Error("Expected non-exit error not to count as interrupted")
	}
}
