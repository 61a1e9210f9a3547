package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error for missing config file, got: %v", err)
	}

	if cfg.Server.Port != 3005 {
		t.Errorf("Expected default port 3005, got: %d", cfg.Server.Port)
	}
	if cfg.Recorder.SampleRate != 44100 || cfg.Recorder.Channels != 2 {
		t.Errorf("Expected 44100Hz stereo, got: %dHz %dch", cfg.Recorder.SampleRate, cfg.Recorder.Channels)
	}
	if cfg.Recorder.Codec != "aac" || cfg.Recorder.Extension != "m4a" {
		t.Errorf("Expected aac/m4a, got: %s/%s", cfg.Recorder.Codec, cfg.Recorder.Extension)
	}
	if cfg.Recorder.StopTimeout != 10*time.Second {
		t.Errorf("Expected 10s stop timeout, got: %s", cfg.Recorder.StopTimeout)
	}
	if cfg.Recorder.RestoreOutput != "Speaker" {
		t.Errorf("Expected restore output 'Speaker', got: %q", cfg.Recorder.RestoreOutput)
	}
	if strings.HasPrefix(cfg.Recorder.Directory, "~") {
		t.Errorf("Expected output directory to be expanded, got: %s", cfg.Recorder.Directory)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	configFile := createTempConfig(t, `
audio:
  backend: pulse
recorder:
  codec: flac
  extension: flac
  sample_rate: 48000
  stop_timeout: 3s
  output_directory: /tmp/audiobridge-test
server:
  port: 8080
`)
	defer os.Remove(configFile)

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Audio.Backend != "pulse" {
		t.Errorf("Expected backend pulse, got: %s", cfg.Audio.Backend)
	}
	if cfg.Recorder.Codec != "flac" || cfg.Recorder.SampleRate != 48000 {
		t.Errorf("Expected flac at 48000, got: %s at %d", cfg.Recorder.Codec, cfg.Recorder.SampleRate)
	}
	if cfg.Recorder.StopTimeout != 3*time.Second {
		t.Errorf("Expected 3s stop timeout, got: %s", cfg.Recorder.StopTimeout)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got: %d", cfg.Server.Port)
	}
	// untouched keys keep their defaults
	if cfg.Recorder.Channels != 2 {
		t.Errorf("Expected default channels 2, got: %d", cfg.Recorder.Channels)
	}
	if cfg.Server.Address != "127.0.0.1" {
		t.Errorf("Expected default address, got: %s", cfg.Server.Address)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("AUDIOBRIDGE_SERVER_PORT", "4000")
	t.Setenv("AUDIOBRIDGE_RECORDER_DEFAULT_DEVICE", "Loopback Audio")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Expected port 4000 from environment, got: %d", cfg.Server.Port)
	}
	if cfg.Recorder.DefaultDevice != "Loopback Audio" {
		t.Errorf("Expected default device from environment, got: %q", cfg.Recorder.DefaultDevice)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	configFile := createTempConfig(t, "recorder: [unclosed\n")
	defer os.Remove(configFile)

	if _, err := Load(configFile); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestRecordingPath(t *testing.T) {
	cfg := Default()
	cfg.Recorder.Directory = "/recordings"

	at := time.UnixMilli(1700000000123)
	got := cfg.RecordingPath(at)
	if got != "/recordings/recording-1700000000123.m4a" {
		t.Errorf("Unexpected recording path: %s", got)
	}

	cfg.Recorder.FilePrefix = ""
	got = cfg.RecordingPath(at)
	if got != "/recordings/1700000000123.m4a" {
		t.Errorf("Unexpected recording path without prefix: %s", got)
	}
}

func TestWriteFile_RoundTripsThroughLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audiobridge.yaml")

	cfg := Default()
	cfg.Server.Port = 9999
	cfg.Recorder.StopTimeout = 7 * time.Second
	if err := cfg.WriteFile(path, false); err != nil {
		t.Fatalf("Expected no error writing config, got: %v", err)
	}

	if err := cfg.WriteFile(path, false); err == nil {
		t.Error("Expected error when file exists and overwrite is false")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Expected written config to load, got: %v", err)
	}
	if loaded.Server.Port != 9999 || loaded.Recorder.StopTimeout != 7*time.Second {
		t.Errorf("Expected port 9999 and 7s timeout, got %d and %s", loaded.Server.Port, loaded.Recorder.StopTimeout)
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/Music/audiobridge", filepath.Join(homeDir, "Music", "audiobridge")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"~", "~"}, // Should not expand bare tilde
	}

	for _, test := range tests {
		result := expandPath(test.input)
		if result != test.expected {
			t.Errorf("expandPath(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}
