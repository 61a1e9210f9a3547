package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// Pactl runs pactl against the PulseAudio server (or pipewire-pulse)
type Pactl struct {
	binary string
	run    func(ctx context.Context, binary string, args ...string) ([]byte, error)
}

// pulseDevice is one entry of `pactl --format=json list sinks|sources`
type pulseDevice struct {
	Index       uint32 `json:"index"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SampleSpec  string `json:"sample_specification"`
}

// NewPactl creates a new Pactl instance
func NewPactl(binary string) *Pactl {
	if binary == "" {
		binary = "pactl"
	}
	return &Pactl{binary: binary, run: runCommand}
}

func runCommand(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s %s: %w (output: %s)", binary, strings.Join(args, " "), err, msg)
		}
		return nil, fmt.Errorf("%s %s: %w", binary, strings.Join(args, " "), err)
	}
	return output, nil
}

// Sinks returns all playback devices
func (p *Pactl) Sinks(ctx context.Context) ([]pulseDevice, error) {
	output, err := p.run(ctx, p.binary, "--format=json", "list", "sinks")
	if err != nil {
		return nil, fmt.Errorf("failed to list sinks: %w", err)
	}
	return parseDevices(output)
}

// Sources returns all capture devices, monitors included
func (p *Pactl) Sources(ctx context.Context) ([]pulseDevice, error) {
	output, err := p.run(ctx, p.binary, "--format=json", "list", "sources")
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return parseDevices(output)
}

// DefaultSink returns the name of the default sink
func (p *Pactl) DefaultSink(ctx context.Context) (string, error) {
	output, err := p.run(ctx, p.binary, "get-default-sink")
	if err != nil {
		return "", fmt.Errorf("failed to read default sink: %w", err)
	}
	name := strings.TrimSpace(string(output))
	if name == "" {
		return "", errors.New("server reported no default sink")
	}
	return name, nil
}

// SetDefaultSink accepts a sink name or index
func (p *Pactl) SetDefaultSink(ctx context.Context, sink string) error {
	if _, err := p.run(ctx, p.binary, "set-default-sink", sink); err != nil {
		return fmt.Errorf("failed to set default sink: %w", err)
	}
	slog.Debug("Default sink set", "sink", sink)
	return nil
}

// Ping reports whether the server answers
func (p *Pactl) Ping(ctx context.Context) error {
	_, err := p.run(ctx, p.binary, "info")
	return err
}

// LoadModule loads a server module and returns its index
func (p *Pactl) LoadModule(ctx context.Context, module string, args ...string) (uint32, error) {
	output, err := p.run(ctx, p.binary, append([]string{"load-module", module}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("failed to load %s: %w", module, err)
	}
	index, err := strconv.ParseUint(strings.TrimSpace(string(output)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("unexpected load-module output %q: %w", strings.TrimSpace(string(output)), err)
	}
	slog.Debug("Loaded module", "module", module, "index", index, "args", strings.Join(args, " "))
	return uint32(index), nil
}

// UnloadModule removes a previously loaded module
func (p *Pactl) UnloadModule(ctx context.Context, index uint32) error {
	if _, err := p.run(ctx, p.binary, "unload-module", strconv.FormatUint(uint64(index), 10)); err != nil {
		return fmt.Errorf("failed to unload module %d: %w", index, err)
	}
	return nil
}

func parseDevices(data []byte) ([]pulseDevice, error) {
	var devices []pulseDevice
	if err := json.Unmarshal(data, &devices); err != nil {
		return nil, fmt.Errorf("failed to parse pactl output: %w", err)
	}
	return devices, nil
}

// channelCount extracts the channel count from a sample spec such as
// "s16le 2ch 44100Hz". Unparseable specs count as zero channels.
func channelCount(sampleSpec string) int {
	for _, field := range strings.Fields(sampleSpec) {
		if n, ok := strings.CutSuffix(field, "ch"); ok {
			if count, err := strconv.Atoi(n); err == nil {
				return count
			}
		}
	}
	return 0
}

// quoteModArg quotes a module argument value for the server's modargs parser
func quoteModArg(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "") + "'"
}

// deviceDescription renders a proplist setting the human readable name
func deviceDescription(name string) string {
	return `"device.description=` + quoteModArg(name) + `"`
}
