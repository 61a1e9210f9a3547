package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/audiolibrelab/audiobridge/internal/config"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypePulse BackendType = "pulse"
	BackendTypeAuto  BackendType = "auto"
)

// Direction selects the playback (output) or capture (input) side of the device graph.
type Direction int

const (
	DirectionOutput Direction = iota
	DirectionInput
)

func (d Direction) String() string {
	if d == DirectionInput {
		return "input"
	}
	return "output"
}

// MarshalText encodes the direction as "output" or "input".
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts the forms understood by ParseDirection.
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDirection maps "output"/"out" and "input"/"in" to a Direction.
// An empty string means output.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "output", "out":
		return DirectionOutput, nil
	case "input", "in":
		return DirectionInput, nil
	}
	return DirectionOutput, fmt.Errorf("%w: unknown direction %q (expected output or input)", ErrUsage, s)
}

// DeviceInfo is a raw device record as reported by a backend. Streams is the
// number of channels the device exposes in the requested direction.
type DeviceInfo struct {
	ID      uint32
	UID     string
	Name    string
	Streams int
}

// AggregateSpec describes a composite device to be created by the backend.
type AggregateSpec struct {
	Direction   Direction
	MemberUIDs  []string
	MasterUID   string
	DisplayName string
	NewUID      string
}

// Backend is the platform audio system abstraction. Implementations talk to
// the real sound server; tests substitute an in-memory fake.
type Backend interface {
	// EnumerateDevices returns every device known for the direction.
	EnumerateDevices(ctx context.Context, dir Direction) ([]DeviceInfo, error)

	// DefaultOutput returns the current system default playback device.
	DefaultOutput(ctx context.Context) (DeviceInfo, error)

	// SetDefaultOutput makes the device with the given id the system default.
	SetDefaultOutput(ctx context.Context, id uint32) error

	// IsDefaultOutputSettable reports whether the default output can be written.
	IsDefaultOutputSettable(ctx context.Context) bool

	// CreateAggregateDevice creates a composite device and returns its id.
	CreateAggregateDevice(ctx context.Context, spec AggregateSpec) (uint32, error)

	// Type returns the backend type
	Type() BackendType
}

// NewBackend creates the audio backend. config validation only admits
// "auto" and "pulse", and both speak the pulse protocol (pipewire-pulse
// included).
func NewBackend(cfg *config.Config) Backend {
	slog.Debug("Selected audio backend", "configured", cfg.Audio.Backend, "type", BackendTypePulse)
	return NewPulseBackend(cfg.Audio.PactlBinary)
}

// GetAvailableBackends returns list of available backends on current system
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypePulse}
}
