package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/audiobridge/internal/audio"
)

// ErrorKind is the machine-readable name of a failure class
type ErrorKind string

const (
	KindUsage               ErrorKind = "UsageError"
	KindDeviceResolution    ErrorKind = "DeviceResolutionError"
	KindAggregateCreation   ErrorKind = "AggregateCreationError"
	KindPropertyNotSettable ErrorKind = "PropertyNotSettableError"
	KindBackend             ErrorKind = "BackendError"
	KindDeviceNotFound      ErrorKind = "DeviceNotFoundError"
	KindIndexOutOfRange     ErrorKind = "IndexOutOfRangeError"
	KindAlreadyRecording    ErrorKind = "AlreadyRecordingError"
	KindNotRecording        ErrorKind = "NotRecordingError"
	KindSpawn               ErrorKind = "SpawnError"
	KindInternal            ErrorKind = "InternalError"
)

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{audio.ErrDeviceResolution, KindDeviceResolution},
	{audio.ErrAggregateCreation, KindAggregateCreation},
	{audio.ErrPropertyNotSettable, KindPropertyNotSettable},
	{audio.ErrDeviceNotFound, KindDeviceNotFound},
	{audio.ErrIndexOutOfRange, KindIndexOutOfRange},
	{audio.ErrAlreadyRecording, KindAlreadyRecording},
	{audio.ErrNotRecording, KindNotRecording},
	{audio.ErrSpawn, KindSpawn},
	{audio.ErrBackend, KindBackend},
	{audio.ErrUsage, KindUsage},
}

// KindOf classifies err. Unclassified errors are internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Envelope is the uniform result shape of every control operation
type Envelope struct {
	OK    bool      `json:"ok"`
	Kind  ErrorKind `json:"kind,omitempty"`
	Error string    `json:"error,omitempty"`
	Data  any       `json:"data,omitempty"`
}

// Result wraps an operation outcome in an Envelope
func Result(data any, err error) Envelope {
	if err != nil {
		return Envelope{OK: false, Kind: KindOf(err), Error: err.Error()}
	}
	return Envelope{OK: true, Data: data}
}

// Format selects how a device listing is rendered
type Format string

const (
	FormatStructured Format = "structured"
	FormatHuman      Format = "human"
)

// ParseFormat accepts structured/json and human/text; empty is structured
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "structured", "json":
		return FormatStructured, nil
	case "human", "text":
		return FormatHuman, nil
	}
	return "", fmt.Errorf("%w: unknown format %q (expected structured or human)", audio.ErrUsage, s)
}

// DeviceListing is the data of a ListDevices envelope
type DeviceListing struct {
	Direction audio.Direction  `json:"direction"`
	Devices   []audio.Endpoint `json:"devices,omitempty"`
	Text      string           `json:"text,omitempty"`
}

// DeviceName is the data of a GetDeviceNameAtIndex envelope
type DeviceName struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// ControlAPI exposes the service through envelopes for remote transports
type ControlAPI struct {
	svc Service
}

// NewControlAPI creates a control facade over svc
func NewControlAPI(svc Service) *ControlAPI {
	return &ControlAPI{svc: svc}
}

// Service returns the wrapped service
func (c *ControlAPI) Service() Service {
	return c.svc
}

func (c *ControlAPI) ListDevices(ctx context.Context, dir audio.Direction, format Format) Envelope {
	devices := c.svc.ListDevices(ctx, dir)
	if format == FormatHuman {
		return Result(DeviceListing{Direction: dir, Text: FormatDeviceList(dir, devices)}, nil)
	}
	return Result(DeviceListing{Direction: dir, Devices: devices}, nil)
}

func (c *ControlAPI) CreateAggregate(ctx context.Context, dir audio.Direction, deviceNames []string, name string) Envelope {
	return Result(c.svc.CreateAggregate(ctx, dir, deviceNames, name))
}

func (c *ControlAPI) SetDefault(ctx context.Context, deviceName string) Envelope {
	ep, err := c.svc.SetDefault(ctx, deviceName)
	return Result(ep, err)
}

// StartRecording takes a bare file name, or none for a generated one. The
// file is always created in the configured output directory.
func (c *ControlAPI) StartRecording(ctx context.Context, deviceName, fileName string) Envelope {
	path, err := recordingFilePath(c.svc.GetConfig().Recorder.Directory, fileName)
	if err != nil {
		return Result(nil, err)
	}
	return Result(c.svc.StartRecording(ctx, deviceName, path))
}

// recordingFilePath joins a client supplied file name onto dir. An empty
// name yields an empty path.
func recordingFilePath(dir, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	if name == "." || name == ".." || filepath.IsAbs(name) || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: output must be a file name without a directory: %q", audio.ErrUsage, name)
	}
	return filepath.Join(dir, name), nil
}

func (c *ControlAPI) StopRecording(ctx context.Context, pid int) Envelope {
	return Result(c.svc.StopRecording(ctx, pid))
}

func (c *ControlAPI) GetDeviceNameAtIndex(ctx context.Context, dir audio.Direction, index int) Envelope {
	name, err := c.svc.DeviceNameAtIndex(ctx, dir, index)
	if err != nil {
		return Result(nil, err)
	}
	return Result(DeviceName{Index: index, Name: name}, nil)
}

func (c *ControlAPI) Status(ctx context.Context) Envelope {
	return Result(c.svc.GetStatus(), nil)
}

func (c *ControlAPI) ListRecordings(ctx context.Context) Envelope {
	return Result(c.svc.ListRecordings())
}

// FormatDeviceList renders a numbered listing for terminals
func FormatDeviceList(dir audio.Direction, devices []audio.Endpoint) string {
	if len(devices) == 0 {
		return fmt.Sprintf("No %s devices found.\n", dir.String())
	}

	var b strings.Builder
	title := fmt.Sprintf("Available Audio %s Devices:", strings.ToUpper(dir.String()[:1])+dir.String()[1:])
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("=", len(title)) + "\n")
	for i, d := range devices {
		fmt.Fprintf(&b, "%d. %s\n", i+1, d.Name)
		fmt.Fprintf(&b, "   UID: %s\n", d.UID)
		fmt.Fprintf(&b, "   ID: %d\n", d.ID)
		if i < len(devices)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
