package audio

import (
	"context"
	"os"
	"time"
)

// State represents the lifecycle state of the session manager
type State string

const (
	StateIdle      State = "IDLE"
	StateStarting  State = "STARTING"
	StateRecording State = "RECORDING"
	StateStopping  State = "STOPPING"
)

// SessionInfo describes the active recording session
type SessionInfo struct {
	Endpoint   Endpoint  `json:"endpoint"`
	OutputPath string    `json:"output_path"`
	PID        int       `json:"pid"`
	StartTime  time.Time `json:"start_time"`
}

// StopResult is returned once a session has been finalized
type StopResult struct {
	OutputPath string        `json:"output_path"`
	Duration   time.Duration `json:"duration"`
	Size       int64         `json:"size"`
}

// EventType names a session lifecycle notification
type EventType string

const (
	EventRecordingStarted  EventType = "recording_started"
	EventRecordingStopping EventType = "recording_stopping"
	EventRecordingStopped  EventType = "recording_stopped"
	EventRecordingFailed   EventType = "recording_failed"
	EventStartFailed       EventType = "start_failed"
)

// Event is delivered to observers after every state transition
type Event struct {
	Type    EventType    `json:"type"`
	State   State        `json:"state"`
	Session *SessionInfo `json:"session,omitempty"`
	Result  *StopResult  `json:"result,omitempty"`
	Error   string       `json:"error,omitempty"`
	Time    time.Time    `json:"time"`
}

// Terminal reports whether the event ends a session.
func (e Event) Terminal() bool {
	return e.Type == EventRecordingStopped || e.Type == EventRecordingFailed || e.Type == EventStartFailed
}

// Observer receives session events. Calls are made outside the manager's
// lock, in transition order, and must not block for long.
type Observer interface {
	OnSessionEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(Event)

func (f ObserverFunc) OnSessionEvent(e Event) { f(e) }

// CaptureProcess is a running capture subprocess. Wait must be called
// exactly once; Signal and Kill may be called after it has returned.
type CaptureProcess interface {
	Pid() int
	Signal(sig os.Signal) error
	Kill() error
	Wait() error
}

// CaptureSpawner launches a capture process recording ep into outputPath.
type CaptureSpawner interface {
	Spawn(ctx context.Context, ep Endpoint, outputPath string) (CaptureProcess, error)
}

// OutputRedirector points the system default output at an endpoint so that
// what the user hears is also routed into the capture device.
type OutputRedirector interface {
	SetDefault(ctx context.Context, ep Endpoint) error
}
