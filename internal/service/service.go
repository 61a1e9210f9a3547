package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/audiobridge/internal/audio"
	"github.com/audiolibrelab/audiobridge/internal/config"
	"github.com/audiolibrelab/audiobridge/internal/metrics"
)

// Service represents the core audio bridge operations shared by the CLI,
// the HTTP server and the MCP tools
type Service interface {
	// Device operations
	ListDevices(ctx context.Context, dir audio.Direction) []audio.Endpoint
	DeviceNameAtIndex(ctx context.Context, dir audio.Direction, index int) (string, error)
	CreateAggregate(ctx context.Context, dir audio.Direction, deviceNames []string, name string) (*AggregateResult, error)
	SetDefault(ctx context.Context, deviceName string) (audio.Endpoint, error)
	RestoreOutput(ctx context.Context) (audio.Endpoint, error)

	// Recording operations
	StartRecording(ctx context.Context, deviceName, outputPath string) (*RecordingStarted, error)
	StopRecording(ctx context.Context, pid int) (*RecordingStopped, error)
	GetStatus() *Status
	ActiveRecordingPath() string
	ListRecordings() ([]RecordingFile, error)
	Subscribe(o audio.Observer)

	// Configuration and diagnostics
	GetConfig() *config.Config
	GetLastError() string
}

// PIDSignaler interrupts a recorder running in another process
type PIDSignaler interface {
	Interrupt(ctx context.Context, pid int) error
}

// Dependencies are the collaborators a service is built from. Spawner and
// Backend are required; the rest are optional.
type Dependencies struct {
	Backend  audio.Backend
	Spawner  audio.CaptureSpawner
	Signaler PIDSignaler
	Metrics  *metrics.Metrics
}

// AggregateResult describes the outcome of an aggregate request
type AggregateResult struct {
	Name      string          `json:"name"`
	Direction audio.Direction `json:"direction"`
	Created   bool            `json:"created"`
	Message   string          `json:"message"`
}

// RecordingStarted is returned when a capture process is running
type RecordingStarted struct {
	PID       int            `json:"pid"`
	Path      string         `json:"path"`
	Device    audio.Endpoint `json:"device"`
	StartTime time.Time      `json:"start_time"`
}

// RecordingStopped is returned once a recording has been stopped. Path is
// empty when the recording belonged to another process.
type RecordingStopped struct {
	PID             int     `json:"pid"`
	Path            string  `json:"path,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Size            int64   `json:"size,omitempty"`
}

// Status is a snapshot of the recording state
type Status struct {
	State       audio.State        `json:"state"`
	Session     *audio.SessionInfo `json:"session,omitempty"`
	LastFailure string             `json:"last_failure,omitempty"`
	LastError   string             `json:"last_error,omitempty"`
	Backend     audio.BackendType  `json:"backend"`
}

// RecordingFile describes a finished recording in the output directory
type RecordingFile struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	ModTime      time.Time `json:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human"`
	FileURL      string    `json:"file_url"`
}

// BridgeService is the main service implementation
type BridgeService struct {
	cfg      *config.Config
	backend  audio.Backend
	catalog  *audio.Catalog
	builder  *audio.Builder
	switcher *audio.Switch
	manager  *audio.Manager
	signaler PIDSignaler
	metrics  *metrics.Metrics
	now      func() time.Time

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a service over the given backend and capture spawner
func New(cfg *config.Config, deps Dependencies) *BridgeService {
	switcher := audio.NewSwitch(deps.Backend)
	manager := audio.NewManager(deps.Spawner,
		audio.WithRedirector(switcher),
		audio.WithStopTimeout(cfg.Recorder.StopTimeout))

	s := &BridgeService{
		cfg:      cfg,
		backend:  deps.Backend,
		catalog:  audio.NewCatalog(deps.Backend),
		builder:  audio.NewBuilder(deps.Backend),
		switcher: switcher,
		manager:  manager,
		signaler: deps.Signaler,
		metrics:  deps.Metrics,
		now:      time.Now,
	}

	if s.metrics != nil {
		manager.AddObserver(s.metrics)
	}
	return s
}

// ListDevices returns the endpoints for a direction; never fails
func (s *BridgeService) ListDevices(ctx context.Context, dir audio.Direction) []audio.Endpoint {
	return s.catalog.List(ctx, dir)
}

// DeviceNameAtIndex returns the name at a zero-based listing position
func (s *BridgeService) DeviceNameAtIndex(ctx context.Context, dir audio.Direction, index int) (string, error) {
	return audio.NameAtIndex(s.catalog.List(ctx, dir), index)
}

// CreateAggregate creates the aggregate unless one with the same name exists
func (s *BridgeService) CreateAggregate(ctx context.Context, dir audio.Direction, deviceNames []string, name string) (*AggregateResult, error) {
	slog.Debug("Service.CreateAggregate called", "direction", dir.String(), "devices", strings.Join(deviceNames, ","), "name", name)

	created, err := s.builder.EnsureAggregate(ctx, dir, deviceNames, name)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to create aggregate device: %v", err))
		return nil, err
	}

	result := &AggregateResult{Name: name, Direction: dir, Created: created}
	if created {
		result.Message = fmt.Sprintf("Created %s aggregate device %q", dir.String(), name)
		if s.metrics != nil {
			s.metrics.RecordAggregateCreated()
		}
	} else {
		result.Message = fmt.Sprintf("Aggregate device %q already exists", name)
	}
	return result, nil
}

// SetDefault switches the default output to the first matching device
func (s *BridgeService) SetDefault(ctx context.Context, deviceName string) (audio.Endpoint, error) {
	ep, err := s.switcher.SetDefaultByNameFragment(ctx, deviceName)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to set default output: %v", err))
		return audio.Endpoint{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordDefaultSwitch()
	}
	return ep, nil
}

// RestoreOutput switches the default output back to the configured device
func (s *BridgeService) RestoreOutput(ctx context.Context) (audio.Endpoint, error) {
	fragment := s.cfg.Recorder.RestoreOutput
	if fragment == "" {
		return audio.Endpoint{}, fmt.Errorf("%w: recorder.restore_output is not configured", audio.ErrUsage)
	}
	return s.switcher.SetDefaultByNameFragment(ctx, fragment)
}

// StartRecording resolves deviceName (the configured default device when
// empty) among outputs, then inputs, and starts capturing it. An empty
// outputPath gets a timestamped name in the output directory.
func (s *BridgeService) StartRecording(ctx context.Context, deviceName, outputPath string) (*RecordingStarted, error) {
	slog.Debug("Service.StartRecording called", "device", deviceName, "output", outputPath)
	s.clearLastError()

	if deviceName == "" {
		deviceName = s.cfg.Recorder.DefaultDevice
	}

	ep, err := s.resolveRecordingTarget(ctx, deviceName)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return nil, err
	}

	if outputPath == "" {
		outputPath = s.cfg.RecordingPath(s.now())
	}

	info, err := s.manager.Start(ctx, ep, outputPath)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return nil, err
	}

	return &RecordingStarted{PID: info.PID, Path: info.OutputPath, Device: info.Endpoint, StartTime: info.StartTime}, nil
}

func (s *BridgeService) resolveRecordingTarget(ctx context.Context, deviceName string) (audio.Endpoint, error) {
	if strings.TrimSpace(deviceName) == "" {
		return audio.Endpoint{}, fmt.Errorf("%w: recording device is required", audio.ErrUsage)
	}
	if ep, ok := audio.FindByFragment(s.catalog.ListOutputs(ctx), deviceName); ok {
		return ep, nil
	}
	if ep, ok := audio.FindByFragment(s.catalog.ListInputs(ctx), deviceName); ok {
		return ep, nil
	}
	return audio.Endpoint{}, fmt.Errorf("%w: no device matches %q", audio.ErrDeviceNotFound, deviceName)
}

// StopRecording stops the recording identified by pid. A pid of zero, or
// the pid of this process's own session, stops the local session; any other
// pid is interrupted through the signaler. The default output is restored
// afterwards.
func (s *BridgeService) StopRecording(ctx context.Context, pid int) (*RecordingStopped, error) {
	slog.Debug("Service.StopRecording called", "pid", pid)

	var stopped *RecordingStopped
	_, session := s.manager.Status()

	switch {
	case session != nil && (pid == 0 || pid == session.PID):
		// stopping must finish even if the caller goes away
		result, err := s.manager.Stop(context.WithoutCancel(ctx))
		if err != nil {
			s.setLastError(fmt.Sprintf("Failed to stop recording: %v", err))
			return nil, err
		}
		stopped = &RecordingStopped{
			PID:             session.PID,
			Path:            result.OutputPath,
			DurationSeconds: result.Duration.Seconds(),
			Size:            result.Size,
		}
	case pid > 0 && s.signaler != nil:
		if err := s.signaler.Interrupt(ctx, pid); err != nil {
			s.setLastError(fmt.Sprintf("Failed to stop recording: %v", err))
			return nil, err
		}
		stopped = &RecordingStopped{PID: pid}
	case pid > 0:
		return nil, fmt.Errorf("%w: no recording with pid %d", audio.ErrNotRecording, pid)
	default:
		return nil, fmt.Errorf("%w: no active recording", audio.ErrNotRecording)
	}

	if _, err := s.RestoreOutput(ctx); err != nil {
		slog.Warn("Could not restore default output", "device", s.cfg.Recorder.RestoreOutput, "error", err)
	}

	s.clearLastError()
	return stopped, nil
}

// GetStatus returns the current recording status
func (s *BridgeService) GetStatus() *Status {
	state, session := s.manager.Status()

	status := &Status{
		State:     state,
		Session:   session,
		LastError: s.GetLastError(),
		Backend:   s.backend.Type(),
	}
	if failure := s.manager.LastFailure(); failure != nil {
		status.LastFailure = failure.Error()
	}
	return status
}

// ActiveRecordingPath returns the cleaned output path of the session in
// progress, or "" when idle.
func (s *BridgeService) ActiveRecordingPath() string {
	_, session := s.manager.Status()
	if session == nil {
		return ""
	}
	return filepath.Clean(session.OutputPath)
}

// ListRecordings returns finished recordings in the output directory,
// newest first. The file of a session in progress is left out.
func (s *BridgeService) ListRecordings() ([]RecordingFile, error) {
	dir := s.cfg.Recorder.Directory

	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RecordingFile{}, nil
		}
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	ext := "." + strings.ToLower(s.cfg.Recorder.Extension)
	active := s.ActiveRecordingPath()
	recordings := []RecordingFile{}

	for _, file := range files {
		if file.IsDir() || strings.ToLower(filepath.Ext(file.Name())) != ext {
			continue
		}
		if active != "" && filepath.Join(dir, file.Name()) == active {
			continue
		}

		info, err := file.Info()
		if err != nil {
			slog.Warn("Failed to get file info", "file", file.Name(), "error", err)
			continue
		}

		recordings = append(recordings, RecordingFile{
			Name:         file.Name(),
			Path:         filepath.Join(dir, file.Name()),
			Size:         info.Size(),
			SizeHuman:    formatBytes(info.Size()),
			ModTime:      info.ModTime(),
			ModTimeHuman: info.ModTime().Format("2006-01-02 15:04:05"),
			FileURL:      "/files/" + file.Name(),
		})
	}

	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].ModTime.After(recordings[j].ModTime)
	})

	return recordings, nil
}

// Subscribe registers an observer for recording session events
func (s *BridgeService) Subscribe(o audio.Observer) {
	s.manager.AddObserver(o)
}

// WatchSignals stops the local session on SIGINT/SIGTERM
func (s *BridgeService) WatchSignals(ctx context.Context) func() {
	return s.manager.WatchSignals(ctx)
}

// GetConfig returns the current configuration
func (s *BridgeService) GetConfig() *config.Config {
	return s.cfg
}

// GetLastError returns the last error message (thread-safe)
func (s *BridgeService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *BridgeService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *BridgeService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
