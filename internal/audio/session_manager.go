package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
)

const defaultStopTimeout = 10 * time.Second

// Manager owns at most one recording session and drives the
// IDLE -> STARTING -> RECORDING -> STOPPING -> IDLE lifecycle.
//
// Every path out of RECORDING (explicit stop, interrupt signal, capture
// process crash) goes through the same finalization and ends in IDLE.
type Manager struct {
	spawner     CaptureSpawner
	redirector  OutputRedirector
	stopTimeout time.Duration

	mutex       sync.Mutex
	state       State
	session     *session
	lastFailure error

	observerMutex sync.RWMutex
	observers     []Observer
}

type session struct {
	info          SessionInfo
	proc          CaptureProcess
	exited        chan struct{}
	exitErr       error
	stopRequested bool
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithStopTimeout bounds how long Stop waits after SIGINT before killing.
func WithStopTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.stopTimeout = d
		}
	}
}

// WithRedirector sets the default-output redirection applied before capture.
func WithRedirector(r OutputRedirector) ManagerOption {
	return func(m *Manager) { m.redirector = r }
}

// NewManager creates an idle session manager
func NewManager(spawner CaptureSpawner, opts ...ManagerOption) *Manager {
	m := &Manager{
		spawner:     spawner,
		stopTimeout: defaultStopTimeout,
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddObserver registers an observer for session events
func (m *Manager) AddObserver(o Observer) {
	m.observerMutex.Lock()
	defer m.observerMutex.Unlock()
	m.observers = append(m.observers, o)
}

// Start redirects the default output to ep (best effort) and spawns the
// capture process. The returned info carries the capture process id.
func (m *Manager) Start(ctx context.Context, ep Endpoint, outputPath string) (SessionInfo, error) {
	info, ev, err := m.start(ctx, ep, outputPath)
	if ev != nil {
		m.emit(*ev)
	}
	return info, err
}

func (m *Manager) start(ctx context.Context, ep Endpoint, outputPath string) (SessionInfo, *Event, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.state != StateIdle {
		return SessionInfo{}, nil, fmt.Errorf("%w: current state %s", ErrAlreadyRecording, m.state)
	}
	if outputPath == "" {
		return SessionInfo{}, nil, fmt.Errorf("%w: output path is required", ErrUsage)
	}

	m.state = StateStarting

	if m.redirector != nil {
		if err := m.redirector.SetDefault(ctx, ep); err != nil {
			slog.Warn("Could not redirect default output, recording without it", "device", ep.Name, "error", err)
		}
	}

	proc, err := m.spawner.Spawn(ctx, ep, outputPath)
	if err != nil {
		m.state = StateIdle
		err = fmt.Errorf("%w: %w", ErrSpawn, err)
		m.lastFailure = err
		return SessionInfo{}, &Event{Type: EventStartFailed, State: StateIdle, Error: err.Error(), Time: time.Now()}, err
	}

	sess := &session{
		info: SessionInfo{
			Endpoint:   ep,
			OutputPath: outputPath,
			PID:        proc.Pid(),
			StartTime:  time.Now(),
		},
		proc:   proc,
		exited: make(chan struct{}),
	}
	m.session = sess
	m.state = StateRecording
	m.lastFailure = nil

	go m.supervise(sess)

	slog.Info("Recording started", "device", ep.Name, "output", outputPath, "pid", sess.info.PID)
	info := sess.info
	return info, &Event{Type: EventRecordingStarted, State: StateRecording, Session: &info, Time: info.StartTime}, nil
}

// supervise owns the single Wait on the capture process. An exit nobody
// asked for returns the manager to IDLE and records the failure.
func (m *Manager) supervise(sess *session) {
	sess.exitErr = sess.proc.Wait()
	close(sess.exited)

	m.mutex.Lock()
	if m.session != sess || sess.stopRequested {
		m.mutex.Unlock()
		return
	}

	failure := fmt.Errorf("capture process %d exited unexpectedly: %s", sess.info.PID, describeExit(sess.exitErr))
	if d, ok := sess.proc.(interface{ Diagnostics() string }); ok {
		if tail := strings.TrimSpace(d.Diagnostics()); tail != "" {
			failure = fmt.Errorf("%w (last output: %s)", failure, lastLine(tail))
		}
	}
	m.session = nil
	m.state = StateIdle
	m.lastFailure = failure
	info := sess.info
	m.mutex.Unlock()

	slog.Error("Recording failed", "pid", info.PID, "output", info.OutputPath, "error", failure)
	m.emit(Event{Type: EventRecordingFailed, State: StateIdle, Session: &info, Error: failure.Error(), Time: time.Now()})
}

// Stop interrupts the capture process, waits for it to flush its output
// (killing it after the stop timeout) and returns to IDLE.
func (m *Manager) Stop(ctx context.Context) (StopResult, error) {
	m.mutex.Lock()
	if m.state != StateRecording {
		state := m.state
		m.mutex.Unlock()
		return StopResult{}, fmt.Errorf("%w: current state %s", ErrNotRecording, state)
	}
	sess := m.session
	sess.stopRequested = true
	m.state = StateStopping
	info := sess.info
	m.mutex.Unlock()

	m.emit(Event{Type: EventRecordingStopping, State: StateStopping, Session: &info, Time: time.Now()})
	return m.finalize(ctx, sess), nil
}

// Interrupt stops the active session. It is a no-op when nothing is
// recording or a stop is already in progress.
func (m *Manager) Interrupt(ctx context.Context) error {
	_, err := m.Stop(ctx)
	if errors.Is(err, ErrNotRecording) {
		slog.Debug("Interrupt with no active recording")
		return nil
	}
	return err
}

func (m *Manager) finalize(ctx context.Context, sess *session) StopResult {
	pid := sess.info.PID

	slog.Debug("Sending SIGINT to capture process", "pid", pid)
	if err := sess.proc.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		slog.Debug("Failed to interrupt capture process, killing", "pid", pid, "error", err)
		_ = sess.proc.Kill()
	}

	timer := time.NewTimer(m.stopTimeout)
	defer timer.Stop()

	select {
	case <-sess.exited:
	case <-timer.C:
		slog.Warn("Capture process did not exit within timeout, force killing", "pid", pid, "timeout", m.stopTimeout)
		_ = sess.proc.Kill()
		<-sess.exited
	case <-ctx.Done():
		slog.Warn("Stop cancelled, force killing capture process", "pid", pid, "error", ctx.Err())
		_ = sess.proc.Kill()
		<-sess.exited
	}

	if sess.exitErr != nil && !interruptedExit(sess.exitErr) {
		slog.Debug("Capture process exit status", "pid", pid, "status", describeExit(sess.exitErr))
	}

	result := StopResult{
		OutputPath: sess.info.OutputPath,
		Duration:   time.Since(sess.info.StartTime),
	}
	if fileInfo, err := os.Stat(result.OutputPath); err != nil {
		slog.Warn("Recording file not found after stop", "output", result.OutputPath, "error", err)
	} else {
		result.Size = fileInfo.Size()
	}

	m.mutex.Lock()
	if m.session == sess {
		m.session = nil
		m.state = StateIdle
	}
	m.mutex.Unlock()

	slog.Info("Recording stopped", "output", result.OutputPath, "duration", result.Duration.Round(time.Millisecond), "size", result.Size)
	info := sess.info
	m.emit(Event{Type: EventRecordingStopped, State: StateIdle, Session: &info, Result: &result, Time: time.Now()})
	return result
}

// Status returns the current state and a copy of the active session
func (m *Manager) Status() (State, *SessionInfo) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.session == nil {
		return m.state, nil
	}
	info := m.session.info
	return m.state, &info
}

// LastFailure returns the error that ended the most recent session
// abnormally, or nil. It is cleared when a new session starts.
func (m *Manager) LastFailure() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.lastFailure
}

// WatchSignals turns the given signals (SIGINT and SIGTERM by default) into
// Interrupt calls until ctx is done or the returned function is called.
func (m *Manager) WatchSignals(ctx context.Context, signals ...os.Signal) func() {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, signals...)

	done := make(chan struct{})
	go m.handleSignals(ctx, sigChan, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(done)
		})
	}
}

func (m *Manager) handleSignals(ctx context.Context, sigChan <-chan os.Signal, done <-chan struct{}) {
	for {
		select {
		case sig := <-sigChan:
			slog.Info("Signal received, stopping recording", "signal", sig.String())
			if err := m.Interrupt(context.WithoutCancel(ctx)); err != nil {
				slog.Error("Failed to stop recording on signal", "error", err)
			}
		case <-ctx.Done():
			return
		case <-done:
			return
		}
	}
}

func (m *Manager) emit(ev Event) {
	m.observerMutex.RLock()
	observers := append([]Observer(nil), m.observers...)
	m.observerMutex.RUnlock()

	for _, o := range observers {
		o.OnSessionEvent(ev)
	}
}

func describeExit(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
