package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeBackend is an in-memory device graph
type fakeBackend struct {
	mutex sync.Mutex

	outputs      []DeviceInfo
	inputs       []DeviceInfo
	enumerateErr error

	defaultID   uint32
	notSettable bool
	setErr      error
	setCalls    []uint32

	createErr error
	created   []AggregateSpec
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		outputs: []DeviceInfo{
			{ID: 1, UID: "alsa_output.pci.analog-stereo", Name: "MacBook Pro Speakers", Streams: 2},
			{ID: 2, UID: "blackhole_2ch", Name: "BlackHole 2ch", Streams: 2},
			{ID: 3, UID: "usb_headphones", Name: "USB Headphones", Streams: 2},
			{ID: 4, UID: "hdmi_unplugged", Name: "HDMI Output", Streams: 0},
		},
		inputs: []DeviceInfo{
			{ID: 10, UID: "alsa_input.mic", Name: "Built-in Microphone", Streams: 1},
			{ID: 11, UID: "blackhole_2ch_in", Name: "BlackHole 2ch", Streams: 2},
		},
		defaultID: 1,
	}
}

func (b *fakeBackend) EnumerateDevices(ctx context.Context, dir Direction) ([]DeviceInfo, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.enumerateErr != nil {
		return nil, b.enumerateErr
	}
	if dir == DirectionInput {
		return append([]DeviceInfo(nil), b.inputs...), nil
	}
	return append([]DeviceInfo(nil), b.outputs...), nil
}

func (b *fakeBackend) DefaultOutput(ctx context.Context) (DeviceInfo, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for _, d := range b.outputs {
		if d.ID == b.defaultID {
			return d, nil
		}
	}
	return DeviceInfo{}, fmt.Errorf("no device %d", b.defaultID)
}

func (b *fakeBackend) SetDefaultOutput(ctx context.Context, id uint32) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.setCalls = append(b.setCalls, id)
	if b.setErr != nil {
		return b.setErr
	}
	b.defaultID = id
	return nil
}

func (b *fakeBackend) IsDefaultOutputSettable(ctx context.Context) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return !b.notSettable
}

func (b *fakeBackend) CreateAggregateDevice(ctx context.Context, spec AggregateSpec) (uint32, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.created = append(b.created, spec)
	if b.createErr != nil {
		return 0, b.createErr
	}
	id := uint32(100 + len(b.created))
	info := DeviceInfo{ID: id, UID: spec.NewUID, Name: spec.DisplayName, Streams: 2}
	if spec.Direction == DirectionInput {
		b.inputs = append(b.inputs, info)
	} else {
		b.outputs = append(b.outputs, info)
	}
	return id, nil
}

func (b *fakeBackend) Type() BackendType { return "fake" }

func (b *fakeBackend) createdCount() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.created)
}

// fakeProcess is a capture process controlled by the test
type fakeProcess struct {
	pid int

	// ignoreInterrupt keeps the process running after SIGINT
	ignoreInterrupt bool
	// goneBeforeSignal makes the process exit on its own just as it is
	// signalled, so Signal reports os.ErrProcessDone
	goneBeforeSignal bool

	mutex   sync.Mutex
	signals []os.Signal
	killed  bool

	once   sync.Once
	exitCh chan error
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, exitCh: make(chan error, 1)}
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Signal(sig os.Signal) error {
	p.mutex.Lock()
	p.signals = append(p.signals, sig)
	ignore := p.ignoreInterrupt
	gone := p.goneBeforeSignal
	p.mutex.Unlock()

	if gone {
		p.exit(nil)
		return os.ErrProcessDone
	}
	if !ignore {
		p.exit(nil)
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mutex.Lock()
	p.killed = true
	p.mutex.Unlock()
	p.exit(errors.New("signal: killed"))
	return nil
}

func (p *fakeProcess) Wait() error {
	return <-p.exitCh
}

// exit makes Wait return err; only the first call has an effect
func (p *fakeProcess) exit(err error) {
	p.once.Do(func() { p.exitCh <- err })
}

func (p *fakeProcess) signalCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.signals)
}

func (p *fakeProcess) wasKilled() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.killed
}

// fakeSpawner hands out fakeProcesses and writes a small output file
type fakeSpawner struct {
	mutex     sync.Mutex
	spawnErr  error
	ignoreInt bool
	goneInt   bool
	spawned   []*fakeProcess
	paths     []string
	endpoints []Endpoint
}

func (s *fakeSpawner) Spawn(ctx context.Context, ep Endpoint, outputPath string) (CaptureProcess, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.spawnErr != nil {
		return nil, s.spawnErr
	}
	if err := os.WriteFile(outputPath, make([]byte, 2048), 0644); err != nil {
		return nil, err
	}

	proc := newFakeProcess(4000 + len(s.spawned))
	proc.ignoreInterrupt = s.ignoreInt
	proc.goneBeforeSignal = s.goneInt
	s.spawned = append(s.spawned, proc)
	s.paths = append(s.paths, outputPath)
	s.endpoints = append(s.endpoints, ep)
	return proc, nil
}

func (s *fakeSpawner) count() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.spawned)
}

func (s *fakeSpawner) last() *fakeProcess {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.spawned[len(s.spawned)-1]
}

// eventRecorder collects session events
type eventRecorder struct {
	mutex  sync.Mutex
	events []Event
}

func (r *eventRecorder) OnSessionEvent(e Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) types() []EventType {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	types := make([]EventType, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}

func (r *eventRecorder) waitFor(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(r.types()) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %d events, got %v", n, r.types())
}

func outputPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "recording-1.m4a")
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if state, _ := m.Status(); state == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	state, _ := m.Status()
	t.Fatalf("Expected state %s, still %s", want, state)
}
