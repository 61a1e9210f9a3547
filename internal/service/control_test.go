package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/audiolibrelab/audiobridge/internal/audio"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{fmt.Errorf("%w: x", audio.ErrDeviceResolution), KindDeviceResolution},
		{fmt.Errorf("%w: %q: %w", audio.ErrAggregateCreation, "n", errors.New("boom")), KindAggregateCreation},
		{fmt.Errorf("%w: default", audio.ErrPropertyNotSettable), KindPropertyNotSettable},
		{fmt.Errorf("%w: busy", audio.ErrAlreadyRecording), KindAlreadyRecording},
		{fmt.Errorf("%w: %w", audio.ErrSpawn, errors.New("exec")), KindSpawn},
		{audio.ErrIndexOutOfRange, KindIndexOutOfRange},
		{errors.New("something else"), KindInternal},
	}

	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, expected %q", tt.err, got, tt.want)
		}
	}
}

func TestControlAPI_ListDevicesFormats(t *testing.T) {
	svc, _, _ := newTestService(t)
	api := NewControlAPI(svc)
	ctx := context.Background()

	env := api.ListDevices(ctx, audio.DirectionOutput, FormatStructured)
	listing, ok := env.Data.(DeviceListing)
	if !env.OK || !ok || len(listing.Devices) != 2 {
		t.Fatalf("Unexpected structured envelope: %+v", env)
	}

	env = api.ListDevices(ctx, audio.DirectionOutput, FormatHuman)
	listing = env.Data.(DeviceListing)
	if !strings.Contains(listing.Text, "1. MacBook Pro Speakers") || !strings.Contains(listing.Text, "UID: blackhole_2ch") {
		t.Errorf("Unexpected human listing:\n%s", listing.Text)
	}
}

func TestControlAPI_ErrorEnvelope(t *testing.T) {
	svc, _, _ := newTestService(t)
	api := NewControlAPI(svc)

	env := api.CreateAggregate(context.Background(), audio.DirectionOutput, []string{"NonexistentXYZ"}, "Broken")
	if env.OK {
		t.Fatal("Expected failed envelope")
	}
	if env.Kind != KindDeviceResolution {
		t.Errorf("Expected DeviceResolutionError, got %s", env.Kind)
	}
	if !strings.Contains(env.Error, "NonexistentXYZ") {
		t.Errorf("Expected unresolved name in error, got %q", env.Error)
	}
}

func TestControlAPI_StartStopEnvelopes(t *testing.T) {
	svc, _, _ := newTestService(t)
	api := NewControlAPI(svc)
	ctx := context.Background()

	env := api.StartRecording(ctx, "BlackHole", "")
	started, ok := env.Data.(*RecordingStarted)
	if !env.OK || !ok || started.PID == 0 {
		t.Fatalf("Unexpected start envelope: %+v", env)
	}

	env = api.StartRecording(ctx, "BlackHole", "")
	if env.OK || env.Kind != KindAlreadyRecording {
		t.Errorf("Expected AlreadyRecordingError, got %+v", env)
	}

	env = api.StopRecording(ctx, started.PID)
	stopped, ok := env.Data.(*RecordingStopped)
	if !env.OK || !ok || stopped.Path != started.Path {
		t.Errorf("Unexpected stop envelope: %+v", env)
	}
}

func TestControlAPI_StartRecordingFileName(t *testing.T) {
	svc, _, _ := newTestService(t)
	api := NewControlAPI(svc)
	ctx := context.Background()

	for _, name := range []string{"/etc/passwd", "../escape.m4a", "a/b.m4a", `a\b.m4a`, ".", ".."} {
		env := api.StartRecording(ctx, "BlackHole", name)
		if env.OK || env.Kind != KindUsage {
			t.Errorf("%q: expected UsageError, got %+v", name, env)
		}
	}
	if svc.GetStatus().State != audio.StateIdle {
		t.Fatalf("Expected no recording started, got %s", svc.GetStatus().State)
	}

	env := api.StartRecording(ctx, "BlackHole", "interview.m4a")
	started, ok := env.Data.(*RecordingStarted)
	if !env.OK || !ok {
		t.Fatalf("Unexpected start envelope: %+v", env)
	}
	if want := filepath.Join(svc.cfg.Recorder.Directory, "interview.m4a"); started.Path != want {
		t.Errorf("Expected path %s, got %s", want, started.Path)
	}
}

func TestControlAPI_DeviceNameAtIndex(t *testing.T) {
	svc, _, _ := newTestService(t)
	api := NewControlAPI(svc)

	env := api.GetDeviceNameAtIndex(context.Background(), audio.DirectionInput, 0)
	if name, ok := env.Data.(DeviceName); !env.OK || !ok || name.Name != "Built-in Microphone" {
		t.Errorf("Unexpected envelope: %+v", env)
	}

	env = api.GetDeviceNameAtIndex(context.Background(), audio.DirectionInput, 3)
	if env.OK || env.Kind != KindIndexOutOfRange {
		t.Errorf("Expected IndexOutOfRangeError, got %+v", env)
	}
}

func TestFormatDeviceList_Empty(t *testing.T) {
	if got := FormatDeviceList(audio.DirectionInput, nil); got != "No input devices found.\n" {
		t.Errorf("Unexpected empty listing: %q", got)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatStructured {
		t.Errorf("Expected structured default, got %s (%v)", f, err)
	}
	if f, err := ParseFormat("human"); err != nil || f != FormatHuman {
		t.Errorf("Expected human, got %s (%v)", f, err)
	}
	if _, err := ParseFormat("xml"); !errors.Is(err, audio.ErrUsage) {
		t.Errorf("Expected ErrUsage, got: %v", err)
	}
}
