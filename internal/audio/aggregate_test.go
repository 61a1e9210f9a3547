package audio

import (
	"context"
	"errors"
	"testing"
)

func newTestBuilder(backend *fakeBackend) *Builder {
	b := NewBuilder(backend)
	b.newUID = func() string { return "11111111-2222-3333-4444-555555555555" }
	return b
}

func TestCreateAggregate_AllResolved(t *testing.T) {
	backend := newFakeBackend()
	builder := newTestBuilder(backend)

	err := builder.CreateAggregate(context.Background(), DirectionOutput, []string{"BlackHole", "Speakers"}, "My Multi-Output")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(backend.created) != 1 {
		t.Fatalf("Expected one creation call, got %d", len(backend.created))
	}
	spec := backend.created[0]
	if spec.DisplayName != "My Multi-Output" {
		t.Errorf("Unexpected display name: %s", spec.DisplayName)
	}
	if len(spec.MemberUIDs) != 2 || spec.MemberUIDs[0] != "blackhole_2ch" || spec.MemberUIDs[1] != "alsa_output.pci.analog-stereo" {
		t.Errorf("Unexpected members: %v", spec.MemberUIDs)
	}
	if spec.MasterUID != "blackhole_2ch" {
		t.Errorf("Expected first member as master, got %s", spec.MasterUID)
	}
	if spec.NewUID != "11111111-2222-3333-4444-555555555555" {
		t.Errorf("Unexpected new UID: %s", spec.NewUID)
	}
}

func TestCreateAggregate_UnresolvedFragmentCreatesNothing(t *testing.T) {
	backend := newFakeBackend()
	builder := newTestBuilder(backend)

	err := builder.CreateAggregate(context.Background(), DirectionOutput, []string{"BlackHole", "NonexistentXYZ"}, "Broken")
	if !errors.Is(err, ErrDeviceResolution) {
		t.Fatalf("Expected ErrDeviceResolution, got: %v", err)
	}
	if backend.createdCount() != 0 {
		t.Errorf("Expected no creation call, got %d", backend.createdCount())
	}
}

func TestCreateAggregate_BackendRejection(t *testing.T) {
	backend := newFakeBackend()
	backend.createErr = errors.New("module initialization failed")
	builder := newTestBuilder(backend)

	err := builder.CreateAggregate(context.Background(), DirectionOutput, []string{"BlackHole"}, "Rejected")
	if !errors.Is(err, ErrAggregateCreation) {
		t.Errorf("Expected ErrAggregateCreation, got: %v", err)
	}
}

func TestCreateAggregate_InputDirection(t *testing.T) {
	backend := newFakeBackend()
	builder := newTestBuilder(backend)

	err := builder.CreateAggregate(context.Background(), DirectionInput, []string{"Microphone", "BlackHole"}, "Podcast In")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	spec := backend.created[0]
	if spec.Direction != DirectionInput || spec.MasterUID != "alsa_input.mic" {
		t.Errorf("Unexpected input spec: %+v", spec)
	}
}

func TestCreateAggregate_UsageErrors(t *testing.T) {
	builder := newTestBuilder(newFakeBackend())
	ctx := context.Background()

	if err := builder.CreateAggregate(ctx, DirectionOutput, nil, "Name"); !errors.Is(err, ErrUsage) {
		t.Errorf("Expected ErrUsage for no devices, got: %v", err)
	}
	if err := builder.CreateAggregate(ctx, DirectionOutput, []string{"BlackHole", " "}, "Name"); !errors.Is(err, ErrUsage) {
		t.Errorf("Expected ErrUsage for blank device, got: %v", err)
	}
	if err := builder.CreateAggregate(ctx, DirectionOutput, []string{"BlackHole"}, ""); !errors.Is(err, ErrUsage) {
		t.Errorf("Expected ErrUsage for empty name, got: %v", err)
	}
}

func TestCreateAggregate_DoesNotCheckExistingName(t *testing.T) {
	backend := newFakeBackend()
	builder := newTestBuilder(backend)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := builder.CreateAggregate(ctx, DirectionOutput, []string{"BlackHole"}, "Twice"); err != nil {
			t.Fatalf("Expected no error on call %d, got: %v", i+1, err)
		}
	}
	if backend.createdCount() != 2 {
		t.Errorf("Expected two creation calls, got %d", backend.createdCount())
	}
}

func TestEnsureAggregate_SkipsExistingName(t *testing.T) {
	backend := newFakeBackend()
	builder := newTestBuilder(backend)
	ctx := context.Background()

	created, err := builder.EnsureAggregate(ctx, DirectionOutput, []string{"BlackHole", "Speakers"}, "My Multi-Output")
	if err != nil || !created {
		t.Fatalf("Expected first call to create, got created=%v err=%v", created, err)
	}

	created, err = builder.EnsureAggregate(ctx, DirectionOutput, []string{"BlackHole", "Speakers"}, "My Multi-Output")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if created {
		t.Error("Expected second call to find the existing device")
	}
	if backend.createdCount() != 1 {
		t.Errorf("Expected one creation call, got %d", backend.createdCount())
	}
}

func TestResolve_ReturnsSpecWithoutCreating(t *testing.T) {
	backend := newFakeBackend()
	builder := newTestBuilder(backend)

	spec, err := builder.Resolve(context.Background(), DirectionOutput, []string{"usb"}, "Solo")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if spec.MasterUID != "usb_headphones" {
		t.Errorf("Unexpected master: %s", spec.MasterUID)
	}
	if backend.createdCount() != 0 {
		t.Error("Resolve must not create devices")
	}
}

func TestCreateAggregate_DuplicateFragmentsAddMemberOnce(t *testing.T) {
	backend := newFakeBackend()
	builder := newTestBuilder(backend)

	err := builder.CreateAggregate(context.Background(), DirectionOutput, []string{"BlackHole", "blackhole 2ch", "Speakers"}, "Deduped")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if backend.createdCount() != 1 {
		t.Fatalf("Expected one creation call, got %d", backend.createdCount())
	}
	members := backend.created[0].MemberUIDs
	if len(members) != 2 || members[0] != "blackhole_2ch" || members[1] != "alsa_output.pci.analog-stereo" {
		t.Errorf("Expected each device once in first-match order, got %v", members)
	}
}
