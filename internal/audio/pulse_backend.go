package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// PulseBackend implements Backend on top of pactl. Sinks are the output
// side of the graph and sources the input side.
type PulseBackend struct {
	pactl *Pactl
}

// NewPulseBackend creates a backend driving the given pactl binary
func NewPulseBackend(pactlBinary string) *PulseBackend {
	return &PulseBackend{pactl: NewPactl(pactlBinary)}
}

func (b *PulseBackend) Type() BackendType {
	return BackendTypePulse
}

func (b *PulseBackend) EnumerateDevices(ctx context.Context, dir Direction) ([]DeviceInfo, error) {
	var devices []pulseDevice
	var err error
	if dir == DirectionInput {
		devices, err = b.pactl.Sources(ctx)
	} else {
		devices, err = b.pactl.Sinks(ctx)
	}
	if err != nil {
		return nil, err
	}

	infos := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		infos = append(infos, toDeviceInfo(d))
	}
	return infos, nil
}

func (b *PulseBackend) DefaultOutput(ctx context.Context) (DeviceInfo, error) {
	name, err := b.pactl.DefaultSink(ctx)
	if err != nil {
		return DeviceInfo{}, err
	}

	sinks, err := b.pactl.Sinks(ctx)
	if err != nil {
		return DeviceInfo{}, err
	}
	for _, sink := range sinks {
		if sink.Name == name {
			return toDeviceInfo(sink), nil
		}
	}
	return DeviceInfo{}, fmt.Errorf("default sink %q is not in the sink list", name)
}

func (b *PulseBackend) SetDefaultOutput(ctx context.Context, id uint32) error {
	return b.pactl.SetDefaultSink(ctx, strconv.FormatUint(uint64(id), 10))
}

// IsDefaultOutputSettable reports whether the server is reachable; a
// reachable server always accepts set-default-sink.
func (b *PulseBackend) IsDefaultOutputSettable(ctx context.Context) bool {
	if err := b.pactl.Ping(ctx); err != nil {
		slog.Debug("Sound server not reachable", "error", err)
		return false
	}
	return true
}

// CreateAggregateDevice builds an output aggregate from module-combine-sink.
// An input aggregate is a null sink fed by one loopback per member and
// exposed as a named source through module-remap-source. On failure every
// module loaded so far is unloaded again.
func (b *PulseBackend) CreateAggregateDevice(ctx context.Context, spec AggregateSpec) (uint32, error) {
	if len(spec.MemberUIDs) == 0 {
		return 0, fmt.Errorf("aggregate %q has no members", spec.DisplayName)
	}

	if spec.Direction == DirectionInput {
		return b.createInputAggregate(ctx, spec)
	}
	return b.createOutputAggregate(ctx, spec)
}

func (b *PulseBackend) createOutputAggregate(ctx context.Context, spec AggregateSpec) (uint32, error) {
	// combine-sink follows the clock of its first slave, so the master leads
	members := orderMembers(spec.MemberUIDs, spec.MasterUID)
	if _, err := b.pactl.LoadModule(ctx, "module-combine-sink", combineSinkArgs(spec.NewUID, spec.DisplayName, members)...); err != nil {
		return 0, err
	}
	return b.lookupIndex(ctx, DirectionOutput, spec.NewUID)
}

func (b *PulseBackend) createInputAggregate(ctx context.Context, spec AggregateSpec) (uint32, error) {
	var loaded []uint32
	rollback := func() {
		for i := len(loaded) - 1; i >= 0; i-- {
			if err := b.pactl.UnloadModule(context.WithoutCancel(ctx), loaded[i]); err != nil {
				slog.Warn("Failed to roll back aggregate module", "module", loaded[i], "error", err)
			}
		}
	}

	mixName := spec.NewUID + ".mix"
	index, err := b.pactl.LoadModule(ctx, "module-null-sink",
		"sink_name="+mixName,
		"sink_properties="+deviceDescription(spec.DisplayName+" (mix)"))
	if err != nil {
		return 0, err
	}
	loaded = append(loaded, index)

	for _, member := range orderMembers(spec.MemberUIDs, spec.MasterUID) {
		index, err := b.pactl.LoadModule(ctx, "module-loopback", "source="+member, "sink="+mixName, "source_dont_move=true")
		if err != nil {
			rollback()
			return 0, err
		}
		loaded = append(loaded, index)
	}

	if _, err := b.pactl.LoadModule(ctx, "module-remap-source",
		"master="+mixName+".monitor",
		"source_name="+spec.NewUID,
		"source_properties="+deviceDescription(spec.DisplayName)); err != nil {
		rollback()
		return 0, err
	}

	return b.lookupIndex(ctx, DirectionInput, spec.NewUID)
}

// lookupIndex finds the id of a freshly created device. The server may not
// list it yet, in which case zero is returned without error.
func (b *PulseBackend) lookupIndex(ctx context.Context, dir Direction, name string) (uint32, error) {
	devices, err := b.EnumerateDevices(ctx, dir)
	if err != nil {
		slog.Debug("Could not list devices after creation", "name", name, "error", err)
		return 0, nil
	}
	for _, d := range devices {
		if d.UID == name {
			return d.ID, nil
		}
	}
	slog.Debug("Created device not listed yet", "name", name)
	return 0, nil
}

func combineSinkArgs(sinkName, displayName string, members []string) []string {
	return []string{
		"sink_name=" + sinkName,
		"slaves=" + strings.Join(members, ","),
		"sink_properties=" + deviceDescription(displayName),
	}
}

// orderMembers returns members with master moved to the front
func orderMembers(members []string, master string) []string {
	ordered := make([]string, 0, len(members))
	if master != "" {
		ordered = append(ordered, master)
	}
	for _, m := range members {
		if m != master {
			ordered = append(ordered, m)
		}
	}
	return ordered
}

func toDeviceInfo(d pulseDevice) DeviceInfo {
	name := d.Description
	if name == "" {
		name = d.Name
	}
	return DeviceInfo{
		ID:      d.Index,
		UID:     d.Name,
		Name:    name,
		Streams: channelCount(d.SampleSpec),
	}
}
