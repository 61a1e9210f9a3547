package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Builder resolves device name fragments and asks the backend to combine
// the matches into one aggregate device.
type Builder struct {
	backend Backend
	catalog *Catalog
	newUID  func() string
}

// NewBuilder creates a builder that mints aggregate UIDs with uuid.New.
func NewBuilder(backend Backend) *Builder {
	return &Builder{
		backend: backend,
		catalog: NewCatalog(backend),
		newUID:  func() string { return uuid.New().String() },
	}
}

// CreateAggregate resolves every fragment against the current endpoints of
// dir and creates an aggregate from the matches. Nothing is created unless
// every fragment resolves. The first resolved member is the master.
// An existing device with the same display name is not checked for.
func (b *Builder) CreateAggregate(ctx context.Context, dir Direction, fragments []string, displayName string) error {
	if err := validateAggregateArgs(fragments, displayName); err != nil {
		return err
	}
	return b.create(ctx, dir, b.catalog.List(ctx, dir), fragments, displayName)
}

// EnsureAggregate creates the aggregate unless an endpoint named exactly
// displayName is already present. It reports whether a device was created.
func (b *Builder) EnsureAggregate(ctx context.Context, dir Direction, fragments []string, displayName string) (bool, error) {
	if err := validateAggregateArgs(fragments, displayName); err != nil {
		return false, err
	}

	endpoints := b.catalog.List(ctx, dir)
	if existing, ok := FindByName(endpoints, displayName); ok {
		slog.Info("Aggregate device already exists", "name", existing.Name, "uid", existing.UID)
		return false, nil
	}

	if err := b.create(ctx, dir, endpoints, fragments, displayName); err != nil {
		return false, err
	}
	return true, nil
}

// Resolve returns the spec that CreateAggregate would hand to the backend.
func (b *Builder) Resolve(ctx context.Context, dir Direction, fragments []string, displayName string) (AggregateSpec, error) {
	if err := validateAggregateArgs(fragments, displayName); err != nil {
		return AggregateSpec{}, err
	}
	return b.resolve(dir, b.catalog.List(ctx, dir), fragments, displayName)
}

func (b *Builder) create(ctx context.Context, dir Direction, endpoints []Endpoint, fragments []string, displayName string) error {
	spec, err := b.resolve(dir, endpoints, fragments, displayName)
	if err != nil {
		return err
	}

	slog.Debug("Creating aggregate device",
		"name", spec.DisplayName,
		"direction", dir.String(),
		"members", strings.Join(spec.MemberUIDs, ","),
		"master", spec.MasterUID)

	id, err := b.backend.CreateAggregateDevice(ctx, spec)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrAggregateCreation, displayName, err)
	}

	slog.Info("Aggregate device created", "name", spec.DisplayName, "uid", spec.NewUID, "id", id, "members", len(spec.MemberUIDs))
	return nil
}

func (b *Builder) resolve(dir Direction, endpoints []Endpoint, fragments []string, displayName string) (AggregateSpec, error) {
	members := make([]string, 0, len(fragments))
	seen := make(map[string]bool, len(fragments))
	var unresolved []string

	for _, fragment := range fragments {
		ep, ok := FindByFragment(endpoints, fragment)
		if !ok {
			unresolved = append(unresolved, fragment)
			continue
		}
		// fragments naming the same device add it once, at its first position
		if seen[ep.UID] {
			slog.Debug("Skipping duplicate aggregate member", "fragment", fragment, "uid", ep.UID)
			continue
		}
		seen[ep.UID] = true
		members = append(members, ep.UID)
	}

	if len(unresolved) > 0 {
		return AggregateSpec{}, fmt.Errorf("%w: no %s device matches %s", ErrDeviceResolution, dir.String(), quoteAll(unresolved))
	}

	return AggregateSpec{
		Direction:   dir,
		MemberUIDs:  members,
		MasterUID:   members[0],
		DisplayName: displayName,
		NewUID:      b.newUID(),
	}, nil
}

func validateAggregateArgs(fragments []string, displayName string) error {
	if len(fragments) == 0 {
		return fmt.Errorf("%w: at least one device name is required", ErrUsage)
	}
	for i, fragment := range fragments {
		if strings.TrimSpace(fragment) == "" {
			return fmt.Errorf("%w: device name %d is empty", ErrUsage, i+1)
		}
	}
	if strings.TrimSpace(displayName) == "" {
		return fmt.Errorf("%w: aggregate name is required", ErrUsage)
	}
	return nil
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(quoted, ", ")
}
