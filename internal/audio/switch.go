package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Switch reads and changes the system default output device.
type Switch struct {
	backend Backend
	catalog *Catalog
}

// NewSwitch creates a default-output switch over the backend
func NewSwitch(backend Backend) *Switch {
	return &Switch{backend: backend, catalog: NewCatalog(backend)}
}

// SetDefault makes ep the system default output. Settability is checked
// before any write is attempted.
func (s *Switch) SetDefault(ctx context.Context, ep Endpoint) error {
	if ep.Direction != DirectionOutput {
		return fmt.Errorf("%w: %q is not an output device", ErrUsage, ep.Name)
	}
	if !s.backend.IsDefaultOutputSettable(ctx) {
		return fmt.Errorf("%w: default output device", ErrPropertyNotSettable)
	}
	if err := s.backend.SetDefaultOutput(ctx, ep.ID); err != nil {
		return fmt.Errorf("%w: set default output to %q: %w", ErrBackend, ep.Name, err)
	}

	slog.Info("Default output device set", "name", ep.Name, "uid", ep.UID)
	return nil
}

// SetDefaultByNameFragment switches to the first output whose name contains
// fragment and returns the chosen endpoint.
func (s *Switch) SetDefaultByNameFragment(ctx context.Context, fragment string) (Endpoint, error) {
	if strings.TrimSpace(fragment) == "" {
		return Endpoint{}, fmt.Errorf("%w: device name is required", ErrUsage)
	}

	ep, ok := FindByFragment(s.catalog.ListOutputs(ctx), fragment)
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: no output device matches %q", ErrDeviceNotFound, fragment)
	}

	if err := s.SetDefault(ctx, ep); err != nil {
		return Endpoint{}, err
	}
	return ep, nil
}

// Current returns the current default output as an endpoint.
func (s *Switch) Current(ctx context.Context) (Endpoint, error) {
	info, err := s.backend.DefaultOutput(ctx)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: read default output: %w", ErrBackend, err)
	}
	return Endpoint{ID: info.ID, UID: info.UID, Name: info.Name, Direction: DirectionOutput}, nil
}
