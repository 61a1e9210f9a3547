package audio

import (
	"context"
	"fmt"
	"log/slog"
)

// Endpoint is a device usable in one direction.
type Endpoint struct {
	ID        uint32    `json:"id"`
	UID       string    `json:"uid"`
	Name      string    `json:"name"`
	Direction Direction `json:"direction"`
}

// Catalog enumerates endpoints from a backend. Every call re-reads the
// device graph; nothing is cached between calls.
type Catalog struct {
	backend Backend
}

// NewCatalog creates a catalog over the backend
func NewCatalog(backend Backend) *Catalog {
	return &Catalog{backend: backend}
}

// List returns the endpoints that expose at least one stream in dir, in the
// backend's enumeration order. A failed enumeration yields an empty list.
func (c *Catalog) List(ctx context.Context, dir Direction) []Endpoint {
	devices, err := c.backend.EnumerateDevices(ctx, dir)
	if err != nil {
		slog.Warn("Device enumeration failed", "direction", dir.String(), "error", err)
		return []Endpoint{}
	}

	endpoints := make([]Endpoint, 0, len(devices))
	for _, device := range devices {
		if device.Streams <= 0 {
			continue
		}
		if device.Name == "" || device.UID == "" {
			slog.Debug("Skipping device with unreadable identity", "id", device.ID, "direction", dir.String())
			continue
		}
		endpoints = append(endpoints, Endpoint{
			ID:        device.ID,
			UID:       device.UID,
			Name:      device.Name,
			Direction: dir,
		})
	}

	return endpoints
}

// ListOutputs returns the playback endpoints
func (c *Catalog) ListOutputs(ctx context.Context) []Endpoint {
	return c.List(ctx, DirectionOutput)
}

// ListInputs returns the capture endpoints
func (c *Catalog) ListInputs(ctx context.Context) []Endpoint {
	return c.List(ctx, DirectionInput)
}

// FindByFragment returns the first endpoint whose name contains fragment.
func FindByFragment(endpoints []Endpoint, fragment string) (Endpoint, bool) {
	for _, ep := range endpoints {
		if containsFold(ep.Name, fragment) {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// FindByName returns the endpoint whose name equals name.
func FindByName(endpoints []Endpoint, name string) (Endpoint, bool) {
	for _, ep := range endpoints {
		if equalFold(ep.Name, name) {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// NameAtIndex returns the name at a zero-based position of a listing.
func NameAtIndex(endpoints []Endpoint, index int) (string, error) {
	if index < 0 || index >= len(endpoints) {
		return "", fmt.Errorf("%w: index %d, %d devices available", ErrIndexOutOfRange, index, len(endpoints))
	}
	return endpoints[index].Name, nil
}
