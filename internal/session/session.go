// Package session keeps the per-connection state of an MCP client.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/zones"
)

// Session holds the current zone of an MCP session.
type Session struct {
	mu   sync.Mutex
	zone string
}

// New creates a session positioned on the default zone.
func New() *Session {
	return &Session{zone: models.DefaultZone}
}

// SwitchZone makes name the current zone. The zone must exist.
func (s *Session) SwitchZone(ctx context.Context, reg *zones.Registry, name string) (*models.ZoneMetadata, error) {
	name = strings.TrimSpace(name)
	if err := reg.RequireZone(ctx, name); err != nil {
		return nil, err
	}
	meta, err := reg.GetZoneMetadata(ctx, name)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = &models.ZoneMetadata{Name: name}
	}

	s.mu.Lock()
	s.zone = name
	s.mu.Unlock()
	return meta, nil
}

// CurrentZone returns the zone unqualified operations target.
func (s *Session) CurrentZone() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zone
}

// Resolve returns explicit when set, else the current zone.
func (s *Session) Resolve(explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	return s.CurrentZone()
}

// Forget moves the session back to the default zone if it was on name,
// typically after name was deleted.
func (s *Session) Forget(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.zone == name {
		s.zone = models.DefaultZone
	}
}
