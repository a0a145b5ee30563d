// Package caster is the orchestration facade: one mode switch between the
// persistent and transient paths, routing apply/cast requests to the patch
// engine or the interception engine's queue store.
package caster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vantir/abilitymod/internal/engine"
	"github.com/vantir/abilitymod/internal/mod"
	"github.com/vantir/abilitymod/internal/patch"
	"github.com/vantir/abilitymod/internal/queue"
	"github.com/vantir/abilitymod/internal/resource"
)

// Mode selects how modifications are applied.
type Mode int

const (
	// ModePersistent rewrites the resource buffer the host reads from.
	ModePersistent Mode = iota
	// ModeTransient queues modifications for the interception engine.
	ModeTransient
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModePersistent:
		return "persistent"
	case ModeTransient:
		return "transient"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ErrNotReady is reported when a cast or transient apply is attempted before
// the interception engine's hook points are resolved. Nothing throws: all
// failure paths degrade to "edit not applied" / "cast not performed".
var ErrNotReady = errors.New("interception engine not ready")

// Target is what the external targeting facility resolves for a cast: the
// caster actor reference and the target position.
type Target struct {
	CasterRef uint64
	Position  mod.Vec
}

// Targeting supplies caster and target for the cast path. External
// collaborator; consumed only here, never by the core engine.
type Targeting interface {
	Acquire(ctx context.Context, abilityID int32) (Target, error)
}

// HostCaster asks the host process to cast an ability.
type HostCaster interface {
	RequestCast(ctx context.Context, abilityID int32, target Target) error
}

// ResourceProvider fetches and replaces the host-visible resource buffer for
// an ability. External collaborator owning allocation and buffer lifetime.
type ResourceProvider interface {
	Fetch(abilityID int32) ([]byte, error)
	Replace(abilityID int32, buf []byte) error
}

// Session routes apply and cast requests according to its mode. It
// implements mod.Caster, so a Builder casts directly through it.
type Session struct {
	mode      Mode
	store     *queue.Store
	engine    *engine.Engine
	patcher   *patch.Engine
	codec     resource.Codec
	resources ResourceProvider
	targeting Targeting
	host      HostCaster
	logger    *slog.Logger
}

// Config wires a session. Store, Engine, Patcher and Codec are required for
// the paths that use them; nil collaborators make the corresponding calls
// fail with a descriptive error instead of panicking.
type Config struct {
	Mode      Mode
	Store     *queue.Store
	Engine    *engine.Engine
	Patcher   *patch.Engine
	Codec     resource.Codec
	Resources ResourceProvider
	Targeting Targeting
	Host      HostCaster
	Logger    *slog.Logger
}

// NewSession creates a session.
func NewSession(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		mode:      cfg.Mode,
		store:     cfg.Store,
		engine:    cfg.Engine,
		patcher:   cfg.Patcher,
		codec:     cfg.Codec,
		resources: cfg.Resources,
		targeting: cfg.Targeting,
		host:      cfg.Host,
		logger:    logger,
	}
}

// Mode returns the current mode.
func (s *Session) Mode() Mode { return s.mode }

// SetMode switches between the persistent and transient paths.
func (s *Session) SetMode(m Mode) { s.mode = m }

// Enqueue routes a batch according to the mode: transient batches go to the
// queue store for the next matching pass; persistent batches are applied to
// the resource buffer immediately.
func (s *Session) Enqueue(abilityID int32, mods []mod.Modification) error {
	switch s.mode {
	case ModeTransient:
		if !s.engine.Ready() {
			return fmt.Errorf("enqueue ability %d: %w", abilityID, ErrNotReady)
		}
		s.store.Enqueue(abilityID, mods)
		s.logger.Debug("batch enqueued", "ability", abilityID, "entries", len(mods))
		return nil
	case ModePersistent:
		return s.Apply(abilityID, mods)
	default:
		return fmt.Errorf("enqueue ability %d: unknown mode %d", abilityID, int(s.mode))
	}
}

// Apply performs a persistent patch: fetch the resource buffer, decode,
// mutate, re-encode, replace. In transient mode Apply delegates to Enqueue.
func (s *Session) Apply(abilityID int32, mods []mod.Modification) error {
	if s.mode == ModeTransient {
		return s.Enqueue(abilityID, mods)
	}
	if s.resources == nil {
		return fmt.Errorf("apply ability %d: no resource provider", abilityID)
	}
	if s.patcher == nil || s.codec == nil {
		return fmt.Errorf("apply ability %d: patch engine not configured", abilityID)
	}

	buf, err := s.resources.Fetch(abilityID)
	if err != nil {
		return fmt.Errorf("apply ability %d: %w", abilityID, err)
	}
	patched, err := s.patcher.PatchBuffer(s.codec, buf, mods)
	if err != nil {
		return fmt.Errorf("apply ability %d: %w", abilityID, err)
	}
	if err := s.resources.Replace(abilityID, patched); err != nil {
		return fmt.Errorf("apply ability %d: %w", abilityID, err)
	}
	s.logger.Info("resource patched", "ability", abilityID, "entries", len(mods), "bytes", len(patched))
	return nil
}

// Cast resolves targeting and asks the host to cast the ability. In
// transient mode the interception engine must be ready, since the cast is
// what drives the pass that consumes queued batches.
func (s *Session) Cast(ctx context.Context, abilityID int32) error {
	if s.host == nil {
		return fmt.Errorf("cast ability %d: no host caster", abilityID)
	}
	if s.mode == ModeTransient && !s.engine.Ready() {
		return fmt.Errorf("cast ability %d: %w", abilityID, ErrNotReady)
	}

	var target Target
	if s.targeting != nil {
		var err error
		target, err = s.targeting.Acquire(ctx, abilityID)
		if err != nil {
			return fmt.Errorf("cast ability %d: acquire target: %w", abilityID, err)
		}
	}
	if err := s.host.RequestCast(ctx, abilityID, target); err != nil {
		return fmt.Errorf("cast ability %d: %w", abilityID, err)
	}
	return nil
}
