package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mkarlsen/duckwave/internal/capture"
	"github.com/mkarlsen/duckwave/pkg/audio"
)

// ErrFactoryNotRegistered is returned by Create* methods when no factory has
// been registered under the requested kind.
var ErrFactoryNotRegistered = errors.New("config: factory not registered")

// Registry maps source and sink kinds to their constructor functions. The
// built-in kinds are registered by the server at startup; tests register
// in-memory fakes. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[SourceKind]func(context.Context, CaptureConfig) (capture.Source, error)
	sinks   map[SinkKind]func(PlaybackConfig) (audio.Sink, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[SourceKind]func(context.Context, CaptureConfig) (capture.Source, error)),
		sinks:   make(map[SinkKind]func(PlaybackConfig) (audio.Sink, error)),
	}
}

// RegisterSource registers a capture source factory under kind.
// Subsequent calls with the same kind overwrite the previous registration.
func (r *Registry) RegisterSource(kind SourceKind, factory func(context.Context, CaptureConfig) (capture.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[kind] = factory
}

// RegisterSink registers a playback sink factory under kind.
func (r *Registry) RegisterSink(kind SinkKind, factory func(PlaybackConfig) (audio.Sink, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[kind] = factory
}

// CreateSource instantiates the capture source configured in cfg.
// Returns [ErrFactoryNotRegistered] if no factory covers cfg.Source.
func (r *Registry) CreateSource(ctx context.Context, cfg CaptureConfig) (capture.Source, error) {
	r.mu.RLock()
	factory, ok := r.sources[cfg.Source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: source/%q", ErrFactoryNotRegistered, cfg.Source)
	}
	return factory(ctx, cfg)
}

// CreateSink instantiates the playback sink configured in cfg.
func (r *Registry) CreateSink(cfg PlaybackConfig) (audio.Sink, error) {
	r.mu.RLock()
	factory, ok := r.sinks[cfg.Sink]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: sink/%q", ErrFactoryNotRegistered, cfg.Sink)
	}
	return factory(cfg)
}
