// Package discovery finds candidate share links for a subscription across a
// prioritized set of heterogeneous search backends. Backends without usable
// credentials are silently disabled; a failing backend is skipped, never
// fatal.
package discovery

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"cloudsub/internal/config"
	"cloudsub/internal/logging"
)

// MediaType distinguishes movie and series searches.
type MediaType string

const (
	Movie  MediaType = "movie"
	Series MediaType = "series"
)

// Request describes what a backend should look for.
type Request struct {
	Title  string
	Year   int
	TMDBID int64
	Type   MediaType
	Season int
}

// Resource is one discovered share, normalized across backends.
type Resource struct {
	Source   string
	ShareURL string
	Title    string
}

// Backend is a single pluggable search capability.
type Backend interface {
	Name() string
	Search(ctx context.Context, req Request) ([]Resource, error)
}

const defaultSearchTimeout = 20 * time.Second

// Registry holds the enabled backends in priority order.
type Registry struct {
	backends []Backend
	logger   *slog.Logger
}

// NewRegistry builds the enabled backends from configuration, honoring the
// configured priority order.
func NewRegistry(cfg config.Search, logger *slog.Logger) *Registry {
	logger = logging.NewComponentLogger(logger, "discovery")
	httpClient := &http.Client{Timeout: defaultSearchTimeout}

	available := map[string]Backend{}
	if backend := newNullbr(cfg.Nullbr, httpClient, logger); backend != nil {
		available[backend.Name()] = backend
	}
	if backend := newHDHive(cfg.HDHive, httpClient, logger); backend != nil {
		available[backend.Name()] = backend
	}
	if backend := newPansou(cfg.Pansou, httpClient, logger); backend != nil {
		available[backend.Name()] = backend
	}

	registry := &Registry{logger: logger}
	for _, name := range cfg.Order {
		if backend, ok := available[name]; ok {
			registry.backends = append(registry.backends, backend)
			delete(available, name)
		}
	}
	if len(registry.backends) == 0 {
		// No explicit order matched; fall back to the default priority.
		for _, name := range []string{"nullbr", "hdhive", "pansou"} {
			if backend, ok := available[name]; ok {
				registry.backends = append(registry.backends, backend)
			}
		}
	}
	return registry
}

// NewRegistryWith builds a registry from explicit backends, used by tests
// and by the orchestrator's fakes.
func NewRegistryWith(logger *slog.Logger, backends ...Backend) *Registry {
	return &Registry{
		backends: backends,
		logger:   logging.NewComponentLogger(logger, "discovery"),
	}
}

// Backends returns the enabled backends in priority order.
func (r *Registry) Backends() []Backend {
	return r.backends
}

// SearchMovie consults backends in priority order and returns the first
// non-empty result set. Backend failures are logged and skipped.
func (r *Registry) SearchMovie(ctx context.Context, req Request) ([]Resource, error) {
	req.Type = Movie
	for _, backend := range r.backends {
		resources, err := backend.Search(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("backend search failed",
				logging.String(logging.FieldBackend, backend.Name()),
				logging.Error(err),
			)
			continue
		}
		if len(resources) > 0 {
			return resources, nil
		}
	}
	return nil, nil
}

// SearchOne runs a single backend search, used by the orchestrator when
// iterating backends for a series.
func (r *Registry) SearchOne(ctx context.Context, backend Backend, req Request) []Resource {
	resources, err := backend.Search(ctx, req)
	if err != nil {
		r.logger.Warn("backend search failed",
			logging.String(logging.FieldBackend, backend.Name()),
			logging.Error(err),
		)
		return nil
	}
	return resources
}
