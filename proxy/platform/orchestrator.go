package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/liuran001/SongProxy-Go/proxy"
)

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	// Priority is the primary source order. Empty means DefaultPriority.
	Priority []Source
	// ForceFallback skips every primary source.
	ForceFallback bool
	Logger        proxy.Logger
}

// Orchestrator runs the source fallback chain: the primary sources in
// priority order, then the secondary API once when the primary reports an
// exhausted quota.
type Orchestrator struct {
	registry *Registry
	fallback Fallback
	priority []Source
	force    bool
	logger   proxy.Logger
}

// Status describes the active chain.
type Status struct {
	Priority      []Source
	ForceFallback bool
	Fallback      bool
}

// NewOrchestrator creates an Orchestrator. fallback may be nil, in which
// case quota exhaustion and forced fallback both end in ErrNotFound.
func NewOrchestrator(registry *Registry, fallback Fallback, opts OrchestratorOptions) *Orchestrator {
	if registry == nil {
		registry = NewRegistry()
	}
	priority := opts.Priority
	if len(priority) == 0 {
		priority = DefaultPriority
	}
	return &Orchestrator{
		registry: registry,
		fallback: fallback,
		priority: append([]Source(nil), priority...),
		force:    opts.ForceFallback,
		logger:   proxy.OrNop(opts.Logger),
	}
}

// Find searches for keyword and resolves the first hit. The first source
// in priority order that succeeds wins; partial results are never merged.
func (o *Orchestrator) Find(ctx context.Context, keyword string, bitrate Bitrate) (*SongRecord, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, NewValidationError("name")
	}

	if o.force {
		o.logger.Debug("force fallback enabled, skipping primary sources", "keyword", keyword)
		return o.degrade(ctx, keyword, bitrate)
	}

	for _, source := range o.priority {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		adapter, ok := o.registry.Get(source)
		if !ok {
			o.logger.Warn("no adapter registered for source", "source", source)
			continue
		}

		record, err := o.tryPrimary(ctx, adapter, keyword, bitrate)
		if err == nil {
			return record, nil
		}
		if errors.Is(err, ErrQuotaExhausted) {
			o.logger.Warn("primary quota exhausted, degrading to fallback", "source", source, "keyword", keyword, "error", err)
			return o.degrade(ctx, keyword, bitrate)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		o.logger.Warn("source failed, trying next", "source", source, "keyword", keyword, "error", err)
	}

	return nil, NewNotFoundError("search", "keyword", keyword)
}

func (o *Orchestrator) tryPrimary(ctx context.Context, adapter Adapter, keyword string, bitrate Bitrate) (*SongRecord, error) {
	id, err := adapter.Search(ctx, keyword)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, NewNotFoundError(string(adapter.Name()), "search", keyword)
	}

	record, err := adapter.Resolve(ctx, id, bitrate)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, NewNotFoundError(string(adapter.Name()), "resolve", id)
	}
	if record.Source != adapter.Name() {
		record = record.WithSource(adapter.Name())
	}
	return record, nil
}

// degrade calls the secondary API exactly once.
func (o *Orchestrator) degrade(ctx context.Context, keyword string, bitrate Bitrate) (*SongRecord, error) {
	if o.fallback == nil {
		return nil, NewNotFoundError(string(SourceFallback), "search", keyword)
	}

	record, err := o.fallback.Lookup(ctx, keyword, bitrate)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		o.logger.Warn("fallback lookup failed", "source", SourceFallback, "keyword", keyword, "error", err)
		return nil, &PlatformError{
			Platform: string(SourceFallback),
			Resource: "search",
			ID:       keyword,
			Err:      fmt.Errorf("%w: %v", ErrNotFound, err),
		}
	}
	if record == nil {
		return nil, NewNotFoundError(string(SourceFallback), "search", keyword)
	}
	return record.WithSource(SourceFallback), nil
}

// Resolve re-resolves one (source, id) pair for the resource proxy.
// It never falls back to another source.
func (o *Orchestrator) Resolve(ctx context.Context, source Source, externalID string, bitrate Bitrate) (*SongRecord, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, NewValidationError("id")
	}

	if source == SourceFallback {
		if o.fallback == nil {
			return nil, NewUnsupportedError(string(source))
		}
		record, err := o.fallback.Resolve(ctx, externalID, bitrate)
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, NewNotFoundError(string(source), "resolve", externalID)
		}
		return record.WithSource(SourceFallback), nil
	}

	adapter, ok := o.registry.Get(source)
	if !ok {
		return nil, NewUnsupportedError(string(source))
	}
	record, err := adapter.Resolve(ctx, externalID, bitrate)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, NewNotFoundError(string(source), "resolve", externalID)
	}
	return record, nil
}

// Status reports the configured chain.
func (o *Orchestrator) Status() Status {
	active := make([]Source, 0, len(o.priority))
	for _, source := range o.priority {
		if _, ok := o.registry.Get(source); ok {
			active = append(active, source)
		}
	}
	return Status{
		Priority:      active,
		ForceFallback: o.force,
		Fallback:      o.fallback != nil,
	}
}
