package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/liuran001/SongProxy-Go/proxy"
	"github.com/liuran001/SongProxy-Go/proxy/upstream"
	"golang.org/x/sync/errgroup"
)

// Health states.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthError    = "error"
)

const (
	DefaultHealthTTL     = 60 * time.Second
	DefaultHealthTimeout = 5 * time.Second
)

// HealthStatus is one probe result.
type HealthStatus struct {
	State     string
	CheckedAt time.Time
}

// ProbeFunc computes a fresh HealthStatus.
type ProbeFunc func(ctx context.Context) HealthStatus

// HealthCache keeps the last probe result for a fixed window.
type HealthCache struct {
	probe   ProbeFunc
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	value   HealthStatus
	expires time.Time
}

// NewHealthCache creates a HealthCache. Zero durations select the defaults.
func NewHealthCache(probe ProbeFunc, ttl, timeout time.Duration) *HealthCache {
	if ttl <= 0 {
		ttl = DefaultHealthTTL
	}
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	return &HealthCache{probe: probe, ttl: ttl, timeout: timeout, now: time.Now}
}

// Get returns the cached status while fresh, otherwise probes and stores.
func (h *HealthCache) Get(ctx context.Context) HealthStatus {
	h.mu.RLock()
	if h.now().Before(h.expires) {
		value := h.value
		h.mu.RUnlock()
		return value
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.now().Before(h.expires) {
		return h.value
	}

	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
	defer cancel()
	value := h.probe(probeCtx)
	if value.CheckedAt.IsZero() {
		value.CheckedAt = h.now()
	}
	h.value = value
	h.expires = h.now().Add(h.ttl)
	return value
}

// UpstreamProbe checks that every base URL answers below 500.
func UpstreamProbe(client *upstream.Client, targets []string, logger proxy.Logger) ProbeFunc {
	logger = proxy.OrNop(logger)
	return func(ctx context.Context) HealthStatus {
		if len(targets) == 0 {
			return HealthStatus{State: HealthOK, CheckedAt: time.Now()}
		}

		reachable := make([]bool, len(targets))
		var g errgroup.Group
		for i, target := range targets {
			i, target := i, target
			g.Go(func() error {
				req, err := client.NewRequest(ctx, http.MethodGet, target, nil)
				if err != nil {
					logger.Warn("health probe skipped", "target", target, "error", err)
					return nil
				}
				resp, err := client.Do(req)
				if err != nil {
					logger.Warn("health probe failed", "target", target, "error", err)
					return nil
				}
				resp.Body.Close()
				reachable[i] = resp.StatusCode < http.StatusInternalServerError
				return nil
			})
		}
		_ = g.Wait()

		up := 0
		for _, ok := range reachable {
			if ok {
				up++
			}
		}
		state := HealthDegraded
		switch up {
		case len(targets):
			state = HealthOK
		case 0:
			state = HealthError
		}
		return HealthStatus{State: state, CheckedAt: time.Now()}
	}
}
