// Package registry is the Go analogue of dynamic host-library detection:
// since nothing here can scan the import graph at runtime the way a
// dynamically typed SDK would, each instrumentor package announces itself at
// import time via Register, the same pattern database/sql uses for drivers
// and image uses for format decoders.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// Descriptor is one instrumentor's registration: Detect recognizes a host
// client object, VersionPredicate (if non-nil) gates activation on a
// Version() string the host may optionally expose, and Activate performs
// the actual wrap, returning the wrapped client and a teardown closure.
type Descriptor struct {
	Name             string
	VersionPredicate func(version string) bool
	Detect           func(host any) bool
	Activate         func(host any, tp trace.TracerProvider) (wrapped any, teardown func(), err error)
}

type versioned interface {
	Version() string
}

var (
	defaultMu   sync.Mutex
	descriptors []Descriptor
)

// Register adds d to the default registry. Intended to be called from an
// instrumentor package's init(), mirroring sql.Register.
func Register(d Descriptor) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	descriptors = append(descriptors, d)
}

// Registry activates descriptors against host client objects and tracks
// enough state to tear each one down again. The zero value is not usable;
// construct with New.
type Registry struct {
	tp     trace.TracerProvider
	logger *slog.Logger

	mu       sync.Mutex
	active   map[any]teardownEntry
	detached []Descriptor // snapshot of the default registry at construction
}

type teardownEntry struct {
	name     string
	teardown func()
}

// New builds a Registry bound to tp, taking an immutable snapshot of every
// Descriptor registered so far. Logger defaults to slog.Default() if nil.
func New(tp trace.TracerProvider, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	defaultMu.Lock()
	snapshot := make([]Descriptor, len(descriptors))
	copy(snapshot, descriptors)
	defaultMu.Unlock()

	return &Registry{
		tp:       tp,
		logger:   logger,
		active:   make(map[any]teardownEntry),
		detached: snapshot,
	}
}

// Descriptors returns a snapshot copy of the descriptors this Registry will
// consider, safe to range over without holding any lock.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.detached))
	copy(out, r.detached)
	return out
}

// Activate finds the first descriptor whose Detect(host) matches, runs its
// VersionPredicate if the host implements Version() string, and calls
// Activate. A version mismatch is terminal for that descriptor only;
// iteration continues to the next one rather than failing the whole call.
// Returns the wrapped client, or an error if no descriptor both detects and
// accepts the host's version.
func (r *Registry) Activate(host any) (any, error) {
	if host == nil {
		return nil, errors.New("registry: host must not be nil")
	}

	r.mu.Lock()
	if _, already := r.active[host]; already {
		r.mu.Unlock()
		return nil, fmt.Errorf("registry: host already activated")
	}
	r.mu.Unlock()

	var lastErr error
	for _, d := range r.detached {
		if d.Detect == nil || !d.Detect(host) {
			continue
		}

		if d.VersionPredicate != nil {
			if v, ok := host.(versioned); ok {
				if !d.VersionPredicate(v.Version()) {
					r.logger.Info("registry: version mismatch, skipping descriptor",
						"descriptor", d.Name, "version", v.Version())
					continue
				}
			}
		}

		if d.Activate == nil {
			lastErr = fmt.Errorf("registry: descriptor %q has no Activate", d.Name)
			continue
		}

		wrapped, teardown, err := d.Activate(host, r.tp)
		if err != nil {
			r.logger.Warn("registry: activation failed", "descriptor", d.Name, "error", err)
			lastErr = fmt.Errorf("registry: %s: %w", d.Name, err)
			continue
		}

		r.mu.Lock()
		r.active[host] = teardownEntry{name: d.Name, teardown: teardown}
		r.mu.Unlock()
		return wrapped, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("registry: no instrumentor recognizes this host")
}

// Deactivate tears down a previously activated host. Idempotent: a host not
// currently active (or already deactivated) is a no-op.
func (r *Registry) Deactivate(host any) {
	r.mu.Lock()
	entry, ok := r.active[host]
	if ok {
		delete(r.active, host)
	}
	r.mu.Unlock()

	if ok && entry.teardown != nil {
		entry.teardown()
	}
}

// DeactivateAll tears down every currently activated host. Restoring each
// host's original state (the teardown closure) is mandatory at shutdown, so
// the entries are drained under the lock and torn down outside it.
func (r *Registry) DeactivateAll() {
	r.mu.Lock()
	entries := make([]teardownEntry, 0, len(r.active))
	for _, e := range r.active {
		entries = append(entries, e)
	}
	r.active = make(map[any]teardownEntry)
	r.mu.Unlock()

	for _, e := range entries {
		if e.teardown != nil {
			e.teardown()
		}
	}
}

// Active returns the instrumentor names currently activated, in no
// particular order.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.active))
	for _, e := range r.active {
		names = append(names, e.name)
	}
	return names
}
