package merchant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrNoSnapshot is returned when merchant data has not been loaded yet.
var ErrNoSnapshot = errors.New("merchant data not loaded")

// Holder owns the current snapshot. Readers take the pointer without locking; reloads and
// runtime additions build a new snapshot and swap it in.
type Holder struct {
	source  Source
	current atomic.Pointer[Snapshot]
	writeMu sync.Mutex
}

// NewHolder creates a holder that loads from source. Call Reload before use.
func NewHolder(source Source) *Holder {
	return &Holder{source: source}
}

// NewStaticHolder creates a holder around an already validated snapshot. Thresholds are
// checked again when a batch starts.
func NewStaticHolder(snap *Snapshot) *Holder {
	h := &Holder{}
	h.current.Store(snap)
	return h
}

// Reload fetches and validates a fresh snapshot, then swaps it in. On error the previous
// snapshot stays current.
func (h *Holder) Reload(ctx context.Context) (*Snapshot, error) {
	if h.source == nil {
		return nil, errors.New("merchant data source not configured")
	}
	snap, err := h.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load merchant data from %s: %w", h.source, err)
	}
	h.writeMu.Lock()
	h.current.Store(snap)
	h.writeMu.Unlock()
	return snap, nil
}

// Current returns the snapshot in use, or ErrNoSnapshot.
func (h *Holder) Current() (*Snapshot, error) {
	snap := h.current.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Resolver returns a resolver pinned to the current snapshot.
func (h *Holder) Resolver() (*Resolver, error) {
	snap, err := h.Current()
	if err != nil {
		return nil, err
	}
	return NewResolver(snap), nil
}

// AddExact registers an alias at runtime. Batches already running keep their snapshot.
func (h *Holder) AddExact(alias string, target Target) error {
	key := Clean(alias)
	if key == "" {
		return fmt.Errorf("alias %q is empty after cleaning", alias)
	}
	return h.update(func(s *Snapshot) error {
		s.Exact[key] = target
		return nil
	})
}

// AddRule appends a rule at runtime, after the existing ones.
func (h *Holder) AddRule(rule Rule) error {
	return h.update(func(s *Snapshot) error {
		s.Rules = append(s.Rules, rule)
		return nil
	})
}

func (h *Holder) update(mutate func(*Snapshot) error) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	cur := h.current.Load()
	if cur == nil {
		return ErrNoSnapshot
	}
	next := cur.clone()
	if err := mutate(next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	h.current.Store(next)
	return nil
}
