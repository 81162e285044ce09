package suffixlist

import "sync/atomic"

type rulesRef struct {
	rules Rules
}

// Holder publishes the current rule set to concurrent readers. Lookups
// always see one complete table; Store swaps tables atomically.
type Holder struct {
	current atomic.Pointer[rulesRef]
}

// NewHolder creates a holder serving initial.
func NewHolder(initial Rules) *Holder {
	h := &Holder{}
	h.Store(initial)
	return h
}

// Store replaces the served rules.
func (h *Holder) Store(r Rules) {
	h.current.Store(&rulesRef{rules: r})
}

// Load returns the rules currently served.
func (h *Holder) Load() Rules {
	ref := h.current.Load()
	if ref == nil {
		return nil
	}
	return ref.rules
}

// Snapshot returns the rules currently served. Unlike Lookup on the
// holder itself, the result is not affected by later Stores.
func (h *Holder) Snapshot() Rules {
	if r := h.Load(); r != nil {
		return r
	}
	return NewTable(nil)
}

// Lookup implements Rules against the current table.
func (h *Holder) Lookup(suffix string) (Kind, bool) {
	r := h.Load()
	if r == nil {
		return 0, false
	}
	return r.Lookup(suffix)
}
