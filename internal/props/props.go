// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package props provides the string property bags attached to media-graph
// objects and the constraint predicates evaluated against them.
package props

import (
	"errors"
	"sort"
	"sync/atomic"
)

// ErrInvalidArgument marks a rejected API input, such as an empty key.
var ErrInvalidArgument = errors.New("invalid argument")

// bag is the shared backing store of one or more Properties handles.
// Handles count their references so mutation can copy-on-write instead
// of corrupting a bag another observer is matching against.
type bag struct {
	entries map[string]string
	handles atomic.Int32
}

// Properties is a case-sensitive string key-value bag. Cloned handles
// share one backing bag; the first mutation through a shared handle
// detaches it, so a bag handed out for matching never changes underneath
// the consumer.
type Properties struct {
	b *bag
}

// New returns an empty Properties bag.
func New() *Properties {
	b := &bag{entries: make(map[string]string)}
	b.handles.Store(1)
	return &Properties{b: b}
}

// FromMap returns a Properties bag seeded with the given entries.
func FromMap(entries map[string]string) *Properties {
	p := New()
	for k, v := range entries {
		p.b.entries[k] = v
	}
	return p
}

// FromPairs returns a Properties bag from alternating key, value strings.
// A trailing key without a value is ignored.
func FromPairs(pairs ...string) *Properties {
	p := New()
	for i := 0; i+1 < len(pairs); i += 2 {
		p.b.entries[pairs[i]] = pairs[i+1]
	}
	return p
}

// detach gives the handle a private bag if the backing store is shared.
func (p *Properties) detach() {
	if p.b.handles.Load() <= 1 {
		return
	}
	entries := make(map[string]string, len(p.b.entries))
	for k, v := range p.b.entries {
		entries[k] = v
	}
	p.b.handles.Add(-1)
	nb := &bag{entries: entries}
	nb.handles.Store(1)
	p.b = nb
}

// Set stores value under key. Empty keys are rejected with
// ErrInvalidArgument; empty values are permitted.
func (p *Properties) Set(key, value string) error {
	if key == "" {
		return ErrInvalidArgument
	}
	p.detach()
	p.b.entries[key] = value
	return nil
}

// Unset removes key if present.
func (p *Properties) Unset(key string) {
	if _, ok := p.b.entries[key]; !ok {
		return
	}
	p.detach()
	delete(p.b.entries, key)
}

// Get returns the value stored under key.
func (p *Properties) Get(key string) (string, bool) {
	v, ok := p.b.entries[key]
	return v, ok
}

// Len returns the number of entries.
func (p *Properties) Len() int {
	return len(p.b.entries)
}

// Each calls fn for every entry in key order until fn returns false.
// Keys are sorted so iteration order is reproducible.
func (p *Properties) Each(fn func(key, value string) bool) {
	keys := make([]string, 0, len(p.b.entries))
	for k := range p.b.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn(k, p.b.entries[k]) {
			return
		}
	}
}

// Equal reports whether both bags hold exactly the same entries.
func (p *Properties) Equal(other *Properties) bool {
	if other == nil {
		return p == nil
	}
	if p.b == other.b {
		return true
	}
	if len(p.b.entries) != len(other.b.entries) {
		return false
	}
	for k, v := range p.b.entries {
		if ov, ok := other.b.entries[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Clone returns a cheap handle sharing this bag. Writes through either
// handle detach it first, so existing readers are unaffected.
func (p *Properties) Clone() *Properties {
	p.b.handles.Add(1)
	return &Properties{b: p.b}
}

// Copy returns an independent deep copy.
func (p *Properties) Copy() *Properties {
	entries := make(map[string]string, len(p.b.entries))
	for k, v := range p.b.entries {
		entries[k] = v
	}
	return FromMap(entries)
}
