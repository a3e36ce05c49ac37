// Package store holds the most recent raw envelope and parsed reading per
// message type. Only the latest value survives; nothing is persisted.
package store

import (
	"sort"
	"sync"

	"tempest-gateway/internal/station"
)

type Latest struct {
	mu     sync.Mutex
	raw    map[string]station.Envelope
	parsed map[string]station.Reading
}

func NewLatest() *Latest {
	return &Latest{
		raw:    make(map[string]station.Envelope),
		parsed: make(map[string]station.Reading),
	}
}

// SetRaw records the latest raw envelope for a message type.
func (l *Latest) SetRaw(msgType string, env station.Envelope) {
	l.mu.Lock()
	l.raw[msgType] = env
	l.mu.Unlock()
}

// SetParsed records the latest parsed reading for a message type.
func (l *Latest) SetParsed(msgType string, r station.Reading) {
	l.mu.Lock()
	l.parsed[msgType] = r
	l.mu.Unlock()
}

// DropParsed evicts a stale parsed entry for a type received without a
// registered parser.
func (l *Latest) DropParsed(msgType string) {
	l.mu.Lock()
	delete(l.parsed, msgType)
	l.mu.Unlock()
}

// Raw returns the latest raw envelope for a message type.
func (l *Latest) Raw(msgType string) (station.Envelope, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	env, ok := l.raw[msgType]
	return env, ok
}

// Parsed returns the latest parsed reading for a message type.
func (l *Latest) Parsed(msgType string) (station.Reading, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.parsed[msgType]
	return r, ok
}

// MessageTypes lists every message type observed so far, sorted.
func (l *Latest) MessageTypes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	types := make([]string, 0, len(l.raw))
	for t := range l.raw {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Count reports how many message types have been observed.
func (l *Latest) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.raw)
}
