package statestore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryHub is a process-local shared backing for Memory stores. Each store
// opened from the same hub sees the others' writes through Watch, which makes
// the hub a stand-in for two tabs sharing browser storage in tests.
type MemoryHub struct {
	mu       sync.Mutex
	values   map[string]string
	watchers map[*Memory][]chan Event
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		values:   make(map[string]string),
		watchers: make(map[*Memory][]chan Event),
	}
}

// Open returns a new store attached to the hub with its own origin.
func (h *MemoryHub) Open() *Memory {
	return &Memory{hub: h, origin: uuid.New().String()}
}

func (h *MemoryHub) set(src *Memory, key, value string) {
	h.mu.Lock()
	h.values[key] = value
	h.notifyLocked(src, Event{Key: key, Value: value, Origin: src.origin})
	h.mu.Unlock()
}

func (h *MemoryHub) delete(src *Memory, key string) {
	h.mu.Lock()
	delete(h.values, key)
	h.notifyLocked(src, Event{Key: key, Origin: src.origin, Deleted: true})
	h.mu.Unlock()
}

// notifyLocked fans the event to every watcher except the writer's own.
// Sends are non-blocking: a watcher that stops draining loses events
// rather than wedging writers.
func (h *MemoryHub) notifyLocked(src *Memory, ev Event) {
	for m, chans := range h.watchers {
		if m == src {
			continue
		}
		for _, ch := range chans {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Memory is an in-process Store client of a MemoryHub.
type Memory struct {
	hub    *MemoryHub
	origin string
}

var _ Store = (*Memory)(nil)

// NewMemory returns a standalone in-memory store on its own private hub.
func NewMemory() *Memory {
	return NewMemoryHub().Open()
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()
	v, ok := m.hub.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.hub.set(m, key, value)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.hub.delete(m, key)
	return nil
}

func (m *Memory) Watch(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, 16)
	m.hub.mu.Lock()
	m.hub.watchers[m] = append(m.hub.watchers[m], ch)
	m.hub.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.hub.mu.Lock()
		defer m.hub.mu.Unlock()
		// Close only if still registered; Close may have beaten us to it.
		chans := m.hub.watchers[m]
		for i, c := range chans {
			if c == ch {
				m.hub.watchers[m] = append(chans[:i], chans[i+1:]...)
				close(ch)
				return
			}
		}
	}()

	return ch, nil
}

func (m *Memory) Origin() string { return m.origin }

// Close detaches the store from the hub and closes its watch channels, so
// a watcher whose context outlives the store still unblocks.
func (m *Memory) Close() error {
	m.hub.mu.Lock()
	for _, ch := range m.hub.watchers[m] {
		close(ch)
	}
	delete(m.hub.watchers, m)
	m.hub.mu.Unlock()
	return nil
}
