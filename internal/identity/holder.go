package identity

import (
	"fmt"
	"sync"

	"transcript-client/internal/common/logger"
	"transcript-client/internal/models"
)

// Listener is called with a copy of the new identity after every Set.
type Listener func(*models.Identity)

// Holder is the in-memory identity of the signed-in user. Listeners run
// synchronously, in registration order, on the goroutine that called Set.
// A panicking listener is logged and the remaining listeners still run.
type Holder struct {
	logger logger.Logger

	mu        sync.RWMutex
	current   *models.Identity
	listeners map[uint64]Listener
	order     []uint64
	nextID    uint64
}

func NewHolder(log logger.Logger) *Holder {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Holder{
		logger:    log.Named("identity"),
		listeners: make(map[uint64]Listener),
	}
}

// Current returns a copy, or nil when nobody is signed in.
func (h *Holder) Current() *models.Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.Clone()
}

// Set replaces the identity and notifies listeners.
func (h *Holder) Set(ident *models.Identity) {
	h.mu.Lock()
	h.current = ident.Clone()
	listeners := make([]Listener, 0, len(h.order))
	for _, id := range h.order {
		listeners = append(listeners, h.listeners[id])
	}
	h.mu.Unlock()

	for i, l := range listeners {
		h.notify(i, l, ident.Clone())
	}
}

func (h *Holder) notify(position int, l Listener, ident *models.Identity) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("identity listener panicked", map[string]interface{}{
				"listener": position,
				"panic":    fmt.Sprint(r),
			})
		}
	}()
	l(ident)
}

// Subscribe registers l and returns a func that removes it. A nil listener
// is ignored.
func (h *Holder) Subscribe(l Listener) (unsubscribe func()) {
	if l == nil {
		return func() {}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	h.listeners[id] = l
	h.order = append(h.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.listeners, id)
			for i, v := range h.order {
				if v == id {
					h.order = append(h.order[:i], h.order[i+1:]...)
					break
				}
			}
		})
	}
}
