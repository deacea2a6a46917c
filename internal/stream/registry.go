package stream

import "sync"

// Token is the cooperative cancellation flag shared between one caller
// and one stream consumer. Signalling is idempotent.
type Token struct {
	once sync.Once
	done chan struct{}
}

func newToken() *Token {
	return &Token{done: make(chan struct{})}
}

func (t *Token) Signal() {
	t.once.Do(func() { close(t.done) })
}

func (t *Token) Done() <-chan struct{} { return t.done }

func (t *Token) Signalled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Registry maps a chat id to the cancellation token of its active
// stream. An entry lives from Start until the dispatcher processes the
// stream's terminal update; cancelling alone does not remove it, the
// consumer still has to tear down.
type Registry struct {
	mu     sync.Mutex
	active map[int64]*Token
}

func NewRegistry() *Registry {
	return &Registry{active: make(map[int64]*Token)}
}

// Start registers a fresh token for the chat id. A prior token is
// signalled before being replaced, so a superseded worker always keeps
// a reachable stop path.
func (r *Registry) Start(chatID int64) *Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.active[chatID]; ok {
		old.Signal()
	}
	t := newToken()
	r.active[chatID] = t
	return t
}

// Signal requests cancellation of the chat's active stream. Returns
// false when no stream is registered.
func (r *Registry) Signal(chatID int64) bool {
	r.mu.Lock()
	t, ok := r.active[chatID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	t.Signal()
	return true
}

func (r *Registry) IsActive(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[chatID]
	return ok
}

// Clear removes the chat's entry. When t is non-nil the entry is only
// removed if it still belongs to that token, so a terminal update from
// a superseded stream cannot drop its successor's entry.
func (r *Registry) Clear(chatID int64, t *Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.active[chatID]
	if !ok {
		return
	}
	if t == nil || cur == t {
		delete(r.active, chatID)
	}
}
