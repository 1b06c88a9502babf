package notification

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/iftv-ott/iftv_client/internal/identity"
)

// AuthState is what the UI renders from.
type AuthState struct {
	User            identity.Profile `json:"user"`
	IsAuthenticated bool             `json:"isAuthenticated"`
	Loading         bool             `json:"loading"`
}

func (s AuthState) clone() AuthState {
	s.User = s.User.Clone()
	return s
}

// Subscriber receives every published state. It is called synchronously on
// the publishing goroutine and must not block.
type Subscriber func(AuthState)

// Broadcaster fans auth state out to explicitly registered subscribers.
type Broadcaster struct {
	mu    sync.Mutex
	state AuthState
	subs  map[uint64]Subscriber
	next  uint64
}

// NewBroadcaster returns a broadcaster in the startup state: not
// authenticated and loading.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		state: AuthState{Loading: true},
		subs:  make(map[uint64]Subscriber),
	}
}

// Subscribe registers fn, delivers the current snapshot to it and returns a
// function that unregisters it. Calling the returned function twice is safe.
func (b *Broadcaster) Subscribe(fn Subscriber) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	current := b.state.clone()
	b.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish records state and notifies every subscriber in registration order.
func (b *Broadcaster) Publish(state AuthState) {
	b.mu.Lock()
	b.state = state.clone()
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	subs := make([]Subscriber, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		subs = append(subs, b.subs[id])
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(state.clone())
	}
}

// Snapshot returns the last published state.
func (b *Broadcaster) Snapshot() AuthState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.clone()
}

// LogSubscriber writes each state change to logger. Repeated identical
// states are not logged again.
func LogSubscriber(logger *slog.Logger) Subscriber {
	var (
		mu   sync.Mutex
		last *AuthState
	)
	return func(s AuthState) {
		if logger == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if last != nil && last.IsAuthenticated == s.IsAuthenticated && last.Loading == s.Loading && len(last.User) == len(s.User) {
			return
		}
		last = &s
		logger.Info("auth state",
			slog.Bool("authenticated", s.IsAuthenticated),
			slog.Bool("loading", s.Loading),
			slog.Int("profile_fields", len(s.User)),
		)
	}
}
