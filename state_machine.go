package identity

import (
	"sync"
)

// IdentityState is the coarse lifecycle state of the current principal.
type IdentityState string

const (
	// StateAnonymous means no principal is signed in
	StateAnonymous IdentityState = "anonymous"
	// StateAuthenticating means a credential exchange is in flight
	StateAuthenticating IdentityState = "authenticating"
	// StateAuthenticated means a principal is signed in
	StateAuthenticated IdentityState = "authenticated"
)

// Snapshot is an immutable view of the current identity. It replaces global
// mutable state: consumers receive it through Subscribe or Current and must
// not retain pointers past the next change.
type Snapshot struct {
	State   IdentityState
	Profile *Profile
	Session *Session
	Admin   AdminDecision
}

// IsAuthenticated reports whether a principal is signed in.
func (s Snapshot) IsAuthenticated() bool {
	return s.State == StateAuthenticated && s.Profile != nil
}

// CanRenderPrivileged reports whether privileged views may render. The admin
// flag stays Unknown until resolution finishes; dependent routes must block
// or redirect rather than flash privileged content.
func (s Snapshot) CanRenderPrivileged() bool {
	return s.IsAuthenticated() && s.Admin.Status == AdminYes
}

// SubscriberFunc observes identity snapshots.
type SubscriberFunc func(Snapshot)

type identityStateMachine struct {
	mu          sync.Mutex
	current     Snapshot
	transitions map[IdentityState]map[IdentityState]struct{}
	subscribers map[int]SubscriberFunc
	nextSubID   int
	logger      Logger
}

func newIdentityStateMachine(logger Logger) *identityStateMachine {
	if logger == nil {
		logger = defLogger{}
	}

	return &identityStateMachine{
		current: Snapshot{State: StateAnonymous},
		transitions: map[IdentityState]map[IdentityState]struct{}{
			StateAnonymous: {
				StateAuthenticating: {},
				// process restore adopts an existing backend session directly
				StateAuthenticated: {},
			},
			StateAuthenticating: {
				StateAuthenticated: {},
				StateAnonymous:     {},
			},
			StateAuthenticated: {
				StateAnonymous: {},
			},
		},
		subscribers: map[int]SubscriberFunc{},
		logger:      logger,
	}
}

// Current returns the latest snapshot.
func (m *identityStateMachine) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe registers an observer and returns a cancel function. The
// observer is invoked immediately with the current snapshot so late
// subscribers do not miss state.
func (m *identityStateMachine) Subscribe(fn SubscriberFunc) func() {
	if fn == nil {
		return func() {}
	}

	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	snapshot := m.current
	m.mu.Unlock()

	fn(snapshot)

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// transition moves to the target state, applying mutate to the pending
// snapshot, then broadcasts to subscribers. Same-state transitions are
// allowed so the snapshot can be refreshed in place (e.g. session touch).
func (m *identityStateMachine) transition(target IdentityState, mutate func(*Snapshot)) error {
	m.mu.Lock()

	from := m.current.State
	if from != target && !m.canTransition(from, target) {
		m.mu.Unlock()
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"from": string(from),
			"to":   string(target),
		})
	}

	next := m.current
	next.State = target
	if mutate != nil {
		mutate(&next)
	}

	if target == StateAnonymous {
		next.Profile = nil
		next.Session = nil
		next.Admin = AdminDecision{}
	}

	m.current = next

	observers := make([]SubscriberFunc, 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		observers = append(observers, fn)
	}
	m.mu.Unlock()

	for _, fn := range observers {
		fn(next)
	}

	return nil
}

func (m *identityStateMachine) canTransition(from, to IdentityState) bool {
	if allowed, ok := m.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}
