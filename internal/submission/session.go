package submission

import (
	"sync"
	"time"
)

// State is the per-user submission progress.
type State int

const (
	StateIdle State = iota
	StateAwaitingPhone
	StateAwaitingText
)

func (s State) String() string {
	switch s {
	case StateAwaitingPhone:
		return "awaiting_phone"
	case StateAwaitingText:
		return "awaiting_text"
	default:
		return "idle"
	}
}

// session carries one in-progress submission. It lives only in memory:
// a process restart cancels all drafts. There is no timeout eviction —
// abandoned sessions stay until cancelled or completed.
type session struct {
	state     State
	phone     string
	startedAt time.Time
}

// sessionStore maps user id -> session. Event delivery is serialized per
// user, so the mutex only protects against cross-user map access from the
// dispatcher and future parallel callers, not against per-key races.
type sessionStore struct {
	mu sync.Mutex
	m  map[int64]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{m: make(map[int64]*session)}
}

func (st *sessionStore) get(userID int64) (*session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.m[userID]
	return s, ok
}

func (st *sessionStore) begin(userID int64) *session {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := &session{state: StateAwaitingPhone, startedAt: time.Now()}
	st.m[userID] = s
	return s
}

func (st *sessionStore) drop(userID int64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.m[userID]
	delete(st.m, userID)
	return ok
}

func (st *sessionStore) count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.m)
}
