package session

import (
    "errors"
    "sync"
)

// ErrUnknownSession is returned for session IDs the store has never seen.
var ErrUnknownSession = errors.New("session: unknown session")

// Store holds live sessions plus a bounded archive of completed ones. Task ID
// lookups give submission its idempotency: a task resubmitted under the same
// ID maps to the existing session.
type Store struct {
    mu      sync.RWMutex
    byID    map[string]*Session
    byTask  map[string]string // taskID -> sessionID
    archive map[string]*Session
    order   []string // archival order, oldest first
    maxArch int
}

// NewStore creates a store archiving at most maxArchive completed sessions
// (0 means DefaultMaxArchive).
func NewStore(maxArchive int) *Store {
    if maxArchive <= 0 {
        maxArchive = DefaultMaxArchive
    }
    return &Store{
        byID:    make(map[string]*Session),
        byTask:  make(map[string]string),
        archive: make(map[string]*Session),
        maxArch: maxArchive,
    }
}

// DefaultMaxArchive bounds the archive of finalized/failed sessions.
const DefaultMaxArchive = 1024

// Put registers a new live session.
func (st *Store) Put(s *Session) {
    st.mu.Lock()
    st.byID[s.ID] = s
    st.byTask[s.Task.ID] = s.ID
    st.mu.Unlock()
}

// Get returns a session by ID, live or archived.
func (st *Store) Get(id string) (*Session, error) {
    st.mu.RLock()
    defer st.mu.RUnlock()
    if s, ok := st.byID[id]; ok {
        return s, nil
    }
    if s, ok := st.archive[id]; ok {
        return s, nil
    }
    return nil, ErrUnknownSession
}

// SessionIDForTask returns the session ID previously assigned to a task ID.
func (st *Store) SessionIDForTask(taskID string) (string, bool) {
    st.mu.RLock()
    defer st.mu.RUnlock()
    id, ok := st.byTask[taskID]
    return id, ok
}

// Archive moves a terminal session out of the live set. The task ID mapping
// is retained so resubmission stays idempotent after finalization. Oldest
// archived sessions are evicted beyond the configured bound.
func (st *Store) Archive(id string) {
    st.mu.Lock()
    defer st.mu.Unlock()
    s, ok := st.byID[id]
    if !ok {
        return
    }
    delete(st.byID, id)
    st.archive[id] = s
    st.order = append(st.order, id)
    for len(st.order) > st.maxArch {
        old := st.order[0]
        st.order = st.order[1:]
        if victim, ok := st.archive[old]; ok {
            delete(st.archive, old)
            delete(st.byTask, victim.Task.ID)
        }
    }
}

// Live returns the number of live (non-archived) sessions.
func (st *Store) Live() int {
    st.mu.RLock()
    defer st.mu.RUnlock()
    return len(st.byID)
}

// Archived returns the number of archived sessions.
func (st *Store) Archived() int {
    st.mu.RLock()
    defer st.mu.RUnlock()
    return len(st.archive)
}
