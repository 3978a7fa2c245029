// Package sessionstore tracks live sessions. A session's mutable state
// (budget, trace, fingerprints, cached history) is exclusively owned by
// the one control flow driving it; the store itself only manages
// lifecycle (LRU + TTL eviction).
package sessionstore

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flexigpt/agentengine-go/internal/budget"
	"github.com/flexigpt/agentengine-go/internal/fingerprint"
	"github.com/flexigpt/agentengine-go/internal/steptrace"
	"github.com/flexigpt/agentengine-go/spec"
)

// Session is one active request's state. Never shared across concurrent
// requests.
type Session struct {
	ID spec.SessionID

	Skill spec.SkillDescriptor

	// TurnIndex counts planner turns driven so far.
	TurnIndex int

	Budget       *budget.Tracker
	Trace        *steptrace.Trace
	Fingerprints *fingerprint.Set

	// History is the session-lifetime cache of the external history
	// store's messages.
	History []spec.Message

	closed bool
}

type Store struct {
	mu sync.Mutex

	ttl         time.Duration
	maxSessions int

	lru *list.List               // front=MRU
	m   map[spec.SessionID]*list.Element
}

type item struct {
	s        *Session
	lastUsed time.Time
}

const (
	defaultTTL = 24 * time.Hour
	defaultMax = 4096
)

func New() *Store {
	return &Store{
		ttl:         defaultTTL,
		maxSessions: defaultMax,
		lru:         list.New(),
		m:           map[spec.SessionID]*list.Element{},
	}
}

func (st *Store) SetTTL(ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	st.mu.Lock()
	st.ttl = ttl
	st.evictExpiredLocked(time.Now())
	st.mu.Unlock()
}

func (st *Store) SetMaxSessions(maxSessions int) {
	if maxSessions < 0 {
		maxSessions = 0
	}
	st.mu.Lock()
	st.maxSessions = maxSessions
	st.evictOverLimitLocked()
	st.mu.Unlock()
}

// NewSession creates a session for a routed skill with fresh counters and
// an empty trace. When id is empty a UUIDv7 is assigned.
func (st *Store) NewSession(id spec.SessionID, skill spec.SkillDescriptor, b *budget.Tracker) *Session {
	now := time.Now()
	st.mu.Lock()
	defer st.mu.Unlock()

	st.evictExpiredLocked(now)
	st.evictOverLimitLocked()

	if id == "" {
		id = spec.SessionID(uuid.Must(uuid.NewV7()).String())
	}
	s := &Session{
		ID:           id,
		Skill:        skill,
		Budget:       b,
		Trace:        steptrace.New(),
		Fingerprints: fingerprint.NewSet(),
	}
	e := st.lru.PushFront(&item{s: s, lastUsed: now})
	st.m[id] = e

	st.evictOverLimitLocked()
	return s
}

func (st *Store) Get(id spec.SessionID) (*Session, bool) {
	now := time.Now()
	st.mu.Lock()
	defer st.mu.Unlock()

	st.evictExpiredLocked(now)

	e := st.m[id]
	if e == nil {
		return nil, false
	}
	it, _ := e.Value.(*item)
	if it == nil || it.s == nil || it.s.closed {
		st.deleteElemLocked(e)
		return nil, false
	}

	it.lastUsed = now
	st.lru.MoveToFront(e)
	return it.s, true
}

func (st *Store) Delete(id spec.SessionID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if e := st.m[id]; e != nil {
		st.deleteElemLocked(e)
	}
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lru.Len()
}

func (st *Store) evictExpiredLocked(now time.Time) {
	if st.ttl <= 0 {
		return
	}
	for e := st.lru.Back(); e != nil; {
		prev := e.Prev()
		it, ok := e.Value.(*item)
		if !ok || it == nil || it.s == nil {
			st.deleteElemLocked(e)
			e = prev
			continue
		}
		if now.Sub(it.lastUsed) <= st.ttl {
			break
		}
		st.deleteElemLocked(e)
		e = prev
	}
}

func (st *Store) evictOverLimitLocked() {
	if st.maxSessions <= 0 {
		return
	}
	for st.lru.Len() > st.maxSessions {
		e := st.lru.Back()
		if e == nil {
			return
		}
		st.deleteElemLocked(e)
	}
}

func (st *Store) deleteElemLocked(e *list.Element) {
	it, _ := e.Value.(*item)
	if it != nil && it.s != nil {
		delete(st.m, it.s.ID)
		it.s.closed = true
	}
	st.lru.Remove(e)
}
