// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtserver

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/wavetermdev/rendertree/pkg/batchlog"
	"github.com/wavetermdev/rendertree/pkg/rtdoc"
)

const subscriberChSize = 16

type RenderEvent struct {
	SessionId string `json:"sessionid"`
	Seq       int    `json:"seq"`
	Html      string `json:"html"`
	Broken    bool   `json:"broken,omitempty"`
	Error     string `json:"error,omitempty"`
}

type SessionInfo struct {
	SessionId     string                   `json:"sessionid"`
	Roots         []batchlog.RootComponent `json:"roots"`
	Seq           int                      `json:"seq"`
	Broken        bool                     `json:"broken,omitempty"`
	BrokenError   string                   `json:"brokenerror,omitempty"`
	NumComponents int                      `json:"numcomponents"`
	BatchCount    int                      `json:"batchcount"`
}

// Session owns one Document.  lock serializes batch application; a document is
// never patched by two batches at once.
type Session struct {
	SessionId string
	Roots     []batchlog.RootComponent

	lock      sync.Mutex
	doc       *rtdoc.Document
	lastSeq   int
	broken    bool
	brokenErr string

	subLock     sync.Mutex
	subscribers map[string]chan RenderEvent
}

func makeDocument(roots []batchlog.RootComponent) (*rtdoc.Document, error) {
	doc := rtdoc.MakeDocument()
	for _, root := range roots {
		err := doc.AddRootComponent(root.ComponentId, root.Selector)
		if err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func makeSession(sessionId string, roots []batchlog.RootComponent) (*Session, error) {
	doc, err := makeDocument(roots)
	if err != nil {
		return nil, err
	}
	return &Session{
		SessionId:   sessionId,
		Roots:       roots,
		doc:         doc,
		subscribers: make(map[string]chan RenderEvent),
	}, nil
}

func (s *Session) Render() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.doc.Render()
}

func (s *Session) Dump() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.doc.Dump()
}

func (s *Session) Info() SessionInfo {
	s.lock.Lock()
	defer s.lock.Unlock()
	return SessionInfo{
		SessionId:     s.SessionId,
		Roots:         s.Roots,
		Seq:           s.lastSeq,
		Broken:        s.broken,
		BrokenError:   s.brokenErr,
		NumComponents: s.doc.NumComponents(),
		BatchCount:    s.doc.BatchCount(),
	}
}

// must hold s.lock
func (s *Session) renderEventLocked() RenderEvent {
	return RenderEvent{
		SessionId: s.SessionId,
		Seq:       s.lastSeq,
		Html:      s.doc.Render(),
		Broken:    s.broken,
		Error:     s.brokenErr,
	}
}

func (s *Session) CurrentEvent() RenderEvent {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.renderEventLocked()
}

func (s *Session) Subscribe() (string, <-chan RenderEvent) {
	s.subLock.Lock()
	defer s.subLock.Unlock()
	subId := uuid.NewString()
	ch := make(chan RenderEvent, subscriberChSize)
	s.subscribers[subId] = ch
	return subId, ch
}

func (s *Session) Unsubscribe(subId string) {
	s.subLock.Lock()
	defer s.subLock.Unlock()
	delete(s.subscribers, subId)
}

func (s *Session) NumSubscribers() int {
	s.subLock.Lock()
	defer s.subLock.Unlock()
	return len(s.subscribers)
}

// slow subscribers miss events rather than block the producer
func (s *Session) publish(event RenderEvent) {
	s.subLock.Lock()
	defer s.subLock.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

type SessionMap struct {
	lock sync.Mutex
	m    map[string]*Session
}

func MakeSessionMap() *SessionMap {
	return &SessionMap{m: make(map[string]*Session)}
}

func (sm *SessionMap) Get(sessionId string) *Session {
	sm.lock.Lock()
	defer sm.lock.Unlock()
	return sm.m[sessionId]
}

func (sm *SessionMap) Set(sess *Session) {
	sm.lock.Lock()
	defer sm.lock.Unlock()
	sm.m[sess.SessionId] = sess
}

// GetOrSet stores sess unless the id is already present, returning the stored session
func (sm *SessionMap) GetOrSet(sess *Session) *Session {
	sm.lock.Lock()
	defer sm.lock.Unlock()
	if existing, ok := sm.m[sess.SessionId]; ok {
		return existing
	}
	sm.m[sess.SessionId] = sess
	return sess
}

func (sm *SessionMap) Delete(sessionId string) {
	sm.lock.Lock()
	defer sm.lock.Unlock()
	delete(sm.m, sessionId)
}

func (sm *SessionMap) Keys() []string {
	sm.lock.Lock()
	defer sm.lock.Unlock()
	var keys []string
	for key := range sm.m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
