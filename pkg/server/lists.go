package server

import (
	"maps"
	"sync"

	"github.com/cyvasse-online/server/pkg/domain"
	"github.com/cyvasse-online/server/pkg/transport/protocol"
	"github.com/samber/lo"
)

// Notifier delivers one envelope to a set of connections.
type Notifier func(to []domain.ConnID, env *protocol.Envelope)

// DiscoveryList is one named catalog of matches plus the connections
// watching it.
//
// mu guards entries and subscribers and is never held while sending.
// sendMu serialises changes and outgoing snapshots so that a subscriber
// always ends up with the newest one. It is taken before mu and before
// any registry lock.
type DiscoveryList struct {
	name        protocol.ListName
	sendMu      sync.Mutex
	mu          sync.Mutex
	entries     map[string]protocol.ListEntry
	subscribers map[domain.ConnID]struct{}
}

func newDiscoveryList(name protocol.ListName) *DiscoveryList {
	return &DiscoveryList{
		name:        name,
		entries:     make(map[string]protocol.ListEntry),
		subscribers: make(map[domain.ConnID]struct{}),
	}
}

// Snapshot returns a copy of the current entries.
func (l *DiscoveryList) Snapshot() map[string]protocol.ListEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.entries)
}

// Subscribers returns the connections currently watching the list.
func (l *DiscoveryList) Subscribers() []domain.ConnID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return lo.Keys(l.subscribers)
}

// Lists holds every discovery list and broadcasts their changes.
type Lists struct {
	lists  map[protocol.ListName]*DiscoveryList
	notify Notifier
}

// NewLists creates the known discovery lists.
func NewLists(notify Notifier) *Lists {
	lists := make(map[protocol.ListName]*DiscoveryList, len(protocol.Lists))
	for _, name := range protocol.Lists {
		lists[name] = newDiscoveryList(name)
	}
	return &Lists{lists: lists, notify: notify}
}

// Get returns the list called name.
func (ls *Lists) Get(name protocol.ListName) (*DiscoveryList, bool) {
	l, ok := ls.lists[name]
	return l, ok
}

// Put adds or replaces the entry for matchID and broadcasts the list if
// it changed.
func (ls *Lists) Put(name protocol.ListName, matchID string, entry protocol.ListEntry) {
	ls.Sync(name, matchID, func() (protocol.ListEntry, bool) { return entry, true })
}

// Remove deletes matchID from the list and broadcasts if it was present.
func (ls *Lists) Remove(name protocol.ListName, matchID string) {
	ls.Sync(name, matchID, func() (protocol.ListEntry, bool) { return protocol.ListEntry{}, false })
}

// Sync lists matchID with the entry returned by want, or unlists it when
// want returns false, and broadcasts if the list changed. want runs with
// the list's send lock held, so when every change to a match is followed
// by a Sync that reads the match's current state, the last Sync to run
// leaves the list matching that state.
func (ls *Lists) Sync(name protocol.ListName, matchID string, want func() (protocol.ListEntry, bool)) {
	l, ok := ls.lists[name]
	if !ok {
		return
	}

	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	entry, keep := want()

	l.mu.Lock()
	old, existed := l.entries[matchID]
	switch {
	case keep && existed && old == entry, !keep && !existed:
		l.mu.Unlock()
		return
	case keep:
		l.entries[matchID] = entry
	default:
		delete(l.entries, matchID)
	}
	games, subs := maps.Clone(l.entries), lo.Keys(l.subscribers)
	l.mu.Unlock()

	ls.broadcast(l.name, games, subs)
}

// Subscribe adds conn to the list's subscribers and sends it the current
// snapshot if the list is not empty. It returns false for unknown names.
func (ls *Lists) Subscribe(conn domain.ConnID, name protocol.ListName) bool {
	l, ok := ls.lists[name]
	if !ok {
		return false
	}

	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	l.mu.Lock()
	games := maps.Clone(l.entries)
	l.subscribers[conn] = struct{}{}
	l.mu.Unlock()

	if len(games) > 0 {
		ls.broadcast(l.name, games, []domain.ConnID{conn})
	}
	return true
}

// Unsubscribe removes conn from the list's subscribers.
func (ls *Lists) Unsubscribe(conn domain.ConnID, name protocol.ListName) bool {
	l, ok := ls.lists[name]
	if !ok {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subscribers, conn)
	return true
}

// UnsubscribeAll removes conn from every list.
func (ls *Lists) UnsubscribeAll(conn domain.ConnID) {
	for _, name := range protocol.Lists {
		ls.Unsubscribe(conn, name)
	}
}

func (ls *Lists) broadcast(name protocol.ListName, games map[string]protocol.ListEntry, to []domain.ConnID) {
	if len(to) == 0 || ls.notify == nil {
		return
	}
	ls.notify(to, protocol.ListUpdate(name, games))
}
