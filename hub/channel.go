// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

package hub

import "sync"

// channel is the runtime state of one named channel: the roster, the open
// subscribed connections in registration order, and the lock that serializes
// roster mutation, store appends and broadcast fan-out. Holding the lock
// across a whole subscribe guarantees that history replay and live presence
// broadcast never interleave for a connecting client, and that fan-out of one
// event completes before the next event of the channel starts.
type channel struct {
	name string

	mu     sync.Mutex
	subs   []*Session
	roster map[string]Participant
	conns  map[string]int
}

func newChannel(name string) *channel {
	return &channel{
		name:   name,
		roster: make(map[string]Participant),
		conns:  make(map[string]int),
	}
}

func (ch *channel) broadcast(frame Frame, originator *Session, ref *uint64) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.broadcastLocked(frame, originator, ref)
}

// broadcastLocked delivers the frame to every subscriber in registration
// order. Only the originator's copy carries ref. A failed send closes the
// client so that its read loop tears the connection down; delivery to the
// remaining subscribers is not blocked.
func (ch *channel) broadcastLocked(frame Frame, originator *Session, ref *uint64) {
	for _, sub := range ch.subs {
		f := frame
		f.Ref = nil
		if sub == originator {
			f.Ref = ref
		}
		if err := sub.client.Send(f); err != nil {
			sub.client.Close()
		}
	}
}

func (ch *channel) addLocked(s *Session) {
	ch.subs = append(ch.subs, s)
	ch.conns[s.Caller]++
	if _, ok := ch.roster[s.Caller]; !ok {
		ch.roster[s.Caller] = Participant{ID: s.Caller}
	}
}

// removeLocked unregisters the session and reports whether it was the last
// open connection of its caller on this channel.
func (ch *channel) removeLocked(s *Session) (registered, last bool) {
	idx := -1
	for i, sub := range ch.subs {
		if sub == s {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, false
	}
	ch.subs = append(ch.subs[:idx], ch.subs[idx+1:]...)

	ch.conns[s.Caller]--
	if ch.conns[s.Caller] > 0 {
		return true, false
	}
	delete(ch.conns, s.Caller)
	return true, true
}

// participants returns a copy of the live roster.
func (ch *channel) participants() []Participant {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	res := make([]Participant, 0, len(ch.roster))
	for _, p := range ch.roster {
		res = append(res, p)
	}
	return res
}
