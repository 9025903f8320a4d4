package conference

import (
	"sync"

	"golang.org/x/exp/slices"
)

// ParticipantRegistry is the authoritative, thread-safe set of participant call-ids.
// Insertion is unique: adding an id already present is a no-op.
type ParticipantRegistry struct {
	mu           sync.RWMutex
	participants map[ParticipantID]struct{}
}

func NewParticipantRegistry() *ParticipantRegistry {
	return &ParticipantRegistry{participants: make(map[ParticipantID]struct{})}
}

// Add inserts callID, returning false if it was already present.
func (r *ParticipantRegistry) Add(callID ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.participants[callID]; ok {
		return false
	}

	r.participants[callID] = struct{}{}

	return true
}

// Remove deletes callID, returning false if it was absent.
func (r *ParticipantRegistry) Remove(callID ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.participants[callID]; !ok {
		return false
	}

	delete(r.participants, callID)

	return true
}

func (r *ParticipantRegistry) Has(callID ParticipantID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.participants[callID]
	return ok
}

// List returns a deterministically ordered snapshot of the current participants. The
// ordering has no protocol meaning (row order in a broadcast layout comes from mixer
// source assignment, not this list) but a stable order makes bind/unbind sequences
// reproducible in tests and logs.
func (r *ParticipantRegistry) List() []ParticipantID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]ParticipantID, 0, len(r.participants))
	for id := range r.participants {
		list = append(list, id)
	}

	slices.Sort(list)

	return list
}

func (r *ParticipantRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// ModeratorSet tracks the set of peer URIs authorised as moderators. isModerator(host)
// is always true regardless of set membership since the host has moderator rights by
// definition.
type ModeratorSet struct {
	set *peerSet
}

func NewModeratorSet() *ModeratorSet {
	return &ModeratorSet{set: newPeerSet()}
}

func (m *ModeratorSet) Add(uri PeerURI)    { m.set.Add(uri) }
func (m *ModeratorSet) Remove(uri PeerURI) { m.set.Remove(uri) }

// IsModerator reports whether uri is a moderator: the host always is, everyone else is
// looked up (with the "@..." suffix already expected to be stripped by the caller).
func (m *ModeratorSet) IsModerator(uri PeerURI) bool {
	if uri == HostURI {
		return true
	}

	return m.set.Has(uri)
}
