package conference

import (
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// RemoteHostMerger folds the ConfInfo periodically pushed by remote sub-hosts (peers
// that are themselves conference hosts) into the local layout, rescaling their
// coordinates into the local cell that represents them.
type RemoteHostMerger struct {
	mu     sync.Mutex
	hosts  map[PeerURI]ConfInfo
	logger *logrus.Entry
}

func NewRemoteHostMerger(logger *logrus.Entry) *RemoteHostMerger {
	return &RemoteHostMerger{hosts: make(map[PeerURI]ConfInfo), logger: logger}
}

// LocalCellLookup resolves the local ParticipantInfo row that represents a given remote
// host, and a fallback (decoded-frame) canvas size to use if the remote's own canvas is
// unset.
type LocalCellLookup func(remoteHost PeerURI) (cell ParticipantInfo, ok bool)
type FallbackCanvas func(remoteHost PeerURI) (w, h int)

// Merge applies a freshly received ConfInfo from remoteHost. It returns true if the
// stored state changed and the caller should refresh the mixer layout and rebroadcast.
func (m *RemoteHostMerger) Merge(
	remoteHost PeerURI,
	newInfo ConfInfo,
	lookupCell LocalCellLookup,
	fallback FallbackCanvas,
) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if newInfo.Empty() {
		if _, existed := m.hosts[remoteHost]; !existed {
			return false
		}

		delete(m.hosts, remoteHost)

		return true
	}

	cell, ok := lookupCell(remoteHost)
	if !ok {
		m.logger.WithField("remote_host", remoteHost).Warn("mergeConfInfo: no local cell for remote host, dropping")
		return false
	}

	canvasW, canvasH := newInfo.W, newInfo.H
	if canvasW == 0 || canvasH == 0 {
		canvasW, canvasH = fallback(remoteHost)
	}

	if canvasW == 0 || canvasH == 0 {
		m.logger.WithField("remote_host", remoteHost).Warn("mergeConfInfo: zero canvas even after fallback, aborting merge")
		return false
	}

	if cell.W == 0 || cell.H == 0 {
		m.logger.WithField("remote_host", remoteHost).Warn("mergeConfInfo: zero-sized local cell, aborting merge")
		return false
	}

	zoomX := float64(canvasW) / float64(cell.W)
	zoomY := float64(canvasH) / float64(cell.H)

	rescaled := newInfo.Clone()
	for i, row := range rescaled.Participants {
		rescaled.Participants[i] = ParticipantInfo{
			URI:                 row.URI,
			DeviceID:            row.DeviceID,
			SinkID:              row.SinkID,
			Active:              row.Active,
			X:                   int(float64(row.X)/zoomX) + cell.X,
			Y:                   int(float64(row.Y)/zoomY) + cell.Y,
			W:                   int(float64(row.W) / zoomX),
			H:                   int(float64(row.H) / zoomY),
			VideoMuted:          row.VideoMuted,
			AudioLocalMuted:     row.AudioLocalMuted,
			AudioModeratorMuted: row.AudioModeratorMuted,
			IsModerator:         row.IsModerator,
			HandRaised:          row.HandRaised,
		}
	}

	if stored, existed := m.hosts[remoteHost]; existed && stored.Equal(rescaled) {
		return false
	}

	m.hosts[remoteHost] = rescaled

	return true
}

// Remove drops a remote host's entry outright, e.g. when its participant leaves.
func (m *RemoteHostMerger) Remove(remoteHost PeerURI) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hosts, remoteHost)
}

// sortedHostKeys returns m.hosts's keys in a deterministic order. Go randomises map
// iteration order per-run, which would otherwise make AssembleFor/AssembleAll produce a
// different row order across two calls even when nothing changed — defeating
// ConfInfo.Equal's positional comparison and, with it, sendConferenceInfos's
// idempotence guarantee. Callers must hold m.mu.
func (m *RemoteHostMerger) sortedHostKeys() []PeerURI {
	keys := make([]PeerURI, 0, len(m.hosts))
	for host := range m.hosts {
		keys = append(keys, host)
	}

	slices.Sort(keys)

	return keys
}

// AssembleFor builds the outbound row set for destURI: the local rows, plus every
// remote host's rows except destURI's own (no echo).
func (m *RemoteHostMerger) AssembleFor(destURI PeerURI, local []ParticipantInfo) []ParticipantInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := make([]ParticipantInfo, len(local))
	copy(rows, local)

	for _, host := range m.sortedHostKeys() {
		if host == destURI {
			continue
		}

		rows = append(rows, m.hosts[host].Participants...)
	}

	return rows
}

// AssembleAll builds the client-signal row set: the local rows plus every remote
// host's rows, with no suppression (the client is not a peer, so there is no echo to
// avoid).
func (m *RemoteHostMerger) AssembleAll(local []ParticipantInfo) []ParticipantInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := make([]ParticipantInfo, len(local))
	copy(rows, local)

	for _, host := range m.sortedHostKeys() {
		rows = append(rows, m.hosts[host].Participants...)
	}

	return rows
}

func (m *RemoteHostMerger) Get(remoteHost PeerURI) (ConfInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.hosts[remoteHost]
	return info, ok
}
