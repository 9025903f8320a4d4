// Package manager demultiplexes conference lifecycle events onto per-conference cores,
// the way a router demultiplexes messages onto per-conference state onto a single
// process: creation is implicit on first admission, and every subsequent operation for
// a given conference id is routed to the same core until it is torn down.
package manager

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/savoirfairelinux/confcore/pkg/conference"
)

// Manager owns every conference core currently active in this process, keyed by
// conference id. It never mutates a core directly; every operation still goes through
// the core's own public methods so its internal locking discipline stays intact.
type Manager struct {
	mu          sync.RWMutex
	conferences map[string]*conference.Core

	config conference.Config
	logger *logrus.Entry
}

func NewManager(config conference.Config, logger *logrus.Entry) *Manager {
	return &Manager{
		conferences: make(map[string]*conference.Core),
		config:      config,
		logger:      logger,
	}
}

// GetOrCreate returns the existing core for confID, or builds a new one from the given
// collaborators if this is the first time confID has been seen. The bool result
// reports whether a new core was created.
func (m *Manager) GetOrCreate(
	confID string,
	account conference.Account,
	videoMixer conference.VideoMixer,
	ringPool conference.RingBufferPool,
	recorder conference.Recorder,
	signals conference.Signals,
) (*conference.Core, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if core, ok := m.conferences[confID]; ok {
		return core, false
	}

	core := conference.NewCore(confID, m.config, account, videoMixer, ringPool, recorder, signals, m.logger)
	m.conferences[confID] = core
	m.logger.WithField("conf_id", confID).Info("conference created")

	return core, true
}

// Get returns the core for confID if one is currently active.
func (m *Manager) Get(confID string) (*conference.Core, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	core, ok := m.conferences[confID]
	return core, ok
}

// Remove shuts down and forgets confID's core. It is a no-op if confID is unknown.
func (m *Manager) Remove(confID string) {
	m.mu.Lock()
	core, ok := m.conferences[confID]
	delete(m.conferences, confID)
	m.mu.Unlock()

	if !ok {
		return
	}

	core.Shutdown()
	m.logger.WithField("conf_id", confID).Info("conference destroyed")
}

// Active returns the number of conferences currently running.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conferences)
}

// DispatchOrder routes a conf-order payload received on fromCallID to confID's core.
// It returns an error only if confID is unknown; malformed or unauthorised orders are
// logged and dropped by the core itself, never surfaced as an error here.
func (m *Manager) DispatchOrder(confID string, fromCallID conference.ParticipantID, payload string) error {
	core, ok := m.Get(confID)
	if !ok {
		return fmt.Errorf("manager: unknown conference %s", confID)
	}

	core.ProcessOrder(fromCallID, payload)

	return nil
}
