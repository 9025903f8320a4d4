package conference

import (
	"sync"

	"github.com/savoirfairelinux/confcore/pkg/media"
)

// fakeCall is a hand-rolled stand-in for a real point-to-point call, giving tests full
// control over the answers a Call gives without a mocking framework.
type fakeCall struct {
	mu sync.Mutex

	peerNumber string
	muted      bool
	recording  bool
	entered    string
	exited     bool

	acceptChange bool
	requested    []media.Attribute
	sentInfo     []string
	sentOrder    []string

	mediaAttrs []media.Attribute
}

func newFakeCall(peer string) *fakeCall {
	return &fakeCall{peerNumber: peer, acceptChange: true}
}

func (f *fakeCall) PeerNumber() string { return f.peerNumber }
func (f *fakeCall) IsPeerMuted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.muted
}
func (f *fakeCall) IsPeerRecording() bool { return f.recording }
func (f *fakeCall) PeerRecording() bool   { return f.recording }
func (f *fakeCall) IsRecording() bool     { return f.recording }

func (f *fakeCall) EnterConference(confID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entered = confID
}

func (f *fakeCall) ExitConference() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exited = true
}

func (f *fakeCall) SwitchInput(string)      {}
func (f *fakeCall) ToggleRecording()        { f.recording = !f.recording }
func (f *fakeCall) CheckMediaChangeRequest(list []media.Attribute) bool {
	return f.acceptChange
}
func (f *fakeCall) AnswerMediaChangeRequest([]media.Attribute) {}
func (f *fakeCall) RequestMediaChange(list []media.Attribute) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = list
}

func (f *fakeCall) SendConfInfo(payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentInfo = append(f.sentInfo, payload)
}

func (f *fakeCall) SendConfOrder(payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentOrder = append(f.sentOrder, payload)
}

func (f *fakeCall) AddDummyVideoRTPSession()     {}
func (f *fakeCall) RemoveDummyVideoRTPSessions() {}

func (f *fakeCall) GetMediaAttributeList() []media.Attribute {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mediaAttrs
}
func (f *fakeCall) GetAccount() Account                      { return nil }
func (f *fakeCall) GetTransport() string                     { return "fake" }

// fakeRingPool records every bind/unbind call it receives, mirroring the ring-buffer
// pool's contract without touching any real audio graph.
type fakeRingPool struct {
	mu       sync.Mutex
	fullDup  map[[2]ParticipantID]bool
	halfDup  map[[2]ParticipantID]bool
	created  map[ParticipantID]bool
	flushed  []ParticipantID
	flushAll int
}

func newFakeRingPool() *fakeRingPool {
	return &fakeRingPool{
		fullDup: make(map[[2]ParticipantID]bool),
		halfDup: make(map[[2]ParticipantID]bool),
		created: make(map[ParticipantID]bool),
	}
}

func (p *fakeRingPool) BindCallID(a, b ParticipantID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fullDup[[2]ParticipantID{a, b}] = true
}

func (p *fakeRingPool) BindHalfDuplexOut(out, in ParticipantID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halfDup[[2]ParticipantID{out, in}] = true
}

func (p *fakeRingPool) UnBindCallID(a, b ParticipantID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.fullDup, [2]ParticipantID{a, b})
}

func (p *fakeRingPool) UnBindAllHalfDuplexOut(callID ParticipantID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for k := range p.halfDup {
		if k[0] == callID {
			delete(p.halfDup, k)
		}
	}
}

func (p *fakeRingPool) UnBindAll(callID ParticipantID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for k := range p.fullDup {
		if k[0] == callID || k[1] == callID {
			delete(p.fullDup, k)
		}
	}

	for k := range p.halfDup {
		if k[0] == callID || k[1] == callID {
			delete(p.halfDup, k)
		}
	}
}

func (p *fakeRingPool) Flush(callID ParticipantID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushed = append(p.flushed, callID)
}

func (p *fakeRingPool) FlushAllBuffers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushAll++
}

func (p *fakeRingPool) CreateRingBuffer(id ParticipantID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created[id] = true
}

// fakeMixer is a minimal video mixer: it records input switches, StopInput calls, the
// active source, the layout and requested sinks, and keeps the onSourcesUpdated
// callback so tests can drive it manually.
type fakeMixer struct {
	mu                sync.Mutex
	active            uintptr
	layout            Layout
	local             uintptr
	canvasW           int
	canvasH           int
	updateCB          func(sources []SourceInfo, w, h int)
	sinks             map[string]bool
	updates           int
	switchedInputs    []string
	switchedSecondary []string
	stopInputCalls    int
}

func newFakeMixer() *fakeMixer {
	return &fakeMixer{canvasW: 1280, canvasH: 720, sinks: make(map[string]bool)}
}

func (m *fakeMixer) SwitchInput(uri string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.switchedInputs = append(m.switchedInputs, uri)
}

func (m *fakeMixer) SwitchSecondaryInput(uri string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.switchedSecondary = append(m.switchedSecondary, uri)
}

func (m *fakeMixer) StopInput() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopInputCalls++
}

func (m *fakeMixer) SetActiveParticipant(source uintptr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = source
}

func (m *fakeMixer) SetActiveHost() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = 0
}

func (m *fakeMixer) GetActiveParticipant() uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *fakeMixer) SetVideoLayout(layout Layout) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layout = layout
}

func (m *fakeMixer) UpdateLayout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
}

func (m *fakeMixer) GetVideoLocal() uintptr { return m.local }
func (m *fakeMixer) GetSink(sinkID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks[sinkID] = true
}

func (m *fakeMixer) SetOnSourcesUpdated(cb func(sources []SourceInfo, w, h int)) {
	m.updateCB = cb
}

func (m *fakeMixer) CanvasSize() (int, int) { return m.canvasW, m.canvasH }

// fakeRecorder records start/stop calls without touching any real recorder.
type fakeRecorder struct {
	mu      sync.Mutex
	streams map[string]ParticipantID
	detach  []string
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{streams: make(map[string]ParticipantID)}
}

func (r *fakeRecorder) AddStream(confID string, ringBufferID ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[confID] = ringBufferID
}

func (r *fakeRecorder) DetachStream(confID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, confID)
	r.detach = append(r.detach, confID)
}

// fakeAccount is a fixed-answer stand-in for the local account.
type fakeAccount struct {
	uri           string
	moderators    []string
	videoDisabled bool
}

func (a *fakeAccount) URI() string                    { return a.uri }
func (a *fakeAccount) DefaultModerators() []string     { return a.moderators }
func (a *fakeAccount) LocalModeratorsEnabled() bool    { return true }
func (a *fakeAccount) LocalAccountUsernames() []string { return nil }
func (a *fakeAccount) VideoEnabled() bool              { return !a.videoDisabled }
func (a *fakeAccount) DefaultVideoDeviceURI() string   { return "camera0" }

// fakeSignals records every emitted client signal.
type fakeSignals struct {
	mu         sync.Mutex
	audioMuted []bool
	videoMuted []bool
	layouts    [][]map[string]string
}

func (s *fakeSignals) AudioMuted(confID string, muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioMuted = append(s.audioMuted, muted)
}

func (s *fakeSignals) VideoMuted(confID string, muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videoMuted = append(s.videoMuted, muted)
}

func (s *fakeSignals) OnConferenceInfosUpdated(confID string, layout []map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layouts = append(s.layouts, layout)
}

func (s *fakeSignals) lastLayout() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.layouts) == 0 {
		return nil
	}
	return s.layouts[len(s.layouts)-1]
}

func (s *fakeSignals) broadcastCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.layouts)
}
