package conference

import "github.com/savoirfairelinux/confcore/pkg/media"

// ParticipantID is a call-id: the handle the surrounding call factory uses to look up a
// participant's underlying transport. The reserved value HostID never appears as a real
// ParticipantID; it identifies the local host in the ring-buffer graph (HostURI is the
// host's key in the moderator/mute/hand-raise sets).
type ParticipantID string

// PeerURI identifies a peer by its account URI, with any "@..." suffix already stripped.
type PeerURI string

// HostURI is the reserved key used for the local host in moderator/mute/hand-raise sets.
const HostURI PeerURI = "host"

// Call is the external collaborator contract for a single point-to-point call that has
// joined a conference. The conference core holds weak references for lookup and mutates
// calls only through this interface; it never owns their transport.
type Call interface {
	PeerNumber() string
	IsPeerMuted() bool
	IsPeerRecording() bool
	PeerRecording() bool
	IsRecording() bool

	EnterConference(confID string)
	ExitConference()

	SwitchInput(sourceURI string)
	ToggleRecording()

	CheckMediaChangeRequest(list []media.Attribute) bool
	AnswerMediaChangeRequest(list []media.Attribute)
	RequestMediaChange(list []media.Attribute)

	SendConfInfo(payload string)
	SendConfOrder(payload string)

	AddDummyVideoRTPSession()
	RemoveDummyVideoRTPSessions()

	GetMediaAttributeList() []media.Attribute
	GetAccount() Account
	GetTransport() string
}

// RingBufferPool is the process-wide audio routing graph. Binding edges are logically
// owned per-conference even though the pool itself is shared.
type RingBufferPool interface {
	BindCallID(callID1, callID2 ParticipantID)
	BindHalfDuplexOut(out, in ParticipantID)
	UnBindCallID(callID1, callID2 ParticipantID)
	UnBindAllHalfDuplexOut(callID ParticipantID)
	UnBindAll(callID ParticipantID)
	Flush(callID ParticipantID)
	FlushAllBuffers()
	CreateRingBuffer(id ParticipantID)
}

// DefaultRingBufferID is the reserved id used by the ghost buffer created for conference
// recording (RingBufferPool.DEFAULT_ID in the external contract).
const DefaultRingBufferID ParticipantID = ""

// SourceInfo is one entry of the vector the video mixer's onSourcesUpdated callback
// delivers: a source pointer plus its cell geometry and whether it currently carries
// video.
type SourceInfo struct {
	Source   uintptr
	X, Y     int
	W, H     int
	HasVideo bool
}

// VideoMixer is the external collaborator owning the actual pixel compositing. It is
// exclusively owned by one conference.
type VideoMixer interface {
	SwitchInput(sourceURI string)
	SwitchSecondaryInput(sourceURI string)
	StopInput()

	SetActiveParticipant(source uintptr)
	SetActiveHost()
	GetActiveParticipant() uintptr

	SetVideoLayout(layout Layout)
	UpdateLayout()

	GetVideoLocal() uintptr
	GetSink(sinkID string)

	SetOnSourcesUpdated(cb func(sources []SourceInfo, canvasW, canvasH int))

	CanvasSize() (w, h int)
}

// Recorder is the borrowed media-recorder collaborator: the conference attaches on
// start and detaches before releasing it.
type Recorder interface {
	AddStream(confID string, ringBufferID ParticipantID)
	DetachStream(confID string)
}

// Account provides moderator policy and identity for the local host.
type Account interface {
	URI() string
	DefaultModerators() []string
	LocalModeratorsEnabled() bool
	LocalAccountUsernames() []string
	VideoEnabled() bool
	DefaultVideoDeviceURI() string
}
