package conference

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/savoirfairelinux/confcore/pkg/common"
	"github.com/savoirfairelinux/confcore/pkg/media"
)

// Core is the conference-orchestration state machine: one instance per active
// conference. It owns no transport of its own — every side effect it produces is a call
// into one of the external collaborator interfaces (Call, VideoMixer, RingBufferPool,
// Recorder, Account, Signals). Every mutable piece of state has its own narrow mutex.
// Most collaborator calls happen after the relevant lock is released, or are queued
// onto the broadcaster so they run off any conference lock entirely. A few are made
// with a lock held: stampSinkIDs holds sinksMtx across VideoMixer.GetSink,
// AddParticipant and RemoveParticipant hold recordingMu across Recorder.AddStream, and
// callForPeer and SetActiveParticipant hold callsMu across Call.PeerNumber.
type Core struct {
	id     string
	config Config
	logger *logrus.Entry

	account    Account
	videoMixer VideoMixer
	ringPool   RingBufferPool
	recorder   Recorder
	signals    Signals

	stateMu sync.RWMutex
	state   State

	callsMu sync.RWMutex
	calls   map[ParticipantID]Call

	participants *ParticipantRegistry
	moderators   *ModeratorSet
	modMuted     *peerSet
	handRaised   *peerSet

	audioBinder *AudioBinder
	videoRouter *VideoRouter
	remoteHosts *RemoteHostMerger

	hostMu                sync.Mutex
	hostSources           media.HostSources
	hostSecondaryVideoURI string

	confInfoMutex sync.Mutex
	confInfo      ConfInfo
	lastBroadcast ConfInfo

	broadcaster *common.Broadcaster

	sinksMtx sync.Mutex
	sinks    map[string]struct{}

	recordingMu sync.Mutex
	recording   bool

	// recordingOwner is the call-id whose ring buffer the recorder is attached to after a
	// peer-recording takeover in AddParticipant, or DefaultRingBufferID if the recorder
	// uses the conference's own ghost buffer.
	recordingOwner ParticipantID

	// localModAdded gates the one-shot merge of every local account's username into
	// moderators, the first time a call whose account has local moderators enabled joins.
	localModAdded atomic.Bool
}

// NewCore builds a conference core with no participants yet. Its lifecycle state
// starts at ActiveAttached (State's zero value), and its host media sources are
// populated with the account's defaults immediately, mirroring the original
// implementation's constructor: it unconditionally calls
// setLocalHostDefaultMediaSource(), which — given the state's default of
// ACTIVE_ATTACHED — sets live mic/camera sources from the very first instant, before
// any explicit attach call. AttachLocalParticipant only ever does work when called
// while ActiveDetached; calling it on a freshly built Core is a no-op.
func NewCore(
	id string,
	cfg Config,
	account Account,
	videoMixer VideoMixer,
	ringPool RingBufferPool,
	recorder Recorder,
	signals Signals,
	logger *logrus.Entry,
) *Core {
	c := &Core{
		id:             id,
		config:         cfg,
		account:        account,
		videoMixer:     videoMixer,
		ringPool:       ringPool,
		recorder:       recorder,
		signals:        signals,
		logger:         logger.WithField("conf_id", id),
		calls:          make(map[ParticipantID]Call),
		participants:   NewParticipantRegistry(),
		moderators:     NewModeratorSet(),
		modMuted:       newPeerSet(),
		handRaised:     newPeerSet(),
		recordingOwner: DefaultRingBufferID,
	}

	c.audioBinder = NewAudioBinder(ringPool)
	c.remoteHosts = NewRemoteHostMerger(c.logger)
	c.broadcaster = common.StartBroadcaster(common.BroadcasterConfig{ChannelSize: cfg.BroadcastQueueSize})

	if account != nil {
		for _, uri := range account.DefaultModerators() {
			c.moderators.Add(StripURISuffix(uri))
		}

		c.hostSources.AttachDefaults(account.DefaultVideoDeviceURI())
	}

	c.videoRouter = NewVideoRouter(videoMixer, c, func(info ConfInfo) {
		c.confInfoMutex.Lock()
		c.confInfo = info
		c.confInfoMutex.Unlock()
		c.sendConferenceInfos()
	}, cfg.VideoRouterQueueSize)

	ringPool.CreateRingBuffer(DefaultRingBufferID)

	return c
}

func (c *Core) lookupCall(id ParticipantID) (Call, bool) {
	c.callsMu.RLock()
	defer c.callsMu.RUnlock()
	call, ok := c.calls[id]
	return call, ok
}

func (c *Core) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// AddParticipant admits callID into the conference: it registers the call, records
// whether the peer reports itself muted, folds its media state into the host's own via
// TakeOverMediaSourceControl, merges the call's own account's default moderators (and,
// once ever, every local account's username if that account enables local moderators)
// into the moderator set, adds a dummy video session if the call carries no video
// stream of its own (so it still produces a sink the layout can place), binds its audio
// against every existing participant (and the host, if attached), and refreshes the
// video layout so the newcomer's cell appears. If the call's peer reports that it is
// recording and no call owns the conference recording yet, the call becomes the
// recording owner and the recorder is attached to its ring buffer. The call's own
// recording is not stopped, and the conference's recording flag is not changed.
func (c *Core) AddParticipant(callID ParticipantID, call Call) error {
	if call == nil {
		return fmt.Errorf("conference: AddParticipant: nil call")
	}

	c.callsMu.Lock()
	c.calls[callID] = call
	c.callsMu.Unlock()

	if !c.participants.Add(callID) {
		return fmt.Errorf("conference: participant %s already present", callID)
	}

	if call.IsPeerMuted() {
		c.modMuted.Add(StripURISuffix(call.PeerNumber()))
	}

	if err := c.TakeOverMediaSourceControl(callID); err != nil {
		c.logger.WithField("call_id", callID).WithError(err).Warn("failed to take over media source control")
	}

	if callAccount := call.GetAccount(); callAccount != nil {
		for _, uri := range callAccount.DefaultModerators() {
			c.moderators.Add(StripURISuffix(uri))
		}

		if callAccount.LocalModeratorsEnabled() && !c.localModAdded.Swap(true) {
			for _, username := range callAccount.LocalAccountUsernames() {
				c.moderators.Add(StripURISuffix(username))
			}
		}
	}

	if !media.HasMediaType(call.GetMediaAttributeList(), media.TypeVideo) {
		call.AddDummyVideoRTPSession()
	}

	others := c.participants.List()

	hostAttached := c.State() == ActiveAttached
	c.hostMu.Lock()
	hostMuted := c.hostSources.Audio.Muted
	c.hostMu.Unlock()

	c.audioBinder.BindParticipant(callID, others, c.isPeerLocalMuted, hostAttached, hostMuted)

	call.EnterConference(c.id)

	if call.IsPeerRecording() && c.recorder != nil {
		c.recordingMu.Lock()
		if c.recordingOwner == DefaultRingBufferID {
			c.recordingOwner = callID
			c.recorder.AddStream(c.id, callID)
		}
		c.recordingMu.Unlock()
	}

	c.videoRouter.RefreshLayout()
	c.logger.WithField("call_id", callID).Info("participant joined conference")

	return nil
}

// RemoveParticipant evicts callID: it unbinds its audio edges, drops it from the
// registry and every peer-keyed set it might be a member of (via its resolved URI),
// and refreshes the layout. If it held the recording-ownership takeover, ownership
// reverts to the conference's own ghost buffer.
func (c *Core) RemoveParticipant(callID ParticipantID) error {
	if !c.participants.Remove(callID) {
		return fmt.Errorf("conference: participant %s not present", callID)
	}

	c.callsMu.Lock()
	call, ok := c.calls[callID]
	delete(c.calls, callID)
	c.callsMu.Unlock()

	c.audioBinder.UnbindParticipant(callID)
	c.ringPool.Flush(callID)

	if ok {
		peer := StripURISuffix(call.PeerNumber())
		c.handRaised.Remove(peer)
		c.modMuted.Remove(peer)
		c.remoteHosts.Remove(peer)
		call.ExitConference()
	}

	c.recordingMu.Lock()
	if c.recordingOwner == callID {
		c.recordingOwner = DefaultRingBufferID
		if c.recorder != nil {
			c.recorder.AddStream(c.id, DefaultRingBufferID)
		}
	}
	c.recordingMu.Unlock()

	c.videoRouter.RefreshLayout()
	c.logger.WithField("call_id", callID).Info("participant left conference")

	return nil
}

// TakeOverMediaSourceControl folds callID's own reported mute state into the host's
// mixed-output mute state, for every media type the call carries. A call that is the
// only participant of the conference simply seeds the host's mute state from its own;
// every other join AND-reduces it against whatever the host was already reporting, since the
// mixer's output for a type is silent only when every source feeding it is silent.
// Once folded in, the call's own mute flag is forced back to false and it is asked to
// re-apply its media, because from this point on the mixer output — not the call's own
// flag — is what determines whether the type is actually heard/seen.
func (c *Core) TakeOverMediaSourceControl(callID ParticipantID) error {
	call, ok := c.lookupCall(callID)
	if !ok {
		return fmt.Errorf("conference: TakeOverMediaSourceControl: unknown call %s", callID)
	}

	firstParticipant := c.participants.Len() == 1 && c.participants.Has(callID)

	attrs := call.GetMediaAttributeList()

	var toApply []media.Attribute

	for _, mtype := range [...]media.Type{media.TypeAudio, media.TypeVideo} {
		attr, ok := findAttributeByType(attrs, mtype)
		if !ok {
			continue
		}

		c.hostMu.Lock()
		slot := c.hostSources.Slot(mtype)
		if firstParticipant {
			slot.Muted = attr.Muted
		} else {
			slot.Muted = slot.Muted && attr.Muted
		}
		hostMuted := slot.Muted
		c.hostMu.Unlock()

		forced := attr
		forced.Muted = false
		toApply = append(toApply, forced)

		if mtype == media.TypeAudio {
			c.signals.AudioMuted(c.id, hostMuted)
		} else {
			c.signals.VideoMuted(c.id, hostMuted)
		}
	}

	if len(toApply) > 0 {
		call.RequestMediaChange(toApply)
	}

	return nil
}

// findAttributeByType returns the first entry of list with the given type.
func findAttributeByType(list []media.Attribute, t media.Type) (media.Attribute, bool) {
	for _, attr := range list {
		if attr.Type == t {
			return attr, true
		}
	}

	return media.Attribute{}, false
}

// AttachLocalParticipant joins the local host into its own conference: legal only
// while ActiveDetached (a no-op, with a warning, otherwise — including on a freshly
// built Core, which starts ActiveAttached already). Its audio is bound full/half-duplex
// against every existing participant and the mixer is switched onto the host's own
// video source (and secondary source, if one is set).
func (c *Core) AttachLocalParticipant() {
	c.stateMu.Lock()
	if c.state != ActiveDetached {
		c.stateMu.Unlock()
		c.logger.Warn("AttachLocalParticipant: invalid state, expected active-detached")
		return
	}
	c.state = ActiveAttached
	c.stateMu.Unlock()

	c.hostMu.Lock()
	if c.account != nil {
		c.hostSources.AttachDefaults(c.account.DefaultVideoDeviceURI())
	}
	hostMuted := c.hostSources.Audio.Muted
	videoSourceURI := c.hostSources.Video.SourceURI
	secondaryURI := c.hostSecondaryVideoURI
	c.hostMu.Unlock()

	c.audioBinder.BindHost(c.participants.List(), c.isPeerLocalMuted)

	c.videoMixer.SwitchInput(videoSourceURI)
	if secondaryURI != "" {
		c.videoMixer.SwitchSecondaryInput(secondaryURI)
	}

	if !hostMuted {
		c.ringPool.BindCallID(HostID, DefaultRingBufferID)
	}

	c.videoRouter.RefreshLayout()
}

// SetSecondaryVideoSource records a second video source (e.g. a screen share alongside
// the primary camera) to switch into the mixer on the next attach, or immediately if
// the host is already attached.
func (c *Core) SetSecondaryVideoSource(sourceURI string) {
	c.hostMu.Lock()
	c.hostSecondaryVideoURI = sourceURI
	c.hostMu.Unlock()

	if c.State() == ActiveAttached && sourceURI != "" {
		c.videoMixer.SwitchSecondaryInput(sourceURI)
	}
}

// DetachLocalParticipant removes the local host from its own conference without
// destroying it: legal only while ActiveAttached (a no-op, with a warning, otherwise).
// The conference keeps running headless for its remaining participants, its audio and
// video edges torn down and the mixer's input stopped.
func (c *Core) DetachLocalParticipant() {
	c.stateMu.Lock()
	if c.state != ActiveAttached {
		c.stateMu.Unlock()
		c.logger.Warn("DetachLocalParticipant: invalid state, expected active-attached")
		return
	}
	c.state = ActiveDetached
	c.stateMu.Unlock()

	c.hostMu.Lock()
	c.hostSources.Detach()
	c.hostMu.Unlock()

	c.audioBinder.UnbindHost()
	c.ringPool.UnBindAll(HostID)
	c.videoMixer.StopInput()

	c.videoRouter.RefreshLayout()
}

// RequestMediaChange applies a change to the host's own media sources: it is legal
// only while attached, and rejects a list carrying more than one stream per media
// type. A video entry whose source URI differs from the current one is switched into
// the mixer; any entry whose mute flag flips is dispatched to MuteLocalHost.
func (c *Core) RequestMediaChange(attrs []media.Attribute) error {
	if c.State() != ActiveAttached {
		return fmt.Errorf("conference: RequestMediaChange: illegal while not attached")
	}

	counts := map[media.Type]int{}
	for _, attr := range attrs {
		counts[attr.Type]++
		if counts[attr.Type] > 1 {
			return fmt.Errorf("conference: RequestMediaChange: more than one stream for media type %s", attr.Type)
		}
	}

	for _, attr := range attrs {
		c.hostMu.Lock()
		slot := c.hostSources.Slot(attr.Type)
		if slot == nil {
			c.hostMu.Unlock()
			continue
		}

		sourceChanged := attr.Type == media.TypeVideo && attr.SourceURI != slot.SourceURI
		if sourceChanged {
			slot.SourceURI = attr.SourceURI
		}

		muteChanged := attr.Muted != slot.Muted
		c.hostMu.Unlock()

		if sourceChanged {
			c.videoMixer.SwitchInput(attr.SourceURI)
		}

		if muteChanged {
			c.MuteLocalHost(attr.Muted, attr.Type)
		}
	}

	c.videoRouter.RefreshLayout()

	return nil
}

// MuteLocalHost mutes or unmutes one of the local host's own media sources.
// mediaType selects the branch: audio mutes are topology changes (a ring-buffer
// rebind, consistent with mute-as-topology elsewhere in this package), video mutes
// stop and restart the mixer's own input. Muting video is a no-op (with a warning) if
// the account has video disabled altogether.
func (c *Core) MuteLocalHost(muted bool, mediaType media.Type) {
	if mediaType == media.TypeVideo {
		c.muteLocalHostVideo(muted)
		return
	}

	c.muteLocalHostAudio(muted)
}

func (c *Core) muteLocalHostAudio(muted bool) {
	c.hostMu.Lock()
	if c.hostSources.Audio.Muted == muted {
		c.hostMu.Unlock()
		return
	}

	c.hostSources.Audio.Muted = muted
	c.hostMu.Unlock()

	if c.State() == ActiveAttached {
		if muted {
			c.audioBinder.UnbindHost()
		} else {
			c.audioBinder.BindHost(c.participants.List(), c.isPeerLocalMuted)
		}
	}

	c.signals.AudioMuted(c.id, muted)
	c.videoRouter.RefreshLayout()
}

func (c *Core) muteLocalHostVideo(muted bool) {
	if c.account != nil && !c.account.VideoEnabled() {
		c.logger.Warn("MuteLocalHost: video disabled for this account, ignoring")
		return
	}

	c.hostMu.Lock()
	if c.hostSources.Video.Muted == muted {
		c.hostMu.Unlock()
		return
	}

	c.hostSources.Video.Muted = muted
	sourceURI := c.hostSources.Video.SourceURI
	c.hostMu.Unlock()

	if muted {
		c.videoMixer.StopInput()
	} else {
		c.videoMixer.SwitchInput(sourceURI)
	}

	c.signals.VideoMuted(c.id, muted)
	c.videoRouter.RefreshLayout()
}

// MuteParticipant applies (or lifts) a moderator-imposed mute on peer. Only a
// moderator's own core should ever call this — the ProcessOrder dispatcher enforces
// that before reaching here. If peer belongs to a call of this conference, muting
// unbinds every ring-buffer edge of that call and unmuting rebinds it against every
// other participant's current mute state; the graph is not rebuilt on both halves.
func (c *Core) MuteParticipant(peer PeerURI, muted bool) {
	if muted {
		c.modMuted.Add(peer)
	} else {
		c.modMuted.Remove(peer)
	}

	callID, ok := c.callForPeer(peer)
	if !ok {
		c.videoRouter.RefreshLayout()
		return
	}

	// Only the transition edge does anything: muting tears the edges down and stops,
	// unmuting rebuilds them against every other participant's current mute state.
	// Rebinding on the mute half would immediately reinstate a full-duplex edge to any
	// still-unmuted peer, undoing the mute — matching the original muteParticipant, which
	// calls unbindParticipant on mute and bindParticipant only on unmute.
	if muted {
		c.audioBinder.UnbindParticipant(callID)
	} else {
		others := c.participants.List()

		hostAttached := c.State() == ActiveAttached
		c.hostMu.Lock()
		hostMuted := c.hostSources.Audio.Muted
		c.hostMu.Unlock()

		c.audioBinder.BindParticipant(callID, others, c.isPeerLocalMuted, hostAttached, hostMuted)
	}

	c.videoRouter.RefreshLayout()
}

// SetHandRaised sets or clears peer's raised-hand flag. Anyone may raise their own
// hand; only a moderator may lower someone else's — that authorisation check happens
// in ProcessOrder, not here, since this method is also the one AttachLocalParticipant's
// caller and unit tests use directly.
func (c *Core) SetHandRaised(peer PeerURI, raised bool) {
	if raised {
		c.handRaised.Add(peer)
	} else {
		c.handRaised.Remove(peer)
	}

	c.videoRouter.RefreshLayout()
}

// SetModerator grants or revokes moderator status for peer.
func (c *Core) SetModerator(peer PeerURI, isModerator bool) {
	if isModerator {
		c.moderators.Add(peer)
	} else {
		c.moderators.Remove(peer)
	}

	c.videoRouter.RefreshLayout()
}

// SetActiveParticipant pins who as the mixer's single active source: HostURI selects
// the host via VideoMixer.SetActiveHost, a peer whose call has a registered video
// source selects that source, and anything else (including the empty PeerURI) clears
// the active source.
func (c *Core) SetActiveParticipant(who PeerURI) {
	c.videoRouter.SetActiveParticipant(who, func(target PeerURI) (uintptr, bool) {
		c.callsMu.RLock()
		defer c.callsMu.RUnlock()

		for id, call := range c.calls {
			if StripURISuffix(call.PeerNumber()) == target {
				if source, ok := c.sourceForCall(id); ok {
					return source, true
				}
			}
		}

		return 0, false
	})
}

// SetLayout selects the mixer's composition mode by its wire-protocol id.
func (c *Core) SetLayout(id int) bool {
	return c.videoRouter.SetLayout(id)
}

// HangupParticipant makes peer's call leave the conference: it tells the call to exit
// the conference and then removes it as RemoveParticipant does. The call itself is not
// hung up. It is distinct from RemoveParticipant: RemoveParticipant reacts to a call
// already leaving, while HangupParticipant is the moderator-issued command that causes
// it to leave.
func (c *Core) HangupParticipant(peer PeerURI) error {
	callID, ok := c.callForPeer(peer)
	if !ok {
		return fmt.Errorf("conference: HangupParticipant: no participant for peer %s", peer)
	}

	call, ok := c.lookupCall(callID)
	if !ok {
		return fmt.Errorf("conference: HangupParticipant: no call for %s", callID)
	}

	call.ExitConference()

	return c.RemoveParticipant(callID)
}

// ToggleRecording starts or stops conference-wide recording. On start the recorder is
// attached to the ghost buffer, or to the ring buffer of the call currently holding
// recording ownership; on stop it is detached. Participant calls are not told of the
// new state.
func (c *Core) ToggleRecording() {
	c.recordingMu.Lock()
	c.recording = !c.recording
	recording := c.recording
	owner := c.recordingOwner
	c.recordingMu.Unlock()

	if c.recorder == nil {
		return
	}

	if recording {
		c.recorder.AddStream(c.id, owner)
	} else {
		c.recorder.DetachStream(c.id)
	}
}

// --- ParticipantResolver ---

func (c *Core) ResolveCall(callID ParticipantID) (uri, deviceID string, localMuted bool, ok bool) {
	if callID == localHostCallID {
		if c.State() != ActiveAttached {
			return "", "", false, false
		}

		c.hostMu.Lock()
		defer c.hostMu.Unlock()

		return "", "", c.hostSources.Audio.Muted, true
	}

	call, found := c.lookupCall(callID)
	if !found {
		return "", "", false, false
	}

	return call.PeerNumber(), string(callID), call.IsPeerMuted(), true
}

func (c *Core) IsModerator(uri PeerURI) bool {
	return c.moderators.IsModerator(uri)
}

func (c *Core) IsHandRaised(uri PeerURI) bool {
	return c.handRaised.Has(uri)
}

func (c *Core) IsModeratorMuted(uri PeerURI) bool {
	return c.modMuted.Has(uri)
}

// --- internal helpers ---

func (c *Core) isPeerLocalMuted(callID ParticipantID) bool {
	call, ok := c.lookupCall(callID)
	if !ok {
		return false
	}

	peer := StripURISuffix(call.PeerNumber())

	return call.IsPeerMuted() || c.modMuted.Has(peer)
}

func (c *Core) callForPeer(peer PeerURI) (ParticipantID, bool) {
	c.callsMu.RLock()
	defer c.callsMu.RUnlock()

	for id, call := range c.calls {
		if StripURISuffix(call.PeerNumber()) == peer {
			return id, true
		}
	}

	return "", false
}

func (c *Core) sourceForCall(callID ParticipantID) (uintptr, bool) {
	// The mixer is the source of truth for call-id -> source pointer; VideoRouter keeps
	// the reverse mapping needed to answer this without reaching back into the mixer.
	return c.videoRouter.sourceForCall(callID)
}

// MergeRemoteConfInfo folds a ConfInfo received from a remote sub-host (peer) into the
// local layout, asks the video mixer to refresh its layout (the resolution of the
// rendered sub-tiles may have changed), and triggers a rebroadcast if the merge changed
// anything observable.
func (c *Core) MergeRemoteConfInfo(remoteHost PeerURI, payload string) {
	info := ParseConfInfoJSON(payload)

	changed := c.remoteHosts.Merge(remoteHost, info, c.lookupLocalCellFor, c.fallbackCanvasFor)
	if changed {
		c.videoRouter.RefreshLayout()
		c.sendConferenceInfos()
	}
}

func (c *Core) lookupLocalCellFor(remoteHost PeerURI) (ParticipantInfo, bool) {
	c.confInfoMutex.Lock()
	defer c.confInfoMutex.Unlock()

	for _, row := range c.confInfo.Participants {
		if StripURISuffix(row.URI) == remoteHost {
			return row, true
		}
	}

	return ParticipantInfo{}, false
}

func (c *Core) fallbackCanvasFor(PeerURI) (int, int) {
	return c.videoMixer.CanvasSize()
}

// Shutdown tears the conference down: it stops accepting new broadcasts and releases
// the ring-buffer graph. Callers must have already removed every participant.
func (c *Core) Shutdown() {
	c.stateMu.Lock()
	c.state = Destroyed
	c.stateMu.Unlock()

	c.broadcaster.Stop()
	c.videoRouter.Stop()
	c.ringPool.FlushAllBuffers()
}
