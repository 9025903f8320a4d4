package conference

import (
	"sync"

	"github.com/savoirfairelinux/confcore/pkg/common"
)

// ParticipantResolver answers the questions VideoRouter needs about a participant in
// order to turn a mixer SourceInfo into a ParticipantInfo row. It is implemented by
// ConferenceCore and injected at construction time rather than VideoRouter holding a
// back-pointer to the core, so the two components communicate through a narrow,
// explicit surface instead of a strong reference cycle.
type ParticipantResolver interface {
	ResolveCall(callID ParticipantID) (uri, deviceID string, localMuted bool, ok bool)
	IsModerator(uri PeerURI) bool
	IsHandRaised(uri PeerURI) bool
	IsModeratorMuted(uri PeerURI) bool
}

// videoRouterSender is the sender identity carried by the router's MessageSink. The
// mixer callback is the router's only producer, so there is nothing to distinguish
// between senders — the type exists only to satisfy MessageSink's generic contract.
type videoRouterSender struct{}

// sourcesUpdate is one snapshot of the mixer's source list, as handed to the router's
// loop goroutine by enqueueSourcesUpdated.
type sourcesUpdate struct {
	sources          []SourceInfo
	canvasW, canvasH int
}

// VideoRouter owns the video mixer handle and the mapping between mixer source
// pointers and the call-id that feeds them. The mixer may invoke its onSourcesUpdated
// callback from any goroutine it pleases; VideoRouter reorders every such callback onto
// a single loop goroutine of its own via a buffered channel, so two updates can never be
// applied out of order or interleaved with each other.
type VideoRouter struct {
	mixer    VideoMixer
	resolver ParticipantResolver

	mu          sync.Mutex
	videoToCall map[uintptr]ParticipantID

	onLayoutChanged func(ConfInfo)

	sink     *common.MessageSink[videoRouterSender, sourcesUpdate]
	updates  chan common.Message[videoRouterSender, sourcesUpdate]
	done     chan struct{}
	stopOnce sync.Once
}

// videoToCall maps a source pointer to a ParticipantID; the empty ParticipantID denotes
// the local host's own video.
const localHostCallID ParticipantID = ""

func NewVideoRouter(mixer VideoMixer, resolver ParticipantResolver, onLayoutChanged func(ConfInfo), queueSize int) *VideoRouter {
	if queueSize <= 0 {
		queueSize = 1
	}

	updates := make(chan common.Message[videoRouterSender, sourcesUpdate], queueSize)

	router := &VideoRouter{
		mixer:           mixer,
		resolver:        resolver,
		videoToCall:     make(map[uintptr]ParticipantID),
		onLayoutChanged: onLayoutChanged,
		sink:            common.NewMessageSink[videoRouterSender, sourcesUpdate](videoRouterSender{}, updates),
		updates:         updates,
		done:            make(chan struct{}),
	}

	mixer.SetOnSourcesUpdated(router.enqueueSourcesUpdated)

	go router.loop()

	return router
}

// loop is the router's single consumer goroutine: it drains updates one at a time, in
// the order the mixer produced them, until Stop closes done.
func (r *VideoRouter) loop() {
	for {
		select {
		case msg := <-r.updates:
			r.applySourcesUpdated(msg.Content.sources, msg.Content.canvasW, msg.Content.canvasH)
		case <-r.done:
			return
		}
	}
}

// enqueueSourcesUpdated is the raw mixer callback. It only ever hands the update off to
// loop; the row-building work itself (applySourcesUpdated) always runs on the router's
// own goroutine, never on whatever goroutine the mixer called back from.
func (r *VideoRouter) enqueueSourcesUpdated(sources []SourceInfo, canvasW, canvasH int) {
	_ = r.sink.Send(sourcesUpdate{sources: sources, canvasW: canvasW, canvasH: canvasH})
}

// Stop seals the router's sink and terminates its loop goroutine. Safe to call more than
// once; safe to call even if loop was never scheduled yet.
func (r *VideoRouter) Stop() {
	r.stopOnce.Do(func() {
		r.sink.Seal()
		close(r.done)
	})
}

// AttachVideo registers a mixer source as belonging to callID. It only updates the
// router's own mapping; it makes no call on the mixer.
func (r *VideoRouter) AttachVideo(source uintptr, callID ParticipantID) {
	r.mu.Lock()
	r.videoToCall[source] = callID
	r.mu.Unlock()
}

// DetachVideo removes a mixer source from the mapping.
func (r *VideoRouter) DetachVideo(source uintptr) {
	r.mu.Lock()
	delete(r.videoToCall, source)
	r.mu.Unlock()
}

func (r *VideoRouter) callForSource(source uintptr) (ParticipantID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.videoToCall[source]
	return id, ok
}

// sourceForCall is the reverse lookup of callForSource, used by ConferenceCore to
// resolve a peer URI down to a mixer source pointer for SetActiveParticipant.
func (r *VideoRouter) sourceForCall(callID ParticipantID) (uintptr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for source, id := range r.videoToCall {
		if id == callID {
			return source, true
		}
	}

	return 0, false
}

// applySourcesUpdated turns one mixer source snapshot into a layout and, if a listener
// is registered, hands it off. Only ever called from loop, so two successive updates
// never interleave here.
func (r *VideoRouter) applySourcesUpdated(sources []SourceInfo, canvasW, canvasH int) {
	rows := make([]ParticipantInfo, 0, len(sources))
	sawHost := false

	for _, src := range sources {
		callID, ok := r.callForSource(src.Source)
		if !ok {
			continue
		}

		if callID == localHostCallID {
			sawHost = true
		}

		uri, deviceID, localMuted, ok := r.resolver.ResolveCall(callID)
		if !ok {
			continue
		}

		peer := StripURISuffix(uri)

		rows = append(rows, ParticipantInfo{
			URI:                 uri,
			DeviceID:            deviceID,
			Active:              r.mixer.GetActiveParticipant() == src.Source,
			X:                   src.X,
			Y:                   src.Y,
			W:                   src.W,
			H:                   src.H,
			VideoMuted:          !src.HasVideo,
			AudioLocalMuted:     localMuted,
			AudioModeratorMuted: r.resolver.IsModeratorMuted(peer),
			IsModerator:         r.resolver.IsModerator(peer),
			HandRaised:          r.resolver.IsHandRaised(peer),
		})
	}

	if !sawHost {
		rows = append(rows, ParticipantInfo{
			URI:         "",
			VideoMuted:  true,
			IsModerator: true,
		})
	}

	if r.onLayoutChanged != nil {
		r.onLayoutChanged(ConfInfo{Participants: rows, W: canvasW, H: canvasH})
	}
}

// SetActiveParticipant delegates to the mixer: the host source, a resolved call's
// receive writer, or nothing if who can't be resolved.
func (r *VideoRouter) SetActiveParticipant(who PeerURI, resolveSource func(PeerURI) (uintptr, bool)) {
	if who == HostURI {
		r.mixer.SetActiveHost()
		return
	}

	if source, ok := resolveSource(who); ok {
		r.mixer.SetActiveParticipant(source)
		return
	}

	r.mixer.SetActiveParticipant(0)
}

// SetLayout maps 0/1/2 onto grid/one-big-with-small/one-big; other values are ignored.
// Selecting grid also clears the active participant.
func (r *VideoRouter) SetLayout(id int) bool {
	switch id {
	case 0:
		r.mixer.SetVideoLayout(LayoutGrid)
		r.mixer.SetActiveParticipant(0)
	case 1:
		r.mixer.SetVideoLayout(LayoutOneBigWithSmall)
	case 2:
		r.mixer.SetVideoLayout(LayoutOneBig)
	default:
		return false
	}

	return true
}

func (r *VideoRouter) RefreshLayout() {
	r.mixer.UpdateLayout()
}
