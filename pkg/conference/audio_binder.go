package conference

// AudioBinder wraps the process-wide ring-buffer pool with conference-aware bind /
// half-duplex / unbind policy. Muting is a topology change here, not a volume gate: a
// muted peer still hears the mix, but its own (silent) buffer is never merged into
// anyone else's, so it can't leak residual audio on remix.
//
// BindHalfDuplexOut(out, in) binds out's audio into in's mix without the reverse edge:
// in never gets bound into out's mix. Every call site below names the muted party as
// in, so the muted party can still hear the mix without ever being heard itself.
type AudioBinder struct {
	pool RingBufferPool
}

func NewAudioBinder(pool RingBufferPool) *AudioBinder {
	return &AudioBinder{pool: pool}
}

// BindParticipant wires callID against every other participant already in the
// conference, and against the host if attached. Each edge is decided purely by the
// other side's mute state: callID's own mute state plays no part, matching the original
// bindParticipant, which never inspects the joining participant's own mute flag.
func (b *AudioBinder) BindParticipant(callID ParticipantID, others []ParticipantID, isMuted func(ParticipantID) bool, hostAttached bool, hostMuted bool) {
	for _, p := range others {
		if p == callID {
			continue
		}

		if isMuted(p) {
			b.pool.BindHalfDuplexOut(callID, p)
		} else {
			b.pool.BindCallID(callID, p)
		}

		b.pool.Flush(p)
	}

	b.pool.Flush(callID)

	if hostAttached {
		if hostMuted {
			b.pool.BindHalfDuplexOut(callID, HostID)
		} else {
			b.pool.BindCallID(callID, HostID)
		}

		b.pool.Flush(HostID)
	}
}

// UnbindParticipant tears down every edge callID currently has, in both directions.
// Callers that intend to immediately rebind (e.g. after a mute state change) should
// call this before calling BindParticipant again.
func (b *AudioBinder) UnbindParticipant(callID ParticipantID) {
	b.pool.UnBindAll(callID)
}

// BindHost wires every participant full- or half-duplex to the reserved host id,
// depending on each participant's current mute state.
func (b *AudioBinder) BindHost(participants []ParticipantID, isMuted func(ParticipantID) bool) {
	for _, p := range participants {
		if isMuted(p) {
			b.pool.BindHalfDuplexOut(HostID, p)
		} else {
			b.pool.BindCallID(HostID, p)
		}

		b.pool.Flush(p)
	}

	b.pool.Flush(HostID)
}

// UnbindHost tears down every edge the host currently has, in both directions.
func (b *AudioBinder) UnbindHost() {
	b.pool.UnBindAll(HostID)
}

// HostID is the reserved ParticipantID used to address the local host in the
// ring-buffer graph. It is distinct from HostURI (a PeerURI) even though both denote
// the same party, because the audio graph and the moderator/mute sets are keyed
// differently in the external contracts this core was built against.
const HostID ParticipantID = "host"
