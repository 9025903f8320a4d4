package conference

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/savoirfairelinux/confcore/pkg/media"
)

func newTestCore(t *testing.T) (*Core, *fakeRingPool, *fakeMixer, *fakeSignals, *fakeAccount) {
	t.Helper()

	logger := logrus.NewEntry(logrus.New())
	pool := newFakeRingPool()
	mixer := newFakeMixer()
	signals := &fakeSignals{}
	account := &fakeAccount{uri: "moderator@example.org", moderators: []string{"moderator@example.org"}}

	core := NewCore("conf1", DefaultConfig(), account, mixer, pool, newFakeRecorder(), signals, logger)

	return core, pool, mixer, signals, account
}

// S1: muting and unmuting a participant round-trips back to the original bind state.
func TestMuteUnmuteRoundTrip(t *testing.T) {
	core, pool, _, _, _ := newTestCore(t)

	alice := newFakeCall("alice@example.org")
	if err := core.AddParticipant("call-alice", alice); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}

	bob := newFakeCall("bob@example.org")
	if err := core.AddParticipant("call-bob", bob); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}

	before := len(pool.fullDup)

	core.MuteParticipant("bob", true)
	if pool.fullDup[[2]ParticipantID{"call-bob", "call-alice"}] {
		t.Fatalf("expected bob's full-duplex edge to be gone after mute")
	}

	core.MuteParticipant("bob", false)

	after := len(pool.fullDup)
	if after != before {
		t.Fatalf("expected bind count to be restored after unmute: before=%d after=%d", before, after)
	}
}

// S2: broadcasting an unchanged layout twice only signals the client once.
func TestBroadcastIdempotence(t *testing.T) {
	core, _, _, signals, _ := newTestCore(t)

	core.confInfoMutex.Lock()
	core.confInfo = ConfInfo{W: 100, H: 100, Participants: []ParticipantInfo{{URI: "alice"}}}
	core.confInfoMutex.Unlock()

	core.sendConferenceInfos()
	core.sendConferenceInfos()

	if got := signals.broadcastCount(); got != 1 {
		t.Fatalf("expected exactly one broadcast for an unchanged layout, got %d", got)
	}
}

// S3: adding then removing a participant restores the ring-buffer graph to empty.
func TestAddRemoveRestoresGraph(t *testing.T) {
	core, pool, _, _, _ := newTestCore(t)

	alice := newFakeCall("alice@example.org")
	if err := core.AddParticipant("call-alice", alice); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}

	if err := core.RemoveParticipant("call-alice"); err != nil {
		t.Fatalf("RemoveParticipant: %v", err)
	}

	for k, bound := range pool.fullDup {
		if bound && (k[0] == ParticipantID("call-alice") || k[1] == ParticipantID("call-alice")) {
			t.Fatalf("expected no lingering full-duplex edges for removed participant, found %v", k)
		}
	}

	if core.participants.Has("call-alice") {
		t.Fatalf("expected participant registry to no longer contain call-alice")
	}
}

// S4: attach/detach obey the two-state lifecycle law: state is always one of
// ActiveAttached/ActiveDetached until Shutdown, never something else.
func TestAttachDetachStateMachine(t *testing.T) {
	core, _, _, _, _ := newTestCore(t)

	if core.State() != ActiveAttached {
		t.Fatalf("expected a freshly built core to start ActiveAttached, got %s", core.State())
	}

	core.DetachLocalParticipant()
	if core.State() != ActiveDetached {
		t.Fatalf("expected ActiveDetached after detach, got %s", core.State())
	}

	core.AttachLocalParticipant()
	if core.State() != ActiveAttached {
		t.Fatalf("expected ActiveAttached after re-attach, got %s", core.State())
	}

	core.DetachLocalParticipant()
	if core.State() != ActiveDetached {
		t.Fatalf("expected ActiveDetached after second detach, got %s", core.State())
	}
}

// S5: a detached host's own media sources are always reported muted, regardless of
// their pre-detach state.
func TestDetachedHostSourcesAlwaysMuted(t *testing.T) {
	core, _, _, _, _ := newTestCore(t)

	// A freshly built core starts ActiveAttached with unmuted defaults already.
	core.hostMu.Lock()
	core.hostSources.Audio.Muted = false
	core.hostMu.Unlock()

	core.DetachLocalParticipant()

	attached := core.State() == ActiveAttached
	core.hostMu.Lock()
	muted := core.hostSources.IsMediaSourceMuted(media.TypeAudio, attached)
	core.hostMu.Unlock()

	if !muted {
		t.Fatalf("expected host audio to read as muted while detached")
	}
}

// S6: merging a remote sub-host's layout rescales rows within the bounds of the local
// cell that represents it.
func TestRemoteMergeContainsRowsWithinLocalCell(t *testing.T) {
	core, _, _, _, _ := newTestCore(t)

	core.confInfoMutex.Lock()
	core.confInfo = ConfInfo{
		W: 1280, H: 720,
		Participants: []ParticipantInfo{
			{URI: "subhost@example.org", X: 640, Y: 0, W: 640, H: 720},
		},
	}
	core.confInfoMutex.Unlock()

	remote := ConfInfo{
		W: 1280, H: 720,
		Participants: []ParticipantInfo{
			{URI: "carol@example.org", X: 0, Y: 0, W: 640, H: 720},
			{URI: "dave@example.org", X: 640, Y: 0, W: 640, H: 720},
		},
	}

	core.MergeRemoteConfInfo("subhost", remote.ToJSON())

	merged, ok := core.remoteHosts.Get("subhost")
	if !ok {
		t.Fatalf("expected merged remote host entry to be present")
	}

	for _, row := range merged.Participants {
		if row.X < 640 || row.X+row.W > 1280 {
			t.Fatalf("row %q escaped local cell bounds: x=%d w=%d", row.URI, row.X, row.W)
		}
		if row.Y < 0 || row.Y+row.H > 720 {
			t.Fatalf("row %q escaped local cell bounds: y=%d h=%d", row.URI, row.Y, row.H)
		}
	}
}

// A peer that joins already muted must show up in the moderator-muted set immediately,
// not only once a moderator explicitly mutes it.
func TestAddParticipantRecordsPeerMuted(t *testing.T) {
	core, _, _, _, _ := newTestCore(t)

	alice := newFakeCall("alice@example.org")
	alice.muted = true

	if err := core.AddParticipant("call-alice", alice); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}

	if !core.IsModeratorMuted("alice") {
		t.Fatalf("expected alice to be recorded as muted after joining pre-muted")
	}
}

// The first participant to join seeds the host's mute state from its own; a later join
// AND-reduces it, so the host only reads back as muted once every source feeding it is
// muted. In both cases the call's own mute flag is forced back to false since the mixer
// now owns mute semantics for that stream.
func TestTakeOverMediaSourceControlANDReduction(t *testing.T) {
	core, _, _, signals, _ := newTestCore(t)

	alice := newFakeCall("alice@example.org")
	alice.mediaAttrs = []media.Attribute{{Type: media.TypeAudio, Muted: true}}

	if err := core.AddParticipant("call-alice", alice); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}

	core.hostMu.Lock()
	hostMuted := core.hostSources.Audio.Muted
	core.hostMu.Unlock()

	if !hostMuted {
		t.Fatalf("expected host audio to inherit true from the first participant")
	}

	if len(alice.requested) != 1 || alice.requested[0].Muted {
		t.Fatalf("expected alice's own mute flag to be forced false, got %v", alice.requested)
	}

	bob := newFakeCall("bob@example.org")
	bob.mediaAttrs = []media.Attribute{{Type: media.TypeAudio, Muted: false}}

	if err := core.AddParticipant("call-bob", bob); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}

	core.hostMu.Lock()
	hostMuted = core.hostSources.Audio.Muted
	core.hostMu.Unlock()

	if hostMuted {
		t.Fatalf("expected host audio to read unmuted once one source is unmuted")
	}

	if got := signals.audioMuted; len(got) != 2 || got[0] != true || got[1] != false {
		t.Fatalf("expected AudioMuted(true) then AudioMuted(false), got %v", got)
	}
}

// Muting local video stops the mixer's input; unmuting switches it back to the current
// source. Video mute is a no-op when the account has video disabled.
func TestMuteLocalHostVideo(t *testing.T) {
	core, _, mixer, signals, account := newTestCore(t)

	// A freshly built core starts ActiveAttached already.
	core.MuteLocalHost(true, media.TypeVideo)
	if mixer.stopInputCalls != 1 {
		t.Fatalf("expected one StopInput call after muting video, got %d", mixer.stopInputCalls)
	}

	core.MuteLocalHost(false, media.TypeVideo)
	if len(mixer.switchedInputs) == 0 || mixer.switchedInputs[len(mixer.switchedInputs)-1] != "camera0" {
		t.Fatalf("expected SwitchInput back to the host's device on unmute, got %v", mixer.switchedInputs)
	}

	if got := signals.videoMuted; len(got) != 2 || got[0] != true || got[1] != false {
		t.Fatalf("expected VideoMuted(true) then VideoMuted(false), got %v", got)
	}

	account.videoDisabled = true
	before := mixer.stopInputCalls
	core.MuteLocalHost(true, media.TypeVideo)
	if mixer.stopInputCalls != before {
		t.Fatalf("expected muting video to no-op once the account has video disabled")
	}
}

// Attaching switches the mixer onto the host's own video source; detaching stops it.
func TestAttachSwitchesMixerToHostVideoSource(t *testing.T) {
	core, _, mixer, _, _ := newTestCore(t)

	// Force the ActiveDetached -> ActiveAttached transition explicitly, since a freshly
	// built core already starts ActiveAttached.
	core.DetachLocalParticipant()
	if mixer.stopInputCalls != 1 {
		t.Fatalf("expected detach to stop the mixer's input, got %d calls", mixer.stopInputCalls)
	}

	core.AttachLocalParticipant()
	if len(mixer.switchedInputs) != 1 || mixer.switchedInputs[0] != "camera0" {
		t.Fatalf("expected attach to switch the mixer to the default device, got %v", mixer.switchedInputs)
	}
}

// RequestMediaChange is the host's own operation: illegal while detached, rejects more
// than one stream per media type, and dispatches source and mute changes.
func TestRequestMediaChangeHostOwnMedia(t *testing.T) {
	core, _, mixer, signals, _ := newTestCore(t)

	core.DetachLocalParticipant()
	if err := core.RequestMediaChange([]media.Attribute{{Type: media.TypeAudio}}); err == nil {
		t.Fatalf("expected RequestMediaChange to fail while detached")
	}

	core.AttachLocalParticipant()

	tooMany := []media.Attribute{{Type: media.TypeVideo}, {Type: media.TypeVideo}}
	if err := core.RequestMediaChange(tooMany); err == nil {
		t.Fatalf("expected RequestMediaChange to reject more than one stream per media type")
	}

	if err := core.RequestMediaChange([]media.Attribute{{Type: media.TypeVideo, SourceURI: "screen0"}}); err != nil {
		t.Fatalf("RequestMediaChange: %v", err)
	}

	if last := mixer.switchedInputs[len(mixer.switchedInputs)-1]; last != "screen0" {
		t.Fatalf("expected the mixer to be switched to screen0, got %s", last)
	}

	if err := core.RequestMediaChange([]media.Attribute{{Type: media.TypeAudio, Muted: true}}); err != nil {
		t.Fatalf("RequestMediaChange: %v", err)
	}

	if got := signals.audioMuted; len(got) == 0 || got[len(got)-1] != true {
		t.Fatalf("expected the mute-state flip to dispatch to MuteLocalHost, got %v", got)
	}
}

// Remote sub-host layouts must assemble in a deterministic row order across calls, or
// an unchanged conference would be seen as "changed" purely from map iteration order.
func TestRemoteMergeAssembleDeterministicOrder(t *testing.T) {
	core, _, _, _, _ := newTestCore(t)

	core.confInfoMutex.Lock()
	core.confInfo = ConfInfo{
		W: 1280, H: 720,
		Participants: []ParticipantInfo{
			{URI: "subhost-a@example.org", X: 0, Y: 0, W: 640, H: 720},
			{URI: "subhost-b@example.org", X: 640, Y: 0, W: 640, H: 720},
		},
	}
	core.confInfoMutex.Unlock()

	remote := ConfInfo{
		W: 1280, H: 720,
		Participants: []ParticipantInfo{{URI: "someone@example.org", X: 0, Y: 0, W: 1280, H: 720}},
	}

	core.MergeRemoteConfInfo("subhost-a", remote.ToJSON())
	core.MergeRemoteConfInfo("subhost-b", remote.ToJSON())

	local := core.confInfo.Participants

	var first, second []ParticipantInfo
	for i := 0; i < 20; i++ {
		rows := core.remoteHosts.AssembleAll(local)
		if first == nil {
			first = rows
			continue
		}
		second = rows
		if len(first) != len(second) {
			t.Fatalf("row count changed between assemblies: %d vs %d", len(first), len(second))
		}
		for j := range first {
			if first[j].URI != second[j].URI {
				t.Fatalf("row order not deterministic: iteration %d position %d: %q vs %q", i, j, first[j].URI, second[j].URI)
			}
		}
	}
}

func TestHandRaiseAndModeratorSets(t *testing.T) {
	core, _, _, _, _ := newTestCore(t)

	if core.IsModerator(HostURI) != true {
		t.Fatalf("expected host to always be a moderator")
	}

	core.SetHandRaised("alice", true)
	if !core.IsHandRaised("alice") {
		t.Fatalf("expected alice's hand to be raised")
	}

	core.SetHandRaised("alice", false)
	if core.IsHandRaised("alice") {
		t.Fatalf("expected alice's hand to be lowered")
	}

	core.SetModerator("alice", true)
	if !core.IsModerator("alice") {
		t.Fatalf("expected alice to be a moderator after grant")
	}
}
