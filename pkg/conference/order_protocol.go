package conference

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ProcessOrder decodes a conf-order JSON payload from a known peer call and dispatches
// the recognised operations, in the fixed order spec.md §6 lists them: handRaised,
// layout, activeParticipant, muteParticipant, hangupParticipant. Decoding failures are
// logged and ignored; unrecognised members are silently ignored; unauthorised members
// are logged and dropped. handRaised is processed before the moderator check that
// gates the rest of the message, so a non-moderator peer can raise its own hand in the
// same message that also carries a rejected moderator-only order — this mirrors the
// original implementation and is called out as an open question in DESIGN.md rather
// than silently tightened.
func (c *Core) ProcessOrder(fromCallID ParticipantID, payload string) {
	if !gjson.Valid(payload) {
		c.logger.WithField("call_id", fromCallID).Warn("conf-order: malformed JSON, dropping")
		return
	}

	call, ok := c.lookupCall(fromCallID)
	if !ok {
		c.logger.WithField("call_id", fromCallID).Warn("conf-order: unknown call, dropping")
		return
	}

	peer := StripURISuffix(call.PeerNumber())
	root := gjson.Parse(payload)

	if hand := root.Get("handRaised"); hand.Exists() {
		state := root.Get("handState").String() == "true"
		target := StripURISuffix(hand.String())

		if target == peer {
			c.SetHandRaised(peer, state)
		} else if !state && c.moderators.IsModerator(peer) {
			c.SetHandRaised(target, state)
		} else if target != peer {
			c.logger.WithFields(logFields(peer, "handRaised")).Warn("conf-order: unauthorised hand-raise change, dropping")
		}
	}

	isModerator := c.moderators.IsModerator(peer)

	if layout := root.Get("layout"); layout.Exists() {
		if isModerator {
			c.SetLayout(int(layout.Int()))
		} else {
			c.logger.WithFields(logFields(peer, "layout")).Warn("conf-order: non-moderator layout change, dropping")
		}
	}

	if active := root.Get("activeParticipant"); active.Exists() {
		if isModerator {
			c.SetActiveParticipant(StripURISuffix(active.String()))
		} else {
			c.logger.WithFields(logFields(peer, "activeParticipant")).Warn("conf-order: non-moderator active-participant change, dropping")
		}
	}

	if mute := root.Get("muteParticipant"); mute.Exists() {
		if !isModerator {
			c.logger.WithFields(logFields(peer, "muteParticipant")).Warn("conf-order: non-moderator mute order, dropping")
		} else {
			state := root.Get("muteState").String() == "true"
			c.MuteParticipant(StripURISuffix(mute.String()), state)
		}
	}

	if hangup := root.Get("hangupParticipant"); hangup.Exists() {
		if !isModerator {
			c.logger.WithFields(logFields(peer, "hangupParticipant")).Warn("conf-order: non-moderator hangup order, dropping")
		} else {
			c.HangupParticipant(StripURISuffix(hangup.String()))
		}
	}
}

func logFields(peer PeerURI, member string) map[string]interface{} {
	return map[string]interface{}{"peer": peer, "member": member}
}

// BuildMuteOrder constructs the wire form of a muteParticipant conf-order, the message
// a remote sub-host that owns the target participant accepts. Nothing in this package
// calls it: MuteParticipant does not forward orders to sub-hosts.
func BuildMuteOrder(participantURI string, state bool) string {
	json := "{}"
	json, _ = sjson.Set(json, "muteParticipant", participantURI)
	json, _ = sjson.Set(json, "muteState", boolStr(state))

	return json
}

// BuildHangupOrder constructs the wire form of a hangupParticipant conf-order.
func BuildHangupOrder(participantURI string) string {
	json := "{}"
	json, _ = sjson.Set(json, "hangupParticipant", participantURI)

	return json
}
