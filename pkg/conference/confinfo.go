package conference

import (
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ParticipantInfo is one row of a layout. Equality is field-wise (it's a plain
// comparable struct), which is what lets the broadcast path detect "nothing changed".
type ParticipantInfo struct {
	URI                 string
	DeviceID            string
	SinkID              string
	Active              bool
	X, Y, W, H          int
	VideoMuted          bool
	AudioLocalMuted     bool
	AudioModeratorMuted bool
	IsModerator         bool
	HandRaised          bool
}

// ConfInfo is the authoritative layout document: an ordered sequence of participant
// rows plus the canvas dimensions. Order is observable to clients and follows mixer
// assignment order.
type ConfInfo struct {
	Participants []ParticipantInfo
	W, H         int
}

// Empty reports whether the ConfInfo carries no rows at all, e.g. a remote sub-host
// signalling that its own conference just ended.
func (c ConfInfo) Empty() bool {
	return len(c.Participants) == 0
}

// Equal does a field-wise comparison of both the rows (in order) and the canvas size.
func (c ConfInfo) Equal(other ConfInfo) bool {
	if c.W != other.W || c.H != other.H {
		return false
	}

	if len(c.Participants) != len(other.Participants) {
		return false
	}

	for i := range c.Participants {
		if c.Participants[i] != other.Participants[i] {
			return false
		}
	}

	return true
}

// Clone makes a deep-enough copy (the row slice is copied; rows themselves are value
// types) so callers can safely mutate the result without aliasing stored state.
func (c ConfInfo) Clone() ConfInfo {
	rows := make([]ParticipantInfo, len(c.Participants))
	copy(rows, c.Participants)
	return ConfInfo{Participants: rows, W: c.W, H: c.H}
}

// WithHostURIFilled returns a copy of c where any row whose URI is empty (the local
// host's own synthetic row) is stamped with localHostURI, so the receiving call sees
// the conference host's real identity.
func (c ConfInfo) WithHostURIFilled(localHostURI string) ConfInfo {
	out := c.Clone()
	for i := range out.Participants {
		if out.Participants[i].URI == "" {
			out.Participants[i].URI = localHostURI
		}
	}

	return out
}

// ToJSON emits the per-call wire form documented in spec.md §6:
//
//	{ "w": <int>, "h": <int>, "p": [ {...}, ... ] }
func (c ConfInfo) ToJSON() string {
	json := "{}"
	json, _ = sjson.Set(json, "w", c.W)
	json, _ = sjson.Set(json, "h", c.H)
	json, _ = sjson.SetRaw(json, "p", "[]")

	for i, p := range c.Participants {
		json, _ = sjson.Set(json, participantPath(i, "uri"), p.URI)
		json, _ = sjson.Set(json, participantPath(i, "device"), p.DeviceID)
		json, _ = sjson.Set(json, participantPath(i, "sinkId"), p.SinkID)
		json, _ = sjson.Set(json, participantPath(i, "active"), p.Active)
		json, _ = sjson.Set(json, participantPath(i, "x"), p.X)
		json, _ = sjson.Set(json, participantPath(i, "y"), p.Y)
		json, _ = sjson.Set(json, participantPath(i, "w"), p.W)
		json, _ = sjson.Set(json, participantPath(i, "h"), p.H)
		json, _ = sjson.Set(json, participantPath(i, "videoMuted"), p.VideoMuted)
		json, _ = sjson.Set(json, participantPath(i, "audioLocalMuted"), p.AudioLocalMuted)
		json, _ = sjson.Set(json, participantPath(i, "audioModeratorMuted"), p.AudioModeratorMuted)
		json, _ = sjson.Set(json, participantPath(i, "isModerator"), p.IsModerator)
		json, _ = sjson.Set(json, participantPath(i, "handRaised"), p.HandRaised)
	}

	return json
}

func participantPath(index int, field string) string {
	return "p." + strconv.Itoa(index) + "." + field
}

// ParseConfInfoJSON is the inverse of ToJSON, used to decode a ConfInfo received from a
// remote sub-host.
func ParseConfInfoJSON(payload string) ConfInfo {
	root := gjson.Parse(payload)

	info := ConfInfo{
		W: int(root.Get("w").Int()),
		H: int(root.Get("h").Int()),
	}

	root.Get("p").ForEach(func(_, row gjson.Result) bool {
		info.Participants = append(info.Participants, ParticipantInfo{
			URI:                 row.Get("uri").String(),
			DeviceID:            row.Get("device").String(),
			SinkID:              row.Get("sinkId").String(),
			Active:              row.Get("active").Bool(),
			X:                   int(row.Get("x").Int()),
			Y:                   int(row.Get("y").Int()),
			W:                   int(row.Get("w").Int()),
			H:                   int(row.Get("h").Int()),
			VideoMuted:          row.Get("videoMuted").Bool(),
			AudioLocalMuted:     row.Get("audioLocalMuted").Bool(),
			AudioModeratorMuted: row.Get("audioModeratorMuted").Bool(),
			IsModerator:         row.Get("isModerator").Bool(),
			HandRaised:          row.Get("handRaised").Bool(),
		})
		return true
	})

	return info
}

// ToClientMaps is the client-signal representation: an ordered sequence of
// string->string maps, one per participant row.
func (c ConfInfo) ToClientMaps() []map[string]string {
	maps := make([]map[string]string, 0, len(c.Participants))

	for _, p := range c.Participants {
		maps = append(maps, map[string]string{
			"uri":                 p.URI,
			"device":              p.DeviceID,
			"sinkId":              p.SinkID,
			"active":              boolStr(p.Active),
			"x":                   strconv.Itoa(p.X),
			"y":                   strconv.Itoa(p.Y),
			"w":                   strconv.Itoa(p.W),
			"h":                   strconv.Itoa(p.H),
			"videoMuted":          boolStr(p.VideoMuted),
			"audioLocalMuted":     boolStr(p.AudioLocalMuted),
			"audioModeratorMuted": boolStr(p.AudioModeratorMuted),
			"isModerator":         boolStr(p.IsModerator),
			"handRaised":          boolStr(p.HandRaised),
		})
	}

	return maps
}

func boolStr(v bool) string {
	if v {
		return "true"
	}

	return "false"
}

