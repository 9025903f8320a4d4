// Package media holds the typed description of a single media stream
// (MediaAttribute) and its round-trip to the string-map wire form used by
// account/call collaborators, plus the host's own two media slots.
package media

import (
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Type is the kind of media a MediaAttribute describes.
type Type int

const (
	TypeNone Type = iota
	TypeAudio
	TypeVideo
)

func (t Type) String() string {
	switch t {
	case TypeAudio:
		return "MEDIA_AUDIO"
	case TypeVideo:
		return "MEDIA_VIDEO"
	default:
		return "MEDIA_NONE"
	}
}

// SourceType describes where a media stream's samples come from.
type SourceType int

const (
	SourceNone SourceType = iota
	SourceCaptureDevice
	SourceFile
	SourceScreen
)

// Wire map keys, exactly as spec.md §6 lists them.
const (
	KeyMediaType = "MEDIA_TYPE"
	KeyMuted     = "MUTED"
	KeyEnabled   = "ENABLED"
	KeySource    = "SOURCE"
	KeyLabel     = "LABEL"
)

const (
	valueTrue  = "true"
	valueFalse = "false"
)

// Attribute is a typed description of one media stream. The zero value is a disabled,
// unmuted, insecure "none" stream, which is also what parseMap falls back to for any
// key it can't make sense of.
type Attribute struct {
	Type       Type
	Muted      bool
	Enabled    bool
	Secure     bool
	SourceURI  string
	Label      string
	SourceType SourceType
}

func boolToString(v bool) string {
	if v {
		return valueTrue
	}

	return valueFalse
}

func stringToType(s string) Type {
	switch s {
	case "MEDIA_AUDIO":
		return TypeAudio
	case "MEDIA_VIDEO":
		return TypeVideo
	default:
		return TypeNone
	}
}

// ParseMap builds an Attribute from a string->string wire map. Any missing key keeps
// the zero-value default for that field. An unrecognised MEDIA_TYPE yields TypeNone and
// is logged; an unrecognised boolean token is logged and the field keeps its default
// rather than aborting the whole parse.
func ParseMap(wire map[string]string) Attribute {
	var attr Attribute

	if raw, ok := wire[KeyMediaType]; ok {
		attr.Type = stringToType(raw)
		if attr.Type == TypeNone && raw != "" {
			logrus.WithField("value", raw).Warn("media: unrecognised MEDIA_TYPE, defaulting to none")
		}
	}

	if raw, ok := wire[KeyMuted]; ok {
		if v, ok := parseBool(raw); ok {
			attr.Muted = v
		} else {
			logrus.WithField("value", raw).Warn("media: invalid MUTED value, keeping default")
		}
	}

	if raw, ok := wire[KeyEnabled]; ok {
		if v, ok := parseBool(raw); ok {
			attr.Enabled = v
		} else {
			logrus.WithField("value", raw).Warn("media: invalid ENABLED value, keeping default")
		}
	}

	if raw, ok := wire[KeySource]; ok {
		attr.SourceURI = raw
	}

	if raw, ok := wire[KeyLabel]; ok {
		attr.Label = raw
	}

	return attr
}

func parseBool(raw string) (bool, bool) {
	switch raw {
	case valueTrue:
		return true, true
	case valueFalse:
		return false, true
	default:
		return false, false
	}
}

// ToMap always emits all five wire keys.
func ToMap(attr Attribute) map[string]string {
	return map[string]string{
		KeyMediaType: attr.Type.String(),
		KeyMuted:     boolToString(attr.Muted),
		KeyEnabled:   boolToString(attr.Enabled),
		KeySource:    attr.SourceURI,
		KeyLabel:     attr.Label,
	}
}

// ParseList parses a JSON array of media maps (the on-wire form used by
// requestMediaChange) using gjson so that an individual malformed entry doesn't
// abort the whole batch.
func ParseList(mediaListJSON string) []Attribute {
	result := gjson.Parse(mediaListJSON)
	if !result.IsArray() {
		return nil
	}

	var list []Attribute

	result.ForEach(func(_, entry gjson.Result) bool {
		wire := make(map[string]string)
		entry.ForEach(func(key, value gjson.Result) bool {
			wire[key.String()] = value.String()
			return true
		})
		list = append(list, ParseMap(wire))
		return true
	})

	return list
}

// ToListJSON is the inverse of ParseList.
func ToListJSON(list []Attribute) string {
	json := "[]"

	for i, attr := range list {
		wire := ToMap(attr)
		prefix := strconv.Itoa(i) + "."

		for _, key := range []string{KeyMediaType, KeyMuted, KeyEnabled, KeySource, KeyLabel} {
			var err error
			json, err = sjson.Set(json, prefix+key, wire[key])
			if err != nil {
				logrus.WithError(err).Error("media: failed to encode attribute list")
			}
		}
	}

	return json
}

// HasMediaType reports whether any attribute in list has the given type.
func HasMediaType(list []Attribute, t Type) bool {
	for _, attr := range list {
		if attr.Type == t {
			return true
		}
	}

	return false
}

// String produces the short human debug line (type, mute state and label), mirroring
// toString(full) of the original implementation with full unset. FullString is the
// variant that also reports source and secure.
func (a Attribute) String() string {
	line := "type " + a.Type.String() + " muted "

	if a.Muted {
		line += "[YES]"
	} else {
		line += "[NO]"
	}

	line += " label [" + a.Label + "]"

	return line
}

// FullString is the "full" variant of String, additionally reporting source and
// secure flags.
func (a Attribute) FullString() string {
	line := a.String()
	line += " source [" + a.SourceURI + "]"

	if a.Secure {
		line += " secure [YES]"
	} else {
		line += " secure [NO]"
	}

	return line
}
