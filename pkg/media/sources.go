package media

// HostSources holds the local host's own contribution to a conference: one audio slot
// and one video slot. It is mutated by attach/detach and by request-media-change.
type HostSources struct {
	Audio Attribute
	Video Attribute
}

// AttachDefaults initialises both slots for an attached host: audio defaults to the
// system microphone, video to the given default-device URI.
func (s *HostSources) AttachDefaults(defaultVideoURI string) {
	s.Audio = Attribute{Type: TypeAudio, Enabled: true, SourceType: SourceCaptureDevice}
	s.Video = Attribute{
		Type:       TypeVideo,
		Enabled:    true,
		SourceType: SourceCaptureDevice,
		SourceURI:  defaultVideoURI,
	}
}

// Detach clears both slots to type-none, as required while the conference is detached.
func (s *HostSources) Detach() {
	s.Audio = Attribute{Type: TypeNone}
	s.Video = Attribute{Type: TypeNone}
}

// Slot returns a pointer to the slot for the given type, or nil for TypeNone.
func (s *HostSources) Slot(t Type) *Attribute {
	switch t {
	case TypeAudio:
		return &s.Audio
	case TypeVideo:
		return &s.Video
	default:
		return nil
	}
}

// IsMediaSourceMuted reports true if the conference is detached, if the slot for the
// given type is type-none, or if the slot is explicitly muted.
func (s *HostSources) IsMediaSourceMuted(t Type, attached bool) bool {
	if !attached {
		return true
	}

	slot := s.Slot(t)
	if slot == nil || slot.Type == TypeNone {
		return true
	}

	return slot.Muted
}
