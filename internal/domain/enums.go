// Package domain defines the core domain models for the relay.
package domain

// Role identifies who authored a message in a conversation.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// MediaKind classifies an attachment body.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindGIF   MediaKind = "gif"
	MediaKindVideo MediaKind = "video"
	MediaKindVoice MediaKind = "voice"
	MediaKindAudio MediaKind = "audio"
)

// Valid reports whether k is one of the known media kinds.
func (k MediaKind) Valid() bool {
	switch k {
	case MediaKindImage, MediaKindGIF, MediaKindVideo, MediaKindVoice, MediaKindAudio:
		return true
	}
	return false
}

// Slot is the transport-level media field that carried an attachment.
type Slot string

const (
	SlotNone      Slot = ""
	SlotPhoto     Slot = "photo"
	SlotVideo     Slot = "video"
	SlotVoice     Slot = "voice"
	SlotAudio     Slot = "audio"
	SlotAnimation Slot = "animation"
)

// Kind returns the coarse media kind implied by the slot.
func (s Slot) Kind() MediaKind {
	switch s {
	case SlotVideo:
		return MediaKindVideo
	case SlotVoice:
		return MediaKindVoice
	case SlotAudio:
		return MediaKindAudio
	case SlotAnimation:
		return MediaKindGIF
	default:
		return MediaKindImage
	}
}

// Event names published to the notification sink.
const (
	EventNewMessage       = "new_message"
	EventAdminMessageSent = "admin_message_sent"
)
