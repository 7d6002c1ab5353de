package domain

import (
	"encoding/json"
	"strings"
)

// Body is the content of a message: either plain text or a kind-tagged media reference.
// The zero Kind means text.
type Body struct {
	Kind MediaKind
	Text string
	URL  string
}

// PlaceholderURL is stored when a sent attachment could not be resolved to a locator.
const PlaceholderURL = "sent"

// Text returns a plain text body.
func Text(s string) Body {
	return Body{Text: s}
}

// Media returns a media body of the given kind.
func Media(kind MediaKind, url string) Body {
	return Body{Kind: kind, URL: url}
}

// Placeholder returns the media body stored when reconciliation fails.
func Placeholder(kind MediaKind) Body {
	return Media(kind, PlaceholderURL)
}

// IsMedia reports whether the body references media.
func (b Body) IsMedia() bool {
	return b.Kind != ""
}

// String encodes the body in the legacy wire form: text as-is, media as "[kind]url".
func (b Body) String() string {
	if !b.IsMedia() {
		return b.Text
	}
	return "[" + string(b.Kind) + "]" + b.URL
}

// ParseBody decodes the legacy wire form. Unknown tags are treated as text.
func ParseBody(s string) Body {
	if !strings.HasPrefix(s, "[") {
		return Text(s)
	}
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return Text(s)
	}
	kind := MediaKind(s[1:end])
	if !kind.Valid() {
		return Text(s)
	}
	return Media(kind, s[end+1:])
}

// MarshalJSON encodes the body as its wire string.
func (b Body) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON decodes a wire string.
func (b *Body) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*b = ParseBody(s)
	return nil
}
