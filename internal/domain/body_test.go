package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBody(t *testing.T) {
	cases := []struct {
		in   string
		want Body
	}{
		{"hello", Text("hello")},
		{"[gif]https://x/y.gif", Media(MediaKindGIF, "https://x/y.gif")},
		{"[voice]sent", Placeholder(MediaKindVoice)},
		{"[sticker]abc", Text("[sticker]abc")},
		{"[image", Text("[image")},
		{"", Text("")},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseBody(tc.in), tc.in)
	}
}

func TestBodyStringRoundTrip(t *testing.T) {
	b := Media(MediaKindVideo, "https://api.telegram.org/file/botT/videos/v.mp4")
	assert.Equal(t, "[video]https://api.telegram.org/file/botT/videos/v.mp4", b.String())
	assert.Equal(t, b, ParseBody(b.String()))
	assert.Equal(t, "[image]sent", Placeholder(MediaKindImage).String())
	assert.Equal(t, "plain", Text("plain").String())
}

func TestBodyJSON(t *testing.T) {
	msg := Message{ConversationID: 42, Role: RoleAdmin, Body: Media(MediaKindAudio, "u")}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"[audio]u"`)

	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, msg.Body, decoded.Body)
}

func TestSlotKind(t *testing.T) {
	assert.Equal(t, MediaKindImage, SlotPhoto.Kind())
	assert.Equal(t, MediaKindVideo, SlotVideo.Kind())
	assert.Equal(t, MediaKindVoice, SlotVoice.Kind())
	assert.Equal(t, MediaKindAudio, SlotAudio.Kind())
	assert.Equal(t, MediaKindGIF, SlotAnimation.Kind())
}
