package classify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/tgrelay/internal/domain"
)

func TestClassifyDeclaredNameWinsOverMime(t *testing.T) {
	c := New()
	for _, name := range []string{"a.gif", "A.GIF", "cat.Gif"} {
		for _, mime := range []string{"", "image/jpeg", "video/mp4", "application/octet-stream"} {
			kind := c.Classify(context.Background(), Probe{DeclaredName: name, DeclaredMime: mime, Slot: domain.SlotVideo})
			assert.Equal(t, domain.MediaKindGIF, kind, "%s %s", name, mime)
		}
	}
}

func TestClassifyMimeBeatsMisleadingExtension(t *testing.T) {
	kind := New().Classify(context.Background(), Probe{DeclaredName: "b.dat", DeclaredMime: "image/gif", Slot: domain.SlotPhoto})
	assert.Equal(t, domain.MediaKindGIF, kind)
}

func TestClassifyStoredPathAndKeyword(t *testing.T) {
	c := New()
	assert.Equal(t, domain.MediaKindGIF, c.Classify(context.Background(), Probe{StoredPath: "photos/file_1.GIF", Slot: domain.SlotPhoto}))
	assert.Equal(t, domain.MediaKindGIF, c.Classify(context.Background(), Probe{StoredPath: "animations/gif_file_2.mp4", Slot: domain.SlotVideo}))
	assert.Equal(t, domain.MediaKindImage, c.Classify(context.Background(), Probe{StoredPath: "photos/file_3.jpg", Slot: domain.SlotPhoto}))
}

func TestClassifyHeaderBytes(t *testing.T) {
	c := New()
	for _, magic := range []string{"GIF87a", "GIF89a"} {
		kind := c.Classify(context.Background(), Probe{Header: []byte(magic + "rest"), Slot: domain.SlotPhoto})
		assert.Equal(t, domain.MediaKindGIF, kind)
	}
	assert.Equal(t, domain.MediaKindImage, c.Classify(context.Background(), Probe{Header: []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0}, Slot: domain.SlotPhoto}))
	assert.Equal(t, domain.MediaKindImage, c.Classify(context.Background(), Probe{Header: []byte("GIF"), Slot: domain.SlotPhoto}))
}

func TestClassifyLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.bin")
	require.NoError(t, os.WriteFile(path, []byte("GIF89a\x01\x00"), 0o600))

	kind := New().Classify(context.Background(), Probe{LocalFile: path, Slot: domain.SlotPhoto})
	assert.Equal(t, domain.MediaKindGIF, kind)
}

func TestClassifyRemoteHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=0-5", r.Header.Get("Range"))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("GIF87a"))
	}))
	defer srv.Close()

	kind := New().Classify(context.Background(), Probe{URL: srv.URL + "/file/photo.jpg", Slot: domain.SlotPhoto})
	assert.Equal(t, domain.MediaKindGIF, kind)
}

func TestClassifyIOErrorsFallBackToSlot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New()
	probe := Probe{
		LocalFile: filepath.Join(t.TempDir(), "missing"),
		URL:       srv.URL + "/voice.oga",
		Slot:      domain.SlotVoice,
	}
	assert.Equal(t, domain.MediaKindVoice, c.Classify(context.Background(), probe))

	probe = Probe{URL: "http://127.0.0.1:1/unreachable", Slot: domain.SlotAudio}
	assert.Equal(t, domain.MediaKindAudio, c.Classify(context.Background(), probe))
}

func TestFirstMatchOrder(t *testing.T) {
	var calls []string
	tier := func(name string, kind domain.MediaKind, ok bool) Tier {
		return func(context.Context, Probe) (domain.MediaKind, bool) {
			calls = append(calls, name)
			return kind, ok
		}
	}
	kind, ok := FirstMatch(
		tier("a", "", false),
		tier("b", domain.MediaKindVideo, true),
		tier("c", domain.MediaKindGIF, true),
	)(context.Background(), Probe{})
	assert.True(t, ok)
	assert.Equal(t, domain.MediaKindVideo, kind)
	assert.Equal(t, []string{"a", "b"}, calls)
}
