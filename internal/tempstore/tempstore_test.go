package tempstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestScopeStageAndRelease(t *testing.T) {
	s := newTestStore(t)
	scope, err := s.NewScope()
	require.NoError(t, err)

	h, err := scope.Stage(strings.NewReader("payload"), "../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, "passwd", h.Name)
	assert.Equal(t, int64(7), h.Size)
	assert.Equal(t, scope.Dir(), filepath.Dir(h.Path))

	data, err := os.ReadFile(h.Path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, scope.Release())
	assert.True(t, scope.Released())
	_, err = os.Stat(scope.Dir())
	assert.True(t, os.IsNotExist(err))

	_, err = scope.Stage(strings.NewReader("x"), "late.txt")
	assert.ErrorIs(t, err, ErrReleased)
}

func TestScopesDoNotShareNames(t *testing.T) {
	s := newTestStore(t)
	a, err := s.NewScope()
	require.NoError(t, err)
	b, err := s.NewScope()
	require.NoError(t, err)
	defer a.Release()
	defer b.Release()

	assert.NotEqual(t, a.Dir(), b.Dir())
	h1, err := a.Stage(strings.NewReader("1"), "same.jpg")
	require.NoError(t, err)
	h2, err := a.Stage(strings.NewReader("2"), "same.jpg")
	require.NoError(t, err)
	assert.NotEqual(t, h1.Path, h2.Path)
	assert.Len(t, a.Handles(), 2)
}

func TestScopeRetainKeepsFilesUntilLastRelease(t *testing.T) {
	s := newTestStore(t)
	scope, err := s.NewScope()
	require.NoError(t, err)
	h, err := scope.Stage(strings.NewReader("x"), "a.png")
	require.NoError(t, err)

	scope.Retain()
	require.NoError(t, scope.Release())
	_, err = os.Stat(h.Path)
	require.NoError(t, err, "file must survive while a job holds the scope")

	require.NoError(t, scope.Release())
	_, err = os.Stat(h.Path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, scope.Release(), "extra release is a no-op")
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "file", sanitize(""))
	assert.Equal(t, "file", sanitize(".."))
	assert.Equal(t, "b.gif", sanitize(`C:\a\b.gif`))
	long := strings.Repeat("a", 300) + ".jpg"
	got := sanitize(long)
	assert.Len(t, got, 128)
	assert.True(t, strings.HasSuffix(got, ".jpg"))
}

func TestJanitorSweepsOnlyStaleScopes(t *testing.T) {
	s := newTestStore(t)
	stale, err := s.NewScope()
	require.NoError(t, err)
	fresh, err := s.NewScope()
	require.NoError(t, err)
	defer fresh.Release()

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale.Dir(), old, old))
	require.NoError(t, os.Mkdir(filepath.Join(s.Root(), "unrelated"), 0o700))
	require.NoError(t, os.Chtimes(filepath.Join(s.Root(), "unrelated"), old, old))

	j := NewJanitor(s, "", time.Hour, zerolog.Nop())
	assert.True(t, j.Validate())
	assert.Equal(t, 1, j.Sweep())

	_, err = os.Stat(stale.Dir())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh.Dir())
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(s.Root(), "unrelated"))
	assert.NoError(t, err)
}

func TestJanitorRejectsBadSchedule(t *testing.T) {
	j := NewJanitor(newTestStore(t), "not a cron", time.Hour, zerolog.Nop())
	assert.False(t, j.Validate())
}
