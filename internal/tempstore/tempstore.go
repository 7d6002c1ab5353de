// Package tempstore stages uploads on disk for the lifetime of one send.
package tempstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const scopePrefix = "upload-"

// ErrReleased is returned when staging into a scope that has already been removed.
var ErrReleased = errors.New("tempstore: scope released")

// Store hands out per-request scopes under a root directory.
type Store struct {
	root string
}

// New creates a store rooted at dir. An empty dir means the OS temp directory.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "tgrelay")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create temp root: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the root directory.
func (s *Store) Root() string {
	return s.root
}

// NewScope creates a uniquely named directory holding one batch of uploads.
// The returned scope starts with one reference owned by the caller.
func (s *Store) NewScope() (*Scope, error) {
	dir := filepath.Join(s.root, scopePrefix+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create scope: %w", err)
	}
	return &Scope{dir: dir, refs: 1}, nil
}

// Handle is a staged file.
type Handle struct {
	Path string
	Name string
	Size int64
}

// Open opens the staged file for reading.
func (h *Handle) Open() (*os.File, error) {
	return os.Open(h.Path)
}

// Scope owns the files staged for one request. It is reference counted: the
// directory is removed when the last holder releases it.
type Scope struct {
	mu      sync.Mutex
	dir     string
	refs    int
	removed bool
	handles []*Handle
}

// Dir returns the scope directory.
func (s *Scope) Dir() string {
	return s.dir
}

// Handles returns the staged files in staging order.
func (s *Scope) Handles() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Handle, len(s.handles))
	copy(out, s.handles)
	return out
}

// Stage copies r into the scope under a unique name derived from suggestedName.
func (s *Scope) Stage(r io.Reader, suggestedName string) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return nil, ErrReleased
	}

	name := sanitize(suggestedName)
	path := filepath.Join(s.dir, uuid.NewString()+"-"+name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create staged file: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write staged file: %w", err)
	}

	h := &Handle{Path: path, Name: name, Size: n}
	s.handles = append(s.handles, h)
	return h, nil
}

// Retain adds a reference. Every Retain must be paired with a Release.
func (s *Scope) Retain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs++
}

// Release drops a reference and removes the directory when none are left.
func (s *Scope) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return nil
	}
	s.refs--
	if s.refs > 0 {
		return nil
	}
	s.removed = true
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove scope: %w", err)
	}
	return nil
}

// Released reports whether the scope directory has been removed.
func (s *Scope) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removed
}

func sanitize(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == 0:
			return '_'
		case r < 0x20:
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	if len(name) > 128 {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = name[:128-len(ext)] + ext
	}
	return name
}
