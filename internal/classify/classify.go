// Package classify decides the media kind of an attachment.
//
// The platform does not reliably label animated images, so classification runs a
// fixed list of tiers and takes the first positive answer. A tier that cannot decide
// (including one that hits an I/O error) simply yields to the next tier.
package classify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/xiaot623/tgrelay/internal/domain"
)

const (
	gifExt     = ".gif"
	gifMime    = "image/gif"
	gifKeyword = "gif"
	headerSize = 6
)

var gifMagic = [][]byte{[]byte("GIF87a"), []byte("GIF89a")}

// Probe is everything known about an attachment when it is classified.
type Probe struct {
	DeclaredName string
	DeclaredMime string
	// StoredPath is the path or file name the platform or the temp store resolved.
	StoredPath string
	// LocalFile, URL and Header are byte sources for the magic-number check.
	LocalFile string
	URL       string
	Header    []byte
	Slot      domain.Slot
}

// Tier is one classification step. ok=false means "no opinion".
type Tier func(ctx context.Context, p Probe) (kind domain.MediaKind, ok bool)

// Classifier applies tiers in order and falls back to the transport slot.
type Classifier struct {
	tiers  []Tier
	client *http.Client
	logger zerolog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithHTTPClient sets the client used to peek remote headers.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Classifier) {
		c.client = client
	}
}

// WithLogger sets the logger used for swallowed probe errors.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

// New creates a classifier with the default tier order.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		client: &http.Client{Timeout: 5 * time.Second},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tiers = []Tier{
		ByDeclaredName,
		ByDeclaredMime,
		ByStoredPath,
		ByKeyword,
		c.ByHeader,
	}
	return c
}

// Classify returns the media kind for p. It never fails.
func (c *Classifier) Classify(ctx context.Context, p Probe) domain.MediaKind {
	if kind, ok := FirstMatch(c.tiers...)(ctx, p); ok {
		return kind
	}
	return p.Slot.Kind()
}

// FirstMatch composes tiers so that the first positive answer wins.
func FirstMatch(tiers ...Tier) Tier {
	return func(ctx context.Context, p Probe) (domain.MediaKind, bool) {
		for _, tier := range tiers {
			if kind, ok := tier(ctx, p); ok {
				return kind, true
			}
		}
		return "", false
	}
}

// ByDeclaredName matches a declared file name ending in .gif.
func ByDeclaredName(_ context.Context, p Probe) (domain.MediaKind, bool) {
	return domain.MediaKindGIF, hasGIFExt(p.DeclaredName)
}

// ByDeclaredMime matches a declared mimetype containing image/gif.
func ByDeclaredMime(_ context.Context, p Probe) (domain.MediaKind, bool) {
	return domain.MediaKindGIF, strings.Contains(strings.ToLower(p.DeclaredMime), gifMime)
}

// ByStoredPath matches a resolved path ending in .gif.
func ByStoredPath(_ context.Context, p Probe) (domain.MediaKind, bool) {
	return domain.MediaKindGIF, hasGIFExt(p.StoredPath)
}

// ByKeyword matches "gif" anywhere in the path or declared name. It is loose on purpose
// to catch names the platform has mangled.
func ByKeyword(_ context.Context, p Probe) (domain.MediaKind, bool) {
	hay := strings.ToLower(p.StoredPath + "\x00" + p.DeclaredName)
	return domain.MediaKindGIF, strings.Contains(hay, gifKeyword)
}

// ByHeader checks the first bytes of whichever byte source the probe carries.
func (c *Classifier) ByHeader(ctx context.Context, p Probe) (domain.MediaKind, bool) {
	header := p.Header
	if len(header) < headerSize && p.LocalFile != "" {
		h, err := peekFile(p.LocalFile)
		if err != nil {
			c.logger.Debug().Err(err).Str("path", p.LocalFile).Msg("header peek failed")
		}
		header = h
	}
	if len(header) < headerSize && p.URL != "" {
		h, err := c.peekURL(ctx, p.URL)
		if err != nil {
			c.logger.Debug().Err(err).Msg("remote header peek failed")
		}
		header = h
	}
	return domain.MediaKindGIF, IsGIFHeader(header)
}

// IsGIFHeader reports whether b starts with a GIF magic number.
func IsGIFHeader(b []byte) bool {
	if len(b) < headerSize {
		return false
	}
	for _, magic := range gifMagic {
		if bytes.Equal(b[:headerSize], magic) {
			return true
		}
	}
	return false
}

func hasGIFExt(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), gifExt)
}

func peekFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadHeader(f)
}

func (c *Classifier) peekURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", headerSize-1))
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return ReadHeader(resp.Body)
}

// ReadHeader reads up to the first 6 bytes of r.
func ReadHeader(r io.Reader) ([]byte, error) {
	buf := make([]byte, headerSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:n], nil
}
