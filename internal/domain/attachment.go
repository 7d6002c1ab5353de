package domain

import (
	"bytes"
	"io"
)

// Attachment describes one outbound upload. Name and MimeType are declared by the
// uploader and are not trusted.
type Attachment struct {
	Name     string
	MimeType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// BytesAttachment builds an attachment backed by an in-memory buffer.
func BytesAttachment(name, mimeType string, data []byte) Attachment {
	return Attachment{
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
