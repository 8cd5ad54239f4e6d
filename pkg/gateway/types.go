package gateway

import (
	"bytes"
	"context"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Gateway is the network-facing facade of the assistant backend. Each method
// is exactly one round trip and is never retried.
type Gateway interface {
	CreateSession(ctx context.Context, titleSeed string) (Session, error)
	SendText(ctx context.Context, sessionID string, text string) (BotReply, error)
	UploadAttachment(ctx context.Context, sessionID string, attachment *Attachment) (Ack, error)
}

// Session identifies a server-side conversation.
type Session struct {
	ID    string `json:"_id"`
	Title string `json:"title,omitempty"`
}

// BotReply is the assistant's answer to a posted message. Raw is set when the
// backend did not answer with well-formed JSON and Content holds the body
// verbatim.
type BotReply struct {
	Content    string
	Raw        bool
	StatusCode int
}

// Ack reports completion of an upload. A non-2xx status is not treated as a
// failure, it is only reported.
type Ack struct {
	StatusCode int
	Accepted   bool
}

// Attachment is a file-like blob staged for upload.
type Attachment struct {
	Name        string
	ContentType string
	Size        int64

	open func() (io.ReadCloser, error)
}

func (a *Attachment) Open() (io.ReadCloser, error) {
	if a == nil || a.open == nil {
		return nil, errors.New("attachment has no content")
	}
	return a.open()
}

// AttachmentFromFile stages a file on disk. The file is opened lazily, at
// upload time.
func AttachmentFromFile(path string) (*Attachment, error) {
	if path == "" {
		return nil, errors.New("attachment path is empty")
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "stat attachment %s", path)
	}
	if st.IsDir() {
		return nil, errors.Errorf("attachment %s is a directory", path)
	}
	name := filepath.Base(path)
	return &Attachment{
		Name:        name,
		ContentType: contentTypeFor(name),
		Size:        st.Size(),
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

func AttachmentFromBytes(name string, data []byte) *Attachment {
	buf := append([]byte(nil), data...)
	return &Attachment{
		Name:        name,
		ContentType: contentTypeFor(name),
		Size:        int64(len(buf)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(buf)), nil
		},
	}
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
