package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, h http.Handler, opts ...Option) *HTTPGateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	g, err := NewHTTPGateway(srv.URL+"/", opts...)
	require.NoError(t, err)
	return g
}

func TestNewHTTPGateway_ValidatesBaseURL(t *testing.T) {
	_, err := NewHTTPGateway("")
	require.Error(t, err)
	_, err = NewHTTPGateway("ftp://example.com")
	require.Error(t, err)

	g, err := NewHTTPGateway("https://api.example.com/v1/")
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com/v1", g.BaseURL())
}

func TestHTTPGateway_CreateSession(t *testing.T) {
	var got map[string]string
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/sessions", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NotEmpty(t, r.Header.Get("X-Request-Id"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"sess-1","title":"Hello"}`))
	}), WithUserID("alice"))

	s, err := g.CreateSession(context.Background(), "Hello")
	require.NoError(t, err)
	require.Equal(t, "sess-1", s.ID)
	require.Equal(t, "Hello", s.Title)
	require.Equal(t, map[string]string{"user_id": "alice", "title": "Hello"}, got)
}

func TestHTTPGateway_CreateSessionFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`},
		{"missing id", http.StatusOK, `{"title":"x"}`},
		{"not json", http.StatusOK, `<html>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			_, err := g.CreateSession(context.Background(), "x")
			require.Error(t, err)
			var sce *SessionCreateError
			require.True(t, errors.As(err, &sce))
			require.Equal(t, KindSessionCreate, ErrorKind(err))
		})
	}
}

func TestHTTPGateway_SendText(t *testing.T) {
	var got map[string]string
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"content":"**hi** there","role":"assistant"}`))
	}))

	reply, err := g.SendText(context.Background(), "sess-1", "Hello")
	require.NoError(t, err)
	require.Equal(t, "**hi** there", reply.Content)
	require.False(t, reply.Raw)
	require.Equal(t, http.StatusCreated, reply.StatusCode)
	require.Equal(t, map[string]string{"session_id": "sess-1", "role": "user", "content": "Hello"}, got)
}

func TestHTTPGateway_SendTextRequiresCreated(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"content":"ok but not created"}`))
	}))

	_, err := g.SendText(context.Background(), "sess-1", "Hello")
	require.Error(t, err)
	var mse *MessageSendError
	require.True(t, errors.As(err, &mse))
	require.Equal(t, http.StatusOK, mse.StatusCode)
	require.Contains(t, mse.Body, "ok but not created")
}

func TestHTTPGateway_SendTextRawFallback(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("# Report\n\nplain markdown"))
	}))

	reply, err := g.SendText(context.Background(), "sess-1", "Hello")
	require.NoError(t, err)
	require.True(t, reply.Raw)
	require.Equal(t, "# Report\n\nplain markdown", reply.Content)
}

func TestHTTPGateway_SendTextTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	g, err := NewHTTPGateway(url, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	_, err = g.SendText(context.Background(), "sess-1", "Hello")
	require.Error(t, err)
	require.Equal(t, KindMessageSend, ErrorKind(err))
}

func TestHTTPGateway_TimeoutMapsToErrorKind(t *testing.T) {
	release := make(chan struct{})
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}), WithTimeout(50*time.Millisecond))
	defer close(release)

	_, err := g.SendText(context.Background(), "sess-1", "Hello")
	require.Error(t, err)
	require.Equal(t, KindMessageSend, ErrorKind(err))
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHTTPGateway_UploadAttachment(t *testing.T) {
	type upload struct {
		sessionID, uploadedBy, filename, contentType, content string
	}
	var got upload
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/attachments/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = f.Close() }()
		b, err := io.ReadAll(f)
		require.NoError(t, err)
		got = upload{
			sessionID:   r.FormValue("session_id"),
			uploadedBy:  r.FormValue("uploaded_by"),
			filename:    hdr.Filename,
			contentType: hdr.Header.Get("Content-Type"),
			content:     string(b),
		}
		w.WriteHeader(http.StatusCreated)
	}))

	att := AttachmentFromBytes("report.csv", []byte("a,b\n1,2\n"))
	ack, err := g.UploadAttachment(context.Background(), "sess-1", att)
	require.NoError(t, err)
	require.True(t, ack.Accepted)
	require.Equal(t, upload{
		sessionID:   "sess-1",
		uploadedBy:  DefaultUserID,
		filename:    "report.csv",
		contentType: att.ContentType,
		content:     "a,b\n1,2\n",
	}, got)
}

func TestHTTPGateway_UploadNonSuccessStatusIsReported(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))

	ack, err := g.UploadAttachment(context.Background(), "sess-1", AttachmentFromBytes("big.bin", []byte{1, 2, 3}))
	require.NoError(t, err)
	require.False(t, ack.Accepted)
	require.Equal(t, http.StatusRequestEntityTooLarge, ack.StatusCode)
}

func TestHTTPGateway_UploadUnreadableAttachment(t *testing.T) {
	var called atomic.Bool
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	}))

	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	a, err := AttachmentFromFile(path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	_, err = g.UploadAttachment(context.Background(), "sess-1", a)
	require.Error(t, err)
	require.Equal(t, KindAttachmentUpload, ErrorKind(err))
	require.False(t, called.Load())
}

func TestAttachmentFromFile(t *testing.T) {
	dir := t.TempDir()
	_, err := AttachmentFromFile(dir)
	require.Error(t, err)

	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# notes"), 0o600))
	a, err := AttachmentFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "notes.md", a.Name)
	require.Equal(t, int64(7), a.Size)

	rc, err := a.Open()
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "# notes", string(b))
}

func TestParseReply(t *testing.T) {
	require.Equal(t, BotReply{Content: "x"}, ParseReply([]byte(`{"content":"x"}`)))
	require.Equal(t, BotReply{}, ParseReply([]byte(`{"other":1}`)))
	require.Equal(t, BotReply{}, ParseReply([]byte(`"just a string"`)))
	require.Equal(t, BotReply{Content: "oops {", Raw: true}, ParseReply([]byte(`oops {`)))
	require.Equal(t, BotReply{Content: "", Raw: true}, ParseReply(nil))
}
