package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultUserID  = "demo-user"
	DefaultTimeout = 60 * time.Second

	maxResponseBytes = 8 << 20
)

// HTTPGateway talks to the assistant backend over its REST surface:
//
//	POST {base}/sessions            {user_id, title}
//	POST {base}/messages            {session_id, role, content}
//	POST {base}/attachments/upload  multipart {session_id, uploaded_by, file}
type HTTPGateway struct {
	baseURL string
	userID  string
	client  *http.Client
	timeout time.Duration
	logger  zerolog.Logger
}

var _ Gateway = &HTTPGateway{}

type Option func(*HTTPGateway)

func WithHTTPClient(c *http.Client) Option {
	return func(g *HTTPGateway) {
		if c != nil {
			g.client = c
		}
	}
}

// WithTimeout bounds every call. Zero or negative keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(g *HTTPGateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithUserID(userID string) Option {
	return func(g *HTTPGateway) {
		if s := strings.TrimSpace(userID); s != "" {
			g.userID = s
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(g *HTTPGateway) {
		g.logger = logger
	}
}

func NewHTTPGateway(baseURL string, opts ...Option) (*HTTPGateway, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway: empty base url")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "gateway: invalid base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("gateway: unsupported base url scheme %q", u.Scheme)
	}

	g := &HTTPGateway{
		baseURL: baseURL,
		userID:  DefaultUserID,
		client:  &http.Client{},
		timeout: DefaultTimeout,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With().Str("component", "gateway").Logger()
	return g, nil
}

func (g *HTTPGateway) BaseURL() string { return g.baseURL }

func (g *HTTPGateway) CreateSession(ctx context.Context, titleSeed string) (Session, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	body, err := json.Marshal(map[string]string{
		"user_id": g.userID,
		"title":   titleSeed,
	})
	if err != nil {
		return Session{}, &SessionCreateError{Err: err}
	}
	status, raw, err := g.postJSON(ctx, "/sessions", body)
	if err != nil {
		return Session{}, &SessionCreateError{Err: err}
	}
	if status < 200 || status > 299 {
		return Session{}, &SessionCreateError{StatusCode: status}
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, &SessionCreateError{Err: errors.Wrap(err, "decode session")}
	}
	s.ID = strings.TrimSpace(s.ID)
	if s.ID == "" {
		return Session{}, &SessionCreateError{Err: errors.New("response carries no _id")}
	}
	if s.Title == "" {
		s.Title = titleSeed
	}
	g.logger.Debug().Str("session_id", s.ID).Msg("created session")
	return s, nil
}

func (g *HTTPGateway) SendText(ctx context.Context, sessionID string, text string) (BotReply, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	body, err := json.Marshal(map[string]string{
		"session_id": sessionID,
		"role":       "user",
		"content":    text,
	})
	if err != nil {
		return BotReply{}, &MessageSendError{Err: err}
	}
	status, raw, err := g.postJSON(ctx, "/messages", body)
	if err != nil {
		return BotReply{}, &MessageSendError{StatusCode: status, Err: err}
	}
	if status != http.StatusCreated {
		return BotReply{}, &MessageSendError{StatusCode: status, Body: snippet(raw)}
	}

	reply := ParseReply(raw)
	reply.StatusCode = status
	if reply.Raw {
		g.logger.Debug().
			Str("session_id", sessionID).
			Int("length", len(raw)).
			Msg("reply is not JSON, using raw body")
	}
	return reply, nil
}

func (g *HTTPGateway) UploadAttachment(ctx context.Context, sessionID string, attachment *Attachment) (Ack, error) {
	if attachment == nil {
		return Ack{}, &AttachmentUploadError{Err: errors.New("no attachment")}
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	body, contentType, err := g.multipartBody(sessionID, attachment)
	if err != nil {
		return Ack{}, &AttachmentUploadError{Name: attachment.Name, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/attachments/upload", body)
	if err != nil {
		return Ack{}, &AttachmentUploadError{Name: attachment.Name, Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	status, _, err := g.do(req)
	if err != nil {
		return Ack{}, &AttachmentUploadError{Name: attachment.Name, Err: err}
	}
	ack := Ack{StatusCode: status, Accepted: status >= 200 && status <= 299}
	if !ack.Accepted {
		g.logger.Warn().
			Str("session_id", sessionID).
			Str("attachment", attachment.Name).
			Int("status", status).
			Msg("upload answered with non-success status")
	}
	return ack, nil
}

func (g *HTTPGateway) multipartBody(sessionID string, attachment *Attachment) (io.Reader, string, error) {
	src, err := attachment.Open()
	if err != nil {
		return nil, "", errors.Wrap(err, "open attachment")
	}
	defer func() { _ = src.Close() }()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("session_id", sessionID); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("uploaded_by", g.userID); err != nil {
		return nil, "", err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(attachment.Name)))
	h.Set("Content-Type", attachment.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, "", errors.Wrap(err, "read attachment")
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (g *HTTPGateway) postJSON(ctx context.Context, path string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return g.do(req)
}

func (g *HTTPGateway) do(req *http.Request) (int, []byte, error) {
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Debug().Err(err).Str("request_id", requestID).Str("path", req.URL.Path).Msg("request failed")
		return 0, nil, errors.Wrapf(err, "POST %s", req.URL.Path)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, errors.Wrap(err, "read response body")
	}
	g.logger.Debug().
		Str("request_id", requestID).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("backend call finished")
	return resp.StatusCode, raw, nil
}

func (g *HTTPGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, g.timeout)
}

// ParseReply interprets a /messages response body. Well-formed JSON yields its
// string "content" field (empty when absent); anything else is returned
// verbatim with Raw set.
func ParseReply(raw []byte) BotReply {
	if !json.Valid(raw) {
		return BotReply{Content: string(raw), Raw: true}
	}
	var payload struct {
		Content any `json:"content"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		// valid JSON but not an object
		return BotReply{}
	}
	s, _ := payload.Content.(string)
	return BotReply{Content: s}
}

func snippet(raw []byte) string {
	const limit = 512
	if len(raw) > limit {
		return string(raw[:limit])
	}
	return string(raw)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
