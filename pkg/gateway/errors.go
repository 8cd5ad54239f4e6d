package gateway

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds reported by the gateway. They double as the failure kinds of a
// submission.
const (
	KindSessionCreate    = "SessionCreateError"
	KindMessageSend      = "MessageSendError"
	KindAttachmentUpload = "AttachmentUploadError"
)

// SessionCreateError is returned when POST /sessions fails or yields no id.
type SessionCreateError struct {
	StatusCode int
	Err        error
}

func (e *SessionCreateError) Error() string {
	return formatGatewayError("create session", e.StatusCode, e.Err)
}

func (e *SessionCreateError) Unwrap() error { return e.Err }
func (e *SessionCreateError) Cause() error  { return e.Err }

// MessageSendError is returned when POST /messages does not answer 201 or
// the transport fails.
type MessageSendError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *MessageSendError) Error() string {
	return formatGatewayError("send message", e.StatusCode, e.Err)
}

func (e *MessageSendError) Unwrap() error { return e.Err }
func (e *MessageSendError) Cause() error  { return e.Err }

// AttachmentUploadError is returned when the upload request could not be
// built or did not complete.
type AttachmentUploadError struct {
	Name string
	Err  error
}

func (e *AttachmentUploadError) Error() string {
	op := "upload attachment"
	if e.Name != "" {
		op = fmt.Sprintf("upload attachment %q", e.Name)
	}
	return formatGatewayError(op, 0, e.Err)
}

func (e *AttachmentUploadError) Unwrap() error { return e.Err }
func (e *AttachmentUploadError) Cause() error  { return e.Err }

// ErrorKind maps err to one of the Kind* constants, or "" when err is nil or
// not a gateway error.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var sce *SessionCreateError
	if errors.As(err, &sce) {
		return KindSessionCreate
	}
	var mse *MessageSendError
	if errors.As(err, &mse) {
		return KindMessageSend
	}
	var aue *AttachmentUploadError
	if errors.As(err, &aue) {
		return KindAttachmentUpload
	}
	return ""
}

func formatGatewayError(op string, status int, err error) string {
	switch {
	case status != 0 && err != nil:
		return fmt.Sprintf("%s: unexpected status %d: %v", op, status, err)
	case status != 0:
		return fmt.Sprintf("%s: unexpected status %d", op, status)
	case err != nil:
		return fmt.Sprintf("%s: %v", op, err)
	default:
		return op + ": failed"
	}
}
