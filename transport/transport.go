package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"robot-console/message"
	"robot-console/models"
)

// TransportType 정의
type TransportType string

const (
	TransportTypeMQTT TransportType = "mqtt"
	TransportTypeHTTP TransportType = "http"
)

// MessageTransport 인터페이스 - 목적지로 바이트 페이로드 전송
type MessageTransport interface {
	Send(ctx context.Context, destination string, payload []byte) error
	GetTransportType() TransportType
	Close() error
}

// RobotAPI is the upstream robot API. Methods return raw response bodies;
// decoding and URL normalization belong to the converter.
type RobotAPI interface {
	List(ctx context.Context, filter models.ListFilter) ([]byte, error)
	Get(ctx context.Context, robotID int64) ([]byte, error)
	Create(ctx context.Context, payload *message.Payload) ([]byte, error)
	Update(ctx context.Context, robotID int64, payload *message.Payload) ([]byte, error)
	Delete(ctx context.Context, robotID int64) error
	Download(ctx context.Context, robotID, fileID int64) (*Stream, error)
}

// Stream is a file download in progress. The caller closes Body.
type Stream struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	Filename      string
}

// Error is the single typed failure of a robot API call. Message is safe to
// show to a user.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: upstream returned %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsClientError reports whether the upstream rejected the request itself
// (4xx) rather than failing to process it.
func (e *Error) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var terr *Error
	return errors.As(err, &terr) && terr.StatusCode == http.StatusNotFound
}

// serverError is the error body shape of the robot API.
type serverError struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// newStatusError builds an Error from a non-2xx response body, preferring
// the server's own message.
func newStatusError(op string, status int, body []byte) *Error {
	msg := strings.TrimSpace(http.StatusText(status))

	var se serverError
	if err := json.Unmarshal(body, &se); err == nil {
		if se.Message != "" {
			msg = se.Message
		}
		if len(se.Errors) > 0 {
			var details []string
			for field, errs := range se.Errors {
				details = append(details, fmt.Sprintf("%s: %s", field, strings.Join(errs, ", ")))
			}
			sort.Strings(details)
			msg = msg + " (" + strings.Join(details, "; ") + ")"
		}
	}
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", status)
	}
	return &Error{Op: op, StatusCode: status, Message: msg}
}
