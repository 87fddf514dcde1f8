package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"robot-console/message"
	"robot-console/models"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// HTTPTransport talks to the upstream robot API over HTTP.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
	headers map[string]string
	logger  *slog.Logger
}

func NewHTTPTransport(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"Accept":     "application/json",
			"User-Agent": "Robot-Console/1.0",
		},
		logger: logger.With("component", "http_transport"),
	}
}

func (ht *HTTPTransport) GetTransportType() TransportType {
	return TransportTypeHTTP
}

func (ht *HTTPTransport) Close() error {
	ht.client.CloseIdleConnections()
	ht.logger.Debug("Idle connections closed")
	return nil
}

func (ht *HTTPTransport) SetHeader(key, value string) {
	ht.headers[key] = value
}

// SetBearerToken sends token on every request. An empty token is ignored.
func (ht *HTTPTransport) SetBearerToken(token string) {
	if token == "" {
		return
	}
	ht.headers["Authorization"] = fmt.Sprintf("Bearer %s", token)
	ht.logger.Debug("Bearer token configured")
}

// Send posts a raw JSON payload to destination, which is either an absolute
// URL or a path below the API base.
func (ht *HTTPTransport) Send(ctx context.Context, destination string, payload []byte) error {
	_, err := ht.do(ctx, "send", http.MethodPost, ht.resolve(destination), bytes.NewReader(payload), "application/json")
	return err
}

func (ht *HTTPTransport) List(ctx context.Context, filter models.ListFilter) ([]byte, error) {
	endpoint := ht.resolve("robots")
	if q := filter.Query(); len(q) > 0 {
		values := url.Values{}
		for _, kv := range q {
			values.Set(kv[0], kv[1])
		}
		endpoint += "?" + values.Encode()
	}
	return ht.do(ctx, "list robots", http.MethodGet, endpoint, nil, "")
}

func (ht *HTTPTransport) Get(ctx context.Context, robotID int64) ([]byte, error) {
	return ht.do(ctx, "get robot", http.MethodGet, ht.resolve(fmt.Sprintf("robots/%d", robotID)), nil, "")
}

func (ht *HTTPTransport) Create(ctx context.Context, payload *message.Payload) ([]byte, error) {
	return ht.sendPayload(ctx, "create robot", ht.resolve("robots"), payload)
}

// Update posts to the robot resource; the API applies partial-update
// semantics to multipart posts.
func (ht *HTTPTransport) Update(ctx context.Context, robotID int64, payload *message.Payload) ([]byte, error) {
	return ht.sendPayload(ctx, "update robot", ht.resolve(fmt.Sprintf("robots/%d", robotID)), payload)
}

func (ht *HTTPTransport) Delete(ctx context.Context, robotID int64) error {
	_, err := ht.do(ctx, "delete robot", http.MethodDelete, ht.resolve(fmt.Sprintf("robots/%d", robotID)), nil, "")
	return err
}

// Download opens the file stream. On success the caller owns Stream.Body.
func (ht *HTTPTransport) Download(ctx context.Context, robotID, fileID int64) (*Stream, error) {
	const op = "download file"
	endpoint := ht.resolve(fmt.Sprintf("robots/%d/files/%d/download", robotID, fileID))

	req, err := ht.newRequest(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return nil, &Error{Op: op, Message: "failed to build request", Err: err}
	}
	req.Header.Set("Accept", "*/*")

	resp, err := ht.client.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Message: "robot API unreachable", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, newStatusError(op, resp.StatusCode, body)
	}

	stream := &Stream{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		stream.Filename = params["filename"]
	}
	return stream, nil
}

func (ht *HTTPTransport) sendPayload(ctx context.Context, op, endpoint string, payload *message.Payload) ([]byte, error) {
	body, contentType, err := payload.Multipart()
	if err != nil {
		return nil, &Error{Op: op, Message: "failed to encode request", Err: err}
	}
	ht.logger.Debug("Sending multipart payload", "op", op, "fields", payload.Len(), "bytes", body.Len())
	return ht.do(ctx, op, http.MethodPost, endpoint, body, contentType)
}

func (ht *HTTPTransport) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return ht.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (ht *HTTPTransport) newRequest(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	for key, value := range ht.headers {
		req.Header.Set(key, value)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (ht *HTTPTransport) do(ctx context.Context, op, method, endpoint string, body io.Reader, contentType string) ([]byte, error) {
	logger := ht.logger.With("op", op, "method", method, "url", endpoint)
	start := time.Now()

	req, err := ht.newRequest(ctx, method, endpoint, body, contentType)
	if err != nil {
		return nil, &Error{Op: op, Message: "failed to build request", Err: err}
	}

	resp, err := ht.client.Do(req)
	if err != nil {
		logger.Error("Request failed", slog.Any("error", err))
		return nil, &Error{Op: op, Message: "robot API unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		terr := newStatusError(op, resp.StatusCode, raw)
		logger.Warn("Request rejected", "status", resp.StatusCode, "message", terr.Message)
		return nil, terr
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	logger.Debug("Request successful", "status", resp.StatusCode, "duration", time.Since(start))
	return raw, nil
}
