package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ivankudzin/daycare-admin/internal/domain/enums"
	"github.com/ivankudzin/daycare-admin/internal/infra/logger"
	"github.com/ivankudzin/daycare-admin/internal/notify"
)

const (
	DefaultTimeout  = 30 * time.Second
	maxResponseSize = 8 * 1024 * 1024

	notificationKeySessionExpired = "session-expired"
	notificationKeyNetwork        = "network-error"
)

type TokenStore interface {
	GetToken(ctx context.Context) (string, bool, error)
	Clear(ctx context.Context) error
}

type Notifier interface {
	Notify(n notify.Notification) bool
}

type Options struct {
	Timeout  time.Duration
	Logger   *zap.Logger
	Messages Messages
	// Transport is the innermost round tripper; nil means http.DefaultTransport.
	Transport http.RoundTripper
}

// Request describes one call. Path is relative to the base URL unless it is an
// absolute http(s) URL. Public requests carry no bearer token and a 401 on them
// does not end the session.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
	Public bool
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenStore
	notifier   Notifier
	messages   Messages
	log        *zap.Logger
	now        func() time.Time
}

func NewClient(baseURL string, tokens TokenStore, notifier Notifier, opts Options) (*Client, error) {
	trimmedBaseURL := strings.TrimSpace(baseURL)
	if trimmedBaseURL == "" {
		return nil, &APIError{
			Op:   "create api client",
			Kind: KindInternal,
			Err:  errors.New("api base url is empty"),
		}
	}

	parsed, err := url.Parse(trimmedBaseURL)
	if err != nil {
		return nil, &APIError{Op: "parse api base url", Kind: KindInternal, Err: err}
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, &APIError{
			Op:   "validate api base url",
			Kind: KindInternal,
			Err:  fmt.Errorf("invalid api base url: %s", trimmedBaseURL),
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	log := logger.OrNop(opts.Logger)
	now := time.Now

	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	transport := withRequestMeta(withBearerToken(withLogging(base, log, now), tokens, log), now)

	return &Client{
		baseURL: strings.TrimRight(trimmedBaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		tokens:   tokens,
		notifier: notifier,
		messages: opts.Messages.withDefaults(),
		log:      log,
		now:      now,
	}, nil
}

func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.baseURL
}

// Do performs req and decodes a JSON response into out when out is non-nil.
// Every failure is returned as *APIError and reported to the notifier at most once.
func (c *Client) Do(ctx context.Context, req Request, out interface{}) error {
	if c == nil || c.httpClient == nil {
		return &APIError{
			Op:   "do request",
			Kind: KindInternal,
			Err:  errors.New("api client is not initialized"),
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return &APIError{Op: "marshal request body", Kind: KindInternal, Err: err}
		}
		bodyReader = bytes.NewReader(payload)
	}

	fullURL := c.resolveURL(req.Path, req.Query)
	op := method + " " + req.Path

	ctx = context.WithValue(ctx, requestMetaKey, RequestMeta{ID: uuid.NewString(), StartedAt: c.now()})
	httpReq, err := http.NewRequestWithContext(withPublic(ctx, req.Public), method, fullURL, bodyReader)
	if err != nil {
		return &APIError{Op: "create http request", Kind: KindInternal, Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	if bodyReader != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.transportFailure(op, err)
	}
	defer resp.Body.Close()

	responseBytes, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if readErr != nil {
		return c.transportFailure(op, readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusFailure(ctx, op, req.Public, resp.StatusCode, responseBytes)
	}

	if out == nil || len(bytes.TrimSpace(responseBytes)) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBytes, out); err != nil {
		return &APIError{
			Op:         "decode http response",
			StatusCode: resp.StatusCode,
			Kind:       KindDecode,
			Message:    c.messages.Unknown,
			Err:        err,
		}
	}

	return nil
}

func (c *Client) resolveURL(path string, query url.Values) string {
	trimmed := strings.TrimSpace(path)

	fullURL := trimmed
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		fullURL = c.baseURL + ensureLeadingSlash(trimmed)
	}

	if len(query) > 0 {
		separator := "?"
		if strings.Contains(fullURL, "?") {
			separator = "&"
		}
		fullURL += separator + query.Encode()
	}
	return fullURL
}

func (c *Client) transportFailure(op string, err error) error {
	kind := kindForTransportError(err)
	apiErr := &APIError{Op: op, Kind: kind, Err: err}
	if kind == KindCanceled {
		return apiErr
	}

	apiErr.Message = c.messages.Network
	apiErr.Notified = c.report(notify.Notification{
		Type:    enums.NotificationError,
		Message: c.messages.Network,
		Key:     notificationKeyNetwork,
	})
	return apiErr
}

func (c *Client) statusFailure(ctx context.Context, op string, public bool, status int, body []byte) error {
	if status == http.StatusUnauthorized && !public {
		if c.tokens != nil {
			if err := c.tokens.Clear(ctx); err != nil {
				c.log.Error("clear session after 401", zap.Error(err))
			}
		}

		return &APIError{
			Op:         op,
			StatusCode: status,
			Kind:       KindUnauthorized,
			Message:    c.messages.SessionExpired,
			Notified: c.report(notify.Notification{
				Type:    enums.NotificationError,
				Message: c.messages.SessionExpired,
				Key:     notificationKeySessionExpired,
			}),
			Err: ErrUnauthorized,
		}
	}

	message := decodeErrorEnvelope(body).Text(c.messages.Unknown)
	notification := notify.Notification{
		Type:    enums.NotificationError,
		Message: message,
	}
	if meta, ok := RequestMetaFromContext(ctx); ok {
		notification.Key = meta.ID
	}

	return &APIError{
		Op:         op,
		StatusCode: status,
		Kind:       kindForStatus(status),
		Message:    message,
		Notified:   c.report(notification),
		Err:        errors.New(message),
	}
}

// report returns true only when a subscriber received n.
func (c *Client) report(n notify.Notification) bool {
	if c.notifier == nil {
		return false
	}
	return c.notifier.Notify(n)
}

func ensureLeadingSlash(path string) string {
	if path == "" {
		return "/"
	}
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}
