package apihttp

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	headerRequestID     = "X-Request-ID"
	headerAuthorization = "Authorization"
)

type RequestMeta struct {
	ID        string
	StartedAt time.Time
}

type requestMetaKeyType struct{}

type publicRequestKeyType struct{}

var (
	requestMetaKey   requestMetaKeyType
	publicRequestKey publicRequestKeyType
)

func RequestMetaFromContext(ctx context.Context) (RequestMeta, bool) {
	if ctx == nil {
		return RequestMeta{}, false
	}
	meta, ok := ctx.Value(requestMetaKey).(RequestMeta)
	return meta, ok
}

func withPublic(ctx context.Context, public bool) context.Context {
	return context.WithValue(ctx, publicRequestKey, public)
}

func isPublic(ctx context.Context) bool {
	public, _ := ctx.Value(publicRequestKey).(bool)
	return public
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// withRequestMeta stamps every outbound call with a request id and its dispatch time.
func withRequestMeta(next http.RoundTripper, now func() time.Time) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		meta, ok := RequestMetaFromContext(req.Context())
		if !ok {
			meta = RequestMeta{ID: uuid.NewString(), StartedAt: now()}
		}

		ctx := context.WithValue(req.Context(), requestMetaKey, meta)
		out := req.Clone(ctx)
		out.Header.Set(headerRequestID, meta.ID)
		return next.RoundTrip(out)
	})
}

func withBearerToken(next http.RoundTripper, tokens TokenStore, log *zap.Logger) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if tokens == nil || isPublic(req.Context()) {
			return next.RoundTrip(req)
		}

		token, ok, err := tokens.GetToken(req.Context())
		if err != nil {
			log.Warn("read access token", zap.Error(err))
		}
		if !ok {
			return next.RoundTrip(req)
		}

		out := req.Clone(req.Context())
		out.Header.Set(headerAuthorization, "Bearer "+token)
		return next.RoundTrip(out)
	})
}

func withLogging(next http.RoundTripper, log *zap.Logger, now func() time.Time) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		resp, err := next.RoundTrip(req)

		fields := []zap.Field{
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
		}
		if meta, ok := RequestMetaFromContext(req.Context()); ok {
			fields = append(fields,
				zap.String("request_id", meta.ID),
				zap.Duration("elapsed", now().Sub(meta.StartedAt)),
			)
		}

		switch {
		case err != nil:
			log.Warn("api request failed", append(fields, zap.Error(err))...)
		case resp.StatusCode >= 400:
			log.Warn("api request rejected", append(fields, zap.Int("status", resp.StatusCode))...)
		default:
			log.Debug("api request", append(fields, zap.Int("status", resp.StatusCode))...)
		}
		return resp, err
	})
}
