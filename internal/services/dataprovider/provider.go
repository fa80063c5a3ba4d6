package dataprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ivankudzin/daycare-admin/internal/domain/enums"
	"github.com/ivankudzin/daycare-admin/internal/domain/model"
	"github.com/ivankudzin/daycare-admin/internal/infra/logger"
	"github.com/ivankudzin/daycare-admin/internal/transport/apihttp"
)

type API interface {
	Do(ctx context.Context, req apihttp.Request, out interface{}) error
	BaseURL() string
}

type Provider struct {
	api   API
	cache *ResponseCache
	log   *zap.Logger
}

// New builds a provider over api. cache may be nil.
func New(api API, cache *ResponseCache, log *zap.Logger) *Provider {
	return &Provider{api: api, cache: cache, log: logger.OrNop(log)}
}

func (p *Provider) APIURL() string {
	return p.api.BaseURL()
}

func (p *Provider) GetList(ctx context.Context, params ListParams) (model.ListResult, error) {
	resource, err := resourcePath(params.Resource)
	if err != nil {
		return model.ListResult{}, err
	}

	if len(params.Filters) > 0 {
		p.log.Debug("list filters are not sent to the backend",
			zap.String("resource", resource),
			zap.Int("filters", len(params.Filters)),
		)
	}

	query := listQuery(params)
	raw, err := p.read(ctx, resource, "/"+resource, query)
	if err != nil {
		return model.ListResult{}, err
	}

	result, err := normalizeList(raw)
	if err != nil {
		return model.ListResult{}, fmt.Errorf("list %s: %w", resource, err)
	}
	return result, nil
}

func (p *Provider) GetOne(ctx context.Context, resource enums.Resource, id string) (model.OneResult, error) {
	path, err := recordPath(resource, id)
	if err != nil {
		return model.OneResult{}, err
	}

	raw, err := p.read(ctx, resourceName(resource), path, nil)
	if err != nil {
		return model.OneResult{}, err
	}

	var record model.Record
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &record); err != nil {
			return model.OneResult{}, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return model.OneResult{Data: record}, nil
}

func (p *Provider) Create(ctx context.Context, resource enums.Resource, vars model.Record) (model.OneResult, error) {
	path, err := resourcePath(resource)
	if err != nil {
		return model.OneResult{}, err
	}
	return p.write(ctx, resource, http.MethodPost, "/"+path, preparePayload(vars))
}

func (p *Provider) Update(ctx context.Context, resource enums.Resource, id string, vars model.Record) (model.OneResult, error) {
	path, err := recordPath(resource, id)
	if err != nil {
		return model.OneResult{}, err
	}
	return p.write(ctx, resource, http.MethodPatch, path, preparePayload(vars))
}

// DeleteOne acknowledges with the id it was given; the response body is ignored.
func (p *Provider) DeleteOne(ctx context.Context, resource enums.Resource, id string) (model.DeleteResult, error) {
	path, err := recordPath(resource, id)
	if err != nil {
		return model.DeleteResult{}, err
	}

	if err := p.api.Do(ctx, apihttp.Request{Method: http.MethodDelete, Path: path}, nil); err != nil {
		return model.DeleteResult{}, err
	}
	p.invalidate(resourceName(resource))

	return model.DeleteResult{Data: model.Record{"id": id}}, nil
}

// Custom passes method, payload and query through unchanged. Relative URLs are
// resolved against the api base; absolute ones must live under it.
func (p *Provider) Custom(ctx context.Context, params CustomParams) (CustomResult, error) {
	target := strings.TrimSpace(params.URL)
	if target == "" {
		return CustomResult{}, fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if isAbsolute(target) && !underBase(target, p.api.BaseURL()) {
		return CustomResult{}, fmt.Errorf("%w: %s", ErrForeignURL, target)
	}

	method := strings.ToUpper(strings.TrimSpace(params.Method))
	if method == "" {
		method = http.MethodGet
	}

	var data interface{}
	if err := p.api.Do(ctx, apihttp.Request{
		Method: method,
		Path:   target,
		Query:  params.Query,
		Body:   params.Payload,
	}, &data); err != nil {
		return CustomResult{}, err
	}

	if method != http.MethodGet && method != http.MethodHead {
		p.invalidateTarget(ctx, target)
	}
	return CustomResult{Data: data}, nil
}

func (p *Provider) read(ctx context.Context, resource, path string, query url.Values) ([]byte, error) {
	key := cacheKey(path, query)
	if body, ok := p.cache.Get(key); ok {
		p.log.Debug("serving cached response", zap.String("key", key))
		return body, nil
	}

	gen := p.cache.Generation()

	var raw json.RawMessage
	if err := p.api.Do(ctx, apihttp.Request{Method: http.MethodGet, Path: path, Query: query}, &raw); err != nil {
		return nil, err
	}

	stored, err := p.cache.Put(gen, resource, key, raw)
	if err != nil {
		p.log.Warn("cache response", zap.String("key", key), zap.Error(err))
	} else if !stored && p.cache != nil {
		p.log.Debug("cache changed during request, response not cached", zap.String("key", key))
	}
	return raw, nil
}

func (p *Provider) write(ctx context.Context, resource enums.Resource, method, path string, payload model.Record) (model.OneResult, error) {
	var record model.Record
	if err := p.api.Do(ctx, apihttp.Request{Method: method, Path: path, Body: payload}, &record); err != nil {
		return model.OneResult{}, err
	}
	p.invalidate(resourceName(resource))

	return model.OneResult{Data: record}, nil
}

// invalidateTarget drops cached responses for the resource a custom call
// touched, or the whole cache when the resource cannot be told from the URL.
func (p *Provider) invalidateTarget(ctx context.Context, target string) {
	if resource := customResource(target, p.api.BaseURL()); resource != "" {
		p.invalidate(resource)
		return
	}
	if err := p.cache.Purge(ctx); err != nil {
		p.log.Warn("purge cached responses", zap.String("url", target), zap.Error(err))
	}
}

func (p *Provider) invalidate(resource string) {
	if err := p.cache.Invalidate(resource); err != nil {
		p.log.Warn("invalidate cached responses", zap.String("resource", resource), zap.Error(err))
	}
}

func listQuery(params ListParams) url.Values {
	query := url.Values{}

	pg := params.Pagination
	if pg == nil {
		pg = &model.Pagination{}
	}
	if pg.Mode != enums.PaginationModeOff {
		current, pageSize := pg.Current, pg.PageSize
		if current <= 0 {
			current = model.DefaultCurrentPage
		}
		if pageSize <= 0 {
			pageSize = model.DefaultPageSize
		}
		query.Set("page", strconv.Itoa(current))
		query.Set("take", strconv.Itoa(pageSize))
	}

	if len(params.Sorters) > 0 {
		query.Set("order", string(enums.ParseSortOrder(params.Sorters[0].Order)))
	}

	return query
}

// normalizeList accepts a bare array or a {data, meta.total} envelope.
func normalizeList(raw []byte) (model.ListResult, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return model.ListResult{Data: []model.Record{}}, nil
	}

	if trimmed[0] == '[' {
		var records []model.Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return model.ListResult{}, fmt.Errorf("decode list: %w", err)
		}
		return model.ListResult{Data: nonNil(records), Total: len(records)}, nil
	}

	var envelope listEnvelope
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return model.ListResult{}, errors.Join(ErrUnexpectedBody, err)
	}

	total := len(envelope.Data)
	if envelope.Meta != nil && envelope.Meta.Total != nil {
		total = *envelope.Meta.Total
	}
	return model.ListResult{Data: nonNil(envelope.Data), Total: total}, nil
}

// preparePayload shallow-copies vars and forces isActive to a real bool.
func preparePayload(vars model.Record) model.Record {
	payload := make(model.Record, len(vars))
	for k, v := range vars {
		payload[k] = v
	}

	if value, ok := payload[isActiveField]; ok {
		if value == nil {
			delete(payload, isActiveField)
		} else {
			payload[isActiveField] = coerceBool(value)
		}
	}
	return payload
}

func coerceBool(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true
		default:
			return false
		}
	case int:
		return v != 0
	case int32:
		return v != 0
	case int64:
		return v != 0
	case float32:
		return v != 0
	case float64:
		return v != 0
	case json.Number:
		f, err := v.Float64()
		return err == nil && f != 0
	default:
		return false
	}
}

func resourceName(resource enums.Resource) string {
	return strings.Trim(strings.TrimSpace(string(resource)), "/")
}

func resourcePath(resource enums.Resource) (string, error) {
	trimmed := resourceName(resource)
	if trimmed == "" {
		return "", fmt.Errorf("%w: resource is required", ErrInvalidInput)
	}
	return trimmed, nil
}

func recordPath(resource enums.Resource, id string) (string, error) {
	base, err := resourcePath(resource)
	if err != nil {
		return "", err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	return "/" + base + "/" + url.PathEscape(id), nil
}

// customResource returns the first path segment of target relative to the
// api base, or "" when there is none.
func customResource(target, base string) string {
	path := target
	if isAbsolute(target) {
		path = strings.TrimPrefix(target, strings.TrimRight(base, "/"))
	}
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}
	segment := strings.SplitN(strings.Trim(path, "/"), "/", 2)[0]
	unescaped, err := url.PathUnescape(segment)
	if err != nil {
		return ""
	}
	return unescaped
}

func cacheKey(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}

func isAbsolute(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}

func underBase(target, base string) bool {
	base = strings.TrimRight(base, "/")
	return target == base || strings.HasPrefix(target, base+"/") || strings.HasPrefix(target, base+"?")
}

func nonNil(records []model.Record) []model.Record {
	if records == nil {
		return []model.Record{}
	}
	return records
}
