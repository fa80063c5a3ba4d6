// Package apitest runs an in-process stand-in for the daycare REST API. It
// speaks the same paths, paging parameters and NestJS error bodies as the real
// backend, so clients can be exercised end to end in tests.
package apitest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultTokenTTL = time.Hour
	maxBodyBytes    = 1 << 20
)

type RecordedRequest struct {
	Method        string
	Path          string
	Query         url.Values
	Body          map[string]interface{}
	Authorization string
}

type failure struct {
	status int
	body   string
}

type account struct {
	hash []byte
	user map[string]interface{}
}

type collection struct {
	order   []string
	records map[string]map[string]interface{}
}

type Server struct {
	srv      *httptest.Server
	secret   []byte
	tokenTTL time.Duration

	mu         sync.Mutex
	accounts   map[string]account
	revoked    map[string]struct{}
	data       map[string]*collection
	bareArray  map[string]bool
	omitTotal  map[string]bool
	failures   map[string][]failure
	requests   []RecordedRequest
	loginReply map[string]interface{}
}

func NewServer(tb testing.TB) *Server {
	tb.Helper()

	s := &Server{
		secret:    []byte("apitest-secret"),
		tokenTTL:  defaultTokenTTL,
		accounts:  make(map[string]account),
		revoked:   make(map[string]struct{}),
		data:      make(map[string]*collection),
		bareArray: make(map[string]bool),
		omitTotal: make(map[string]bool),
		failures:  make(map[string][]failure),
	}
	s.srv = httptest.NewServer(s.routes())
	tb.Cleanup(s.srv.Close)
	return s
}

// APIURL is the base the client should be configured with.
func (s *Server) APIURL() string {
	return s.srv.URL + "/api"
}

func (s *Server) Close() {
	s.srv.Close()
}

func (s *Server) SetTokenTTL(ttl time.Duration) {
	s.mu.Lock()
	s.tokenTTL = ttl
	s.mu.Unlock()
}

// AddUser registers a login. user is the profile the backend returns.
func (s *Server) AddUser(tb testing.TB, email, password string, user map[string]interface{}) {
	tb.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		tb.Fatalf("hash password: %v", err)
	}

	s.mu.Lock()
	s.accounts[email] = account{hash: hash, user: user}
	s.mu.Unlock()
}

// OverrideLoginReply makes every successful login answer with reply verbatim.
func (s *Server) OverrideLoginReply(reply map[string]interface{}) {
	s.mu.Lock()
	s.loginReply = reply
	s.mu.Unlock()
}

func (s *Server) Seed(resource string, records ...map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collection(resource)
	for _, record := range records {
		id := idOf(record)
		if id == "" {
			id = uuid.NewString()
			record["id"] = id
		}
		if _, exists := col.records[id]; !exists {
			col.order = append(col.order, id)
		}
		col.records[id] = record
	}
}

// ServeBareArray makes list responses for resource a plain JSON array.
func (s *Server) ServeBareArray(resource string) {
	s.mu.Lock()
	s.bareArray[resource] = true
	s.mu.Unlock()
}

// OmitTotal drops meta.total from list responses for resource.
func (s *Server) OmitTotal(resource string) {
	s.mu.Lock()
	s.omitTotal[resource] = true
	s.mu.Unlock()
}

// FailNext queues one canned error response for method+path (path without /api).
func (s *Server) FailNext(method, path string, status int, body string) {
	s.mu.Lock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], failure{status: status, body: body})
	s.mu.Unlock()
}

// RevokeAll invalidates every token issued so far.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	s.secret = []byte(uuid.NewString())
	s.mu.Unlock()
}

func (s *Server) Record(resource, id string) (map[string]interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.data[resource]
	if !ok {
		return nil, false
	}
	record, ok := col.records[id]
	return record, ok
}

func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

func (s *Server) LastRequest() RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return RecordedRequest{}
	}
	return s.requests[len(s.requests)-1]
}

// IssueToken signs an access token the server will accept.
func (s *Server) IssueToken(subject string, ttl time.Duration) string {
	s.mu.Lock()
	secret := s.secret
	s.mu.Unlock()

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		SID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		panic(err)
	}
	return signed
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recordRequests)
	r.Use(s.cannedFailures)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/profile", s.handleProfile)

			r.Get("/{resource}", s.handleList)
			r.Post("/{resource}", s.handleCreate)
			r.Get("/{resource}/{id}", s.handleGetOne)
			r.Patch("/{resource}/{id}", s.handleUpdate)
			r.Delete("/{resource}/{id}", s.handleDelete)
		})
	})

	return r
}

func (s *Server) recordRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(raw))

		var body map[string]interface{}
		if len(bytes.TrimSpace(raw)) > 0 {
			_ = json.Unmarshal(raw, &body)
		}

		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.Query(),
			Body:          body,
			Authorization: r.Header.Get("Authorization"),
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) cannedFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + trimAPIPrefix(r.URL.Path)

		s.mu.Lock()
		queue := s.failures[key]
		var f *failure
		if len(queue) > 0 {
			f = &queue[0]
			s.failures[key] = queue[1:]
		}
		s.mu.Unlock()

		if f != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(f.body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) collection(resource string) *collection {
	col, ok := s.data[resource]
	if !ok {
		col = &collection{records: make(map[string]map[string]interface{})}
		s.data[resource] = col
	}
	return col
}

func trimAPIPrefix(path string) string {
	const prefix = "/api"
	if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
		return path[len(prefix):]
	}
	return path
}

func idOf(record map[string]interface{}) string {
	switch id := record["id"].(type) {
	case string:
		return id
	case float64:
		return jsonNumber(id)
	case int:
		return jsonNumber(float64(id))
	default:
		return ""
	}
}

func jsonNumber(v float64) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"statusCode": status,
		"message":    message,
		"error":      http.StatusText(status),
	})
}
