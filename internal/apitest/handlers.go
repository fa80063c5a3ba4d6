package apitest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type tokenClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

type claimsContextKey struct{}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[strings.ToLower(strings.TrimSpace(body.Email))]
	if !ok {
		acc, ok = s.accounts[body.Email]
	}
	override := s.loginReply
	ttl := s.tokenTTL
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(acc.hash, []byte(body.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if override != nil {
		writeJSON(w, http.StatusOK, override)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accessToken": s.IssueToken(idOf(acc.user), ttl),
		"user":        acc.user,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, _ := r.Context().Value(claimsContextKey{}).(*tokenClaims)
	if claims != nil {
		s.mu.Lock()
		s.revoked[claims.SID] = struct{}{}
		s.mu.Unlock()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	claims, _ := r.Context().Value(claimsContextKey{}).(*tokenClaims)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if claims != nil && idOf(acc.user) == claims.Subject {
			writeJSON(w, http.StatusOK, acc.user)
			return
		}
	}
	writeError(w, http.StatusUnauthorized, "Unauthorized")
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resource")
	query := r.URL.Query()

	s.mu.Lock()
	col := s.collection(resource)
	items := make([]map[string]interface{}, 0, len(col.order))
	for _, id := range col.order {
		items = append(items, col.records[id])
	}
	bare := s.bareArray[resource]
	omitTotal := s.omitTotal[resource]
	s.mu.Unlock()

	if strings.EqualFold(query.Get("order"), "DESC") {
		reversed := make([]map[string]interface{}, len(items))
		for i := range items {
			reversed[len(items)-1-i] = items[i]
		}
		items = reversed
	}

	total := len(items)
	page, take := atoiOr(query.Get("page"), 0), atoiOr(query.Get("take"), 0)
	if page > 0 && take > 0 {
		start := (page - 1) * take
		if start > len(items) {
			start = len(items)
		}
		end := start + take
		if end > len(items) {
			end = len(items)
		}
		items = items[start:end]
	}

	if bare {
		writeJSON(w, http.StatusOK, items)
		return
	}

	meta := map[string]interface{}{"page": page, "take": take}
	if !omitTotal {
		meta["total"] = total
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": items, "meta": meta})
}

func (s *Server) handleGetOne(w http.ResponseWriter, r *http.Request) {
	record, ok := s.Record(chi.URLParam(r, "resource"), chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Record not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body == nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	body["id"] = uuid.NewString()
	s.Seed(chi.URLParam(r, "resource"), body)
	writeJSON(w, http.StatusCreated, body)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	resource, id := chi.URLParam(r, "resource"), chi.URLParam(r, "id")

	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	col := s.collection(resource)
	record, ok := col.records[id]
	if ok {
		for k, v := range body {
			record[k] = v
		}
		record["id"] = id
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Record not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	resource, id := chi.URLParam(r, "resource"), chi.URLParam(r, "id")

	s.mu.Lock()
	col := s.collection(resource)
	_, ok := col.records[id]
	if ok {
		delete(col.records, id)
		for i, existing := range col.order {
			if existing == id {
				col.order = append(col.order[:i], col.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Record not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"affected": 1})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.SplitN(strings.TrimSpace(r.Header.Get("Authorization")), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		s.mu.Lock()
		secret := s.secret
		s.mu.Unlock()

		claims := &tokenClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(_ *jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
		if err != nil || token == nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		s.mu.Lock()
		_, revoked := s.revoked[claims.SID]
		s.mu.Unlock()
		if revoked {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func atoiOr(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}
