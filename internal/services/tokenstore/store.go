package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/ivankudzin/daycare-admin/internal/domain/model"
	"github.com/ivankudzin/daycare-admin/internal/infra/logger"
)

const (
	DefaultTokenKey = "refine-auth"
	DefaultUserKey  = "user"
)

var ErrInvalidInput = errors.New("invalid input")

type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Purger drops everything a component cached for the current session.
type Purger interface {
	Purge(ctx context.Context) error
}

type Options struct {
	TokenKey string
	UserKey  string
	Logger   *zap.Logger
}

type Store struct {
	kv       KV
	tokenKey string
	userKey  string
	log      *zap.Logger
	now      func() time.Time
	parser   *jwt.Parser

	purgersMu sync.RWMutex
	purgers   []Purger
}

func New(kv KV, opts Options) *Store {
	if strings.TrimSpace(opts.TokenKey) == "" {
		opts.TokenKey = DefaultTokenKey
	}
	if strings.TrimSpace(opts.UserKey) == "" {
		opts.UserKey = DefaultUserKey
	}

	return &Store{
		kv:       kv,
		tokenKey: opts.TokenKey,
		userKey:  opts.UserKey,
		log:      logger.OrNop(opts.Logger),
		now:      time.Now,
		parser:   jwt.NewParser(),
	}
}

// AddPurger registers p to be purged on every Clear.
func (s *Store) AddPurger(p Purger) {
	if p == nil {
		return
	}
	s.purgersMu.Lock()
	s.purgers = append(s.purgers, p)
	s.purgersMu.Unlock()
}

func (s *Store) SetToken(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrInvalidInput
	}
	if err := s.kv.Set(ctx, s.tokenKey, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

func (s *Store) GetToken(ctx context.Context) (string, bool, error) {
	token, ok, err := s.kv.Get(ctx, s.tokenKey)
	if err != nil {
		return "", false, fmt.Errorf("load token: %w", err)
	}
	if !ok || strings.TrimSpace(token) == "" {
		return "", false, nil
	}
	return token, true, nil
}

func (s *Store) SetUser(ctx context.Context, user model.User) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	if err := s.kv.Set(ctx, s.userKey, string(payload)); err != nil {
		return fmt.Errorf("store user: %w", err)
	}
	return nil
}

// GetUser treats an undecodable blob as absent.
func (s *Store) GetUser(ctx context.Context) (model.User, bool, error) {
	raw, ok, err := s.kv.Get(ctx, s.userKey)
	if err != nil {
		return model.User{}, false, fmt.Errorf("load user: %w", err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return model.User{}, false, nil
	}

	var user model.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		s.log.Warn("stored user is not valid json, ignoring", zap.Error(err))
		return model.User{}, false, nil
	}
	return user, true, nil
}

func (s *Store) SetSession(ctx context.Context, session model.Session) error {
	if err := s.SetToken(ctx, session.AccessToken); err != nil {
		return err
	}
	if err := s.SetUser(ctx, session.User); err != nil {
		return err
	}
	return nil
}

// Clear removes the session keys and purges every registered Purger. All steps
// run even when one of them fails.
func (s *Store) Clear(ctx context.Context) error {
	var errs []error
	if err := s.kv.Delete(ctx, s.tokenKey, s.userKey); err != nil {
		errs = append(errs, fmt.Errorf("delete session keys: %w", err))
	}

	s.purgersMu.RLock()
	purgers := append([]Purger(nil), s.purgers...)
	s.purgersMu.RUnlock()

	for _, p := range purgers {
		if err := p.Purge(ctx); err != nil {
			errs = append(errs, fmt.Errorf("purge: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.log.Error("clear session", zap.Error(err))
		return err
	}
	return nil
}

// IsExpired reads the exp claim from the payload segment only; the header and
// signature are not inspected. Tokens that are not three segments, whose
// payload cannot be decoded, or that carry no exp count as expired.
func (s *Store) IsExpired(token string) bool {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return true
	}

	payload, err := s.parser.DecodeSegment(parts[1])
	if err != nil {
		return true
	}

	claims := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return true
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return exp.Time.Before(s.now())
}
