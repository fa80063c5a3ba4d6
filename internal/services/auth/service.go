package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ivankudzin/daycare-admin/internal/domain/model"
	"github.com/ivankudzin/daycare-admin/internal/infra/logger"
	"github.com/ivankudzin/daycare-admin/internal/pkg/validate"
	"github.com/ivankudzin/daycare-admin/internal/transport/apihttp"
)

const (
	loginPath   = "/auth/login"
	logoutPath  = "/auth/logout"
	profilePath = "/auth/profile"
)

type API interface {
	Do(ctx context.Context, req apihttp.Request, out interface{}) error
}

type SessionStore interface {
	SetSession(ctx context.Context, session model.Session) error
	SetUser(ctx context.Context, user model.User) error
	GetToken(ctx context.Context) (string, bool, error)
	GetUser(ctx context.Context) (model.User, bool, error)
	Clear(ctx context.Context) error
	IsExpired(token string) bool
}

type Config struct {
	LoginRedirect  string
	LogoutRedirect string
	// KeepSessionOnNetworkError decides what Check does when the profile
	// request never got a response: keep the stored session (true) or drop it.
	KeepSessionOnNetworkError bool
	Messages                  Messages
}

type Messages struct {
	InvalidCredentials string
	InvalidLoginReply  string
	LoginFailed        string
}

func DefaultMessages() Messages {
	return Messages{
		InvalidCredentials: "Enter a valid email and password",
		InvalidLoginReply:  "The server returned an invalid login response",
		LoginFailed:        "Sign in failed",
	}
}

type Service struct {
	api      API
	sessions SessionStore
	cfg      Config
	log      *zap.Logger
}

func NewService(api API, sessions SessionStore, cfg Config, log *zap.Logger) *Service {
	if strings.TrimSpace(cfg.LoginRedirect) == "" {
		cfg.LoginRedirect = "/"
	}
	if strings.TrimSpace(cfg.LogoutRedirect) == "" {
		cfg.LogoutRedirect = "/login"
	}

	defaults := DefaultMessages()
	if cfg.Messages.InvalidCredentials == "" {
		cfg.Messages.InvalidCredentials = defaults.InvalidCredentials
	}
	if cfg.Messages.InvalidLoginReply == "" {
		cfg.Messages.InvalidLoginReply = defaults.InvalidLoginReply
	}
	if cfg.Messages.LoginFailed == "" {
		cfg.Messages.LoginFailed = defaults.LoginFailed
	}

	return &Service{
		api:      api,
		sessions: sessions,
		cfg:      cfg,
		log:      logger.OrNop(log),
	}
}

// Login never returns a Go error: every failure is a result with Success false.
// Nothing is persisted unless the response carries both a token and a user.
func (s *Service) Login(ctx context.Context, creds Credentials) AuthResult {
	creds.Email = strings.TrimSpace(creds.Email)
	if err := validate.New().Struct(creds); err != nil {
		return failure("LoginError", s.cfg.Messages.InvalidCredentials, false, errors.Join(ErrInvalidInput, err))
	}

	var response loginResponse
	err := s.api.Do(ctx, apihttp.Request{
		Method: http.MethodPost,
		Path:   loginPath,
		Body:   creds,
		Public: true,
	}, &response)
	if err != nil {
		s.log.Info("login rejected", zap.String("email", creds.Email), zap.Error(err))
		message := apihttp.UserMessage(err)
		if message == "" {
			message = s.cfg.Messages.LoginFailed
		}
		return failure("LoginError", message, apihttp.WasNotified(err), err)
	}

	if strings.TrimSpace(response.AccessToken) == "" || response.User == nil {
		s.log.Warn("login response incomplete",
			zap.Bool("has_token", strings.TrimSpace(response.AccessToken) != ""),
			zap.Bool("has_user", response.User != nil),
		)
		return failure("LoginError", s.cfg.Messages.InvalidLoginReply, false, ErrInvalidLoginReply)
	}

	// Drop whatever the previous session left behind, cached responses included.
	s.clear(ctx, "login over existing session")

	session := model.Session{AccessToken: response.AccessToken, User: *response.User}
	if err := s.sessions.SetSession(ctx, session); err != nil {
		s.log.Error("persist session", zap.Error(err))
		_ = s.sessions.Clear(ctx)
		return failure("LoginError", s.cfg.Messages.LoginFailed, false, err)
	}

	s.log.Info("login succeeded", zap.String("user_id", response.User.ID.String()), zap.String("role", response.User.RoleName()))
	return AuthResult{Success: true, RedirectTo: s.cfg.LoginRedirect}
}

// Logout always tears the local session down, whatever the server says.
func (s *Service) Logout(ctx context.Context) AuthResult {
	if _, ok, _ := s.sessions.GetToken(ctx); ok {
		if err := s.api.Do(ctx, apihttp.Request{Method: http.MethodPost, Path: logoutPath}, nil); err != nil {
			s.log.Warn("server logout failed, clearing local session anyway", zap.Error(err))
		}
	}

	if err := s.sessions.Clear(ctx); err != nil {
		s.log.Error("clear session on logout", zap.Error(err))
	}

	return AuthResult{Success: true, RedirectTo: s.cfg.LogoutRedirect}
}

func (s *Service) Check(ctx context.Context) CheckResult {
	token, ok, err := s.sessions.GetToken(ctx)
	if err != nil {
		s.log.Error("read token for check", zap.Error(err))
	}
	if !ok {
		return s.unauthenticated(ErrNotAuthenticated)
	}

	if s.sessions.IsExpired(token) {
		s.clear(ctx, "expired token")
		return s.unauthenticated(ErrSessionExpired)
	}

	var profile model.User
	err = s.api.Do(ctx, apihttp.Request{Method: http.MethodGet, Path: profilePath}, &profile)
	if err != nil {
		if apihttp.IsCanceled(err) {
			return CheckResult{Error: &AuthError{Name: "Canceled", Message: err.Error(), Err: err}}
		}
		if apihttp.IsNetworkError(err) && s.cfg.KeepSessionOnNetworkError {
			s.log.Warn("profile check unreachable, keeping session", zap.Error(err))
			return CheckResult{
				Authenticated: false,
				Logout:        false,
				Error:         &AuthError{Name: "NetworkError", Message: apihttp.UserMessage(err), Notified: apihttp.WasNotified(err), Err: err},
			}
		}

		s.clear(ctx, "profile check failed")
		result := s.unauthenticated(err)
		result.Error.Notified = apihttp.WasNotified(err)
		return result
	}

	if err := s.sessions.SetUser(ctx, profile); err != nil {
		s.log.Warn("refresh cached user", zap.Error(err))
	}
	return CheckResult{Authenticated: true}
}

// Permissions returns the cached role name.
func (s *Service) Permissions(ctx context.Context) (string, bool) {
	user, ok := s.Identity(ctx)
	if !ok || user.RoleName() == "" {
		return "", false
	}
	return user.RoleName(), true
}

func (s *Service) Identity(ctx context.Context) (model.User, bool) {
	user, ok, err := s.sessions.GetUser(ctx)
	if err != nil {
		s.log.Warn("read cached user", zap.Error(err))
		return model.User{}, false
	}
	return user, ok
}

func (s *Service) HasRole(ctx context.Context, names ...string) bool {
	role, ok := s.Permissions(ctx)
	if !ok {
		return false
	}
	for _, name := range names {
		if strings.EqualFold(strings.TrimSpace(name), role) {
			return true
		}
	}
	return false
}

// OnError turns a 401 into a forced logout. The HTTP client has already cleared
// the session by then; clearing again keeps the store consistent when the error
// came from elsewhere.
func (s *Service) OnError(ctx context.Context, err error) OnErrorResult {
	if err == nil {
		return OnErrorResult{}
	}
	if errors.Is(err, apihttp.ErrUnauthorized) || apihttp.StatusCode(err) == http.StatusUnauthorized {
		s.clear(ctx, "unauthorized response")
		return OnErrorResult{Logout: true, RedirectTo: s.cfg.LogoutRedirect, Err: err}
	}
	return OnErrorResult{Err: err}
}

func (s *Service) unauthenticated(err error) CheckResult {
	return CheckResult{
		Authenticated: false,
		Logout:        true,
		RedirectTo:    s.cfg.LogoutRedirect,
		Error:         &AuthError{Name: "Unauthorized", Message: err.Error(), Err: err},
	}
}

func (s *Service) clear(ctx context.Context, reason string) {
	if err := s.sessions.Clear(ctx); err != nil {
		s.log.Error("clear session", zap.String("reason", reason), zap.Error(err))
	}
}

func failure(name, message string, notified bool, err error) AuthResult {
	return AuthResult{
		Success: false,
		Error: &AuthError{
			Name:     name,
			Message:  message,
			Notified: notified,
			Err:      err,
		},
	}
}
