package app

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ivankudzin/daycare-admin/internal/config"
	"github.com/ivankudzin/daycare-admin/internal/infra/logger"
	redisinfra "github.com/ivankudzin/daycare-admin/internal/infra/redis"
	"github.com/ivankudzin/daycare-admin/internal/notify"
	"github.com/ivankudzin/daycare-admin/internal/repo/memory"
	redisrepo "github.com/ivankudzin/daycare-admin/internal/repo/redis"
	"github.com/ivankudzin/daycare-admin/internal/services/auth"
	"github.com/ivankudzin/daycare-admin/internal/services/dataprovider"
	"github.com/ivankudzin/daycare-admin/internal/services/tokenstore"
	"github.com/ivankudzin/daycare-admin/internal/transport/apihttp"
)

type App struct {
	cfg    config.Config
	logger *zap.Logger
	redis  *goredis.Client

	Sink      *notify.Sink
	Tokens    *tokenstore.Store
	API       *apihttp.Client
	Auth      *auth.Service
	Data      *dataprovider.Provider
	Ephemeral *memory.KVRepo
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	log = logger.OrNop(log)

	a := &App{cfg: cfg, logger: log}

	var sessionKV tokenstore.KV
	if cfg.UsesRedis() {
		client, err := redisinfra.NewClient(ctx, redisinfra.Config{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("connect session storage: %w", err)
		}
		a.redis = client
		sessionKV = redisrepo.NewKVRepo(client, cfg.Storage.Namespace)
		log.Info("session storage: redis", zap.String("addr", cfg.Storage.Redis.Addr))
	} else {
		sessionKV = memory.NewKVRepo()
		log.Info("session storage: memory")
	}

	a.Tokens = tokenstore.New(sessionKV, tokenstore.Options{
		TokenKey: cfg.Storage.TokenKey,
		UserKey:  cfg.Storage.UserKey,
		Logger:   log.Named("tokenstore"),
	})

	a.Ephemeral = memory.NewKVRepo()
	a.Tokens.AddPurger(a.Ephemeral)

	a.Sink = notify.NewSink(log.Named("notify"))

	client, err := apihttp.NewClient(cfg.API.BaseURL, a.Tokens, a.Sink, apihttp.Options{
		Timeout: cfg.API.Timeout,
		Logger:  log.Named("api"),
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create api client: %w", err)
	}
	a.API = client

	var cache *dataprovider.ResponseCache
	if cfg.CacheEnabled() {
		cache, err = dataprovider.NewResponseCache(cfg.Cache.TTL)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Tokens.AddPurger(cache)
		log.Info("response cache enabled", zap.Duration("ttl", cfg.Cache.TTL))
	}

	a.Auth = auth.NewService(client, a.Tokens, auth.Config{
		LoginRedirect:             cfg.Auth.LoginRedirect,
		LogoutRedirect:            cfg.Auth.LogoutRedirect,
		KeepSessionOnNetworkError: cfg.Auth.KeepSessionOnNetworkError,
	}, log.Named("auth"))
	a.Data = dataprovider.New(client, cache, log.Named("data"))

	return a, nil
}

// Close detaches the notification subscriber and releases storage connections.
func (a *App) Close() error {
	if a == nil {
		return nil
	}

	var errs []error
	if a.Sink != nil {
		a.Sink.Unregister()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
