package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ivankudzin/daycare-admin/internal/app"
	"github.com/ivankudzin/daycare-admin/internal/config"
	"github.com/ivankudzin/daycare-admin/internal/domain/enums"
	"github.com/ivankudzin/daycare-admin/internal/domain/model"
	"github.com/ivankudzin/daycare-admin/internal/infra/logger"
	"github.com/ivankudzin/daycare-admin/internal/notify"
	"github.com/ivankudzin/daycare-admin/internal/services/auth"
	"github.com/ivankudzin/daycare-admin/internal/services/dataprovider"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfgPath := os.Getenv("APP_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("create app", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("close app", zap.Error(err))
		}
	}()

	a.Sink.Register(func(n notify.Notification) {
		log.Info("notification",
			zap.String("type", string(n.Type)),
			zap.String("message", n.Message),
			zap.String("description", n.Description),
			zap.String("key", n.Key),
		)
	})

	check := a.Auth.Check(ctx)
	if !check.Authenticated {
		if cfg.Auth.Email == "" || cfg.Auth.Password == "" {
			log.Warn("no active session and no credentials configured", zap.String("redirect", check.RedirectTo))
			return
		}

		result := a.Auth.Login(ctx, auth.Credentials{Email: cfg.Auth.Email, Password: cfg.Auth.Password})
		if !result.Success {
			log.Error("login failed", zap.String("message", result.Error.Message), zap.Error(result.Error.Err))
			return
		}
	}

	user, _ := a.Auth.Identity(ctx)
	log.Info("signed in",
		zap.String("user_id", user.ID.String()),
		zap.String("name", user.FullName()),
		zap.String("role", user.RoleName()),
	)

	children, err := a.Data.GetList(ctx, dataprovider.ListParams{
		Resource:   enums.ResourceChildren,
		Pagination: &model.Pagination{Current: model.DefaultCurrentPage, PageSize: model.DefaultPageSize},
	})
	if err != nil {
		if res := a.Auth.OnError(ctx, err); res.Logout {
			log.Warn("session ended", zap.String("redirect", res.RedirectTo))
		}
		return
	}
	log.Info("children loaded", zap.Int("page_size", len(children.Data)), zap.Int("total", children.Total))
}
