package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/securecookie"
	"github.com/redis/go-redis/v9"
	"github.com/romanzh1/startup-sprint/internal/config"
	"github.com/romanzh1/startup-sprint/internal/handler"
	"github.com/romanzh1/startup-sprint/internal/membership"
	"github.com/romanzh1/startup-sprint/internal/models"
	"github.com/romanzh1/startup-sprint/internal/repository"
	"github.com/romanzh1/startup-sprint/internal/repository/memory"
	"github.com/romanzh1/startup-sprint/internal/service"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	zap.S().Info("logger initialized")

	if err := run(cfg); err != nil {
		zap.S().Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProductionConfig().Build()
	}

	moscowLocation, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		moscowLocation = time.FixedZone("MSK", 3*60*60)
	}

	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.In(moscowLocation).Format("2006-01-02T15:04:05-07:00"))
	}

	return config.Build()
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	var bot *tgbotapi.BotAPI
	if cfg.Telegram.BotToken != "" {
		bot, err = tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			return fmt.Errorf("create bot API: %w", err)
		}
		zap.S().Infow("authorized on telegram", "bot", bot.Self.UserName)
	} else {
		zap.S().Warn("TELEGRAM_BOT_TOKEN is not set, bot and membership checks are disabled")
	}

	members := newMembershipChecker(ctx, cfg, bot)
	svc := service.NewService(repo, members)

	if cfg.SeedDefaults {
		if _, err := svc.Seed(ctx); err != nil {
			return err
		}
	}

	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		sessionSecret = string(securecookie.GenerateRandomKey(32))
		zap.S().Warn("ADMIN_SESSION_SECRET is not set, admin sessions will not survive a restart")
	}

	httpHandler := handler.NewHTTPHandler(svc, handler.Options{
		ClientOrigins: cfg.ClientOrigins,
		AdminPassword: cfg.AdminPassword,
		SessionSecret: sessionSecret,
		SessionMaxAge: cfg.SessionMaxAge,
		SecureCookies: cfg.SecureCookies,
		HealthChecks: map[string]bool{
			"ADMIN_PASSWORD":      cfg.AdminPassword != "",
			"CLIENT_ORIGIN":       len(cfg.ClientOrigins) > 0,
			"TELEGRAM_BOT_TOKEN":  cfg.Telegram.BotToken != "",
			"TELEGRAM_CHANNEL_ID": cfg.Telegram.ChannelID != "",
		},
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           http.TimeoutHandler(httpHandler.Router(), cfg.RequestTimeout, `{"error":"request timed out"}`),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       time.Minute,
	}

	var wg sync.WaitGroup
	if bot != nil {
		telegram, err := handler.NewTelegramHandler(bot, svc, cfg.WebAppURL, cfg.NotifyCron)
		if err != nil {
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			telegram.Start(ctx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		zap.S().Infow("http server listening", "addr", server.Addr, "storage", cfg.Storage)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		stop()
		wg.Wait()
		return err
	}

	zap.S().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	wg.Wait()

	return nil
}

func openRepository(cfg *config.Config) (models.Repository, func(), error) {
	if cfg.Storage == config.StorageMemory {
		zap.S().Warn("using in-memory storage, data is lost on restart")
		return memory.New(), func() {}, nil
	}

	repo, err := repository.NewDB(cfg.Postgres.DSN(), cfg.Postgres.MaxIdle, cfg.Postgres.MaxOpen)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to PostgreSQL (host: %s): %w", cfg.Postgres.Host, err)
	}

	if err := repo.Up(cfg.MigrationsDir); err != nil {
		repo.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	return repo, func() {
		if err := repo.Close(); err != nil {
			zap.S().Error("close database", zap.Error(err))
		}
	}, nil
}

func newMembershipChecker(ctx context.Context, cfg *config.Config, bot *tgbotapi.BotAPI) membership.Checker {
	var getter membership.ChatMemberGetter
	if bot != nil {
		getter = bot
	}
	var checker membership.Checker = membership.NewTelegramChecker(getter, cfg.Telegram.ChannelID)

	if cfg.Redis.Addr == "" {
		return checker
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		zap.S().Warn("redis is unreachable, membership cache disabled", zap.Error(err))
		client.Close()
		return checker
	}

	zap.S().Infow("membership cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.MembershipTTL)
	return membership.NewCachedChecker(checker, client, cfg.MembershipTTL)
}
