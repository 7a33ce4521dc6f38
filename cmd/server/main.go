// Command server runs the gatekeeper HTTP API.
//
// @title                       Gatekeeper API
// @version                     1.0
// @description                 Request dispatch and access control: token grants, restriction rules, account recovery and verification.
// @BasePath                    /api
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	_ "github.com/serendip/gatekeeper/docs"
	"github.com/serendip/gatekeeper/internal/api"
	"github.com/serendip/gatekeeper/internal/api/handler"
	"github.com/serendip/gatekeeper/internal/api/metrics"
	"github.com/serendip/gatekeeper/internal/api/route"
	"github.com/serendip/gatekeeper/internal/core/service"
	"github.com/serendip/gatekeeper/internal/infrastructure/config"
	mongodb "github.com/serendip/gatekeeper/internal/infrastructure/db/mongo"
	redisdb "github.com/serendip/gatekeeper/internal/infrastructure/db/redis"
	"github.com/serendip/gatekeeper/internal/infrastructure/notify"
	"github.com/serendip/gatekeeper/internal/infrastructure/queue"
	"github.com/serendip/gatekeeper/internal/infrastructure/tokens"
	"github.com/serendip/gatekeeper/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	log := logger.Init(logger.Options{
		Level:   os.Getenv("LOG_LEVEL"),
		Pretty:  os.Getenv("ENV") != "production",
		Service: "gatekeeper",
	})
	cfg := config.Load(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return err
	}
	defer func() {
		_ = mongoClient.Disconnect(context.Background())
	}()

	rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return err
	}
	defer rdb.Close()

	// --- Stores ---
	users := mongodb.NewUserRepository(db)
	restrictions := mongodb.NewRestrictionRepository(db)
	clients := mongodb.NewClientRepository(db)
	outbox := mongodb.NewOutboxRepository(db)

	if err := mongodb.EnsureIndexes(ctx, users, restrictions, clients); err != nil {
		return err
	}

	// --- Notifications ---
	mailer, err := notify.NewMailer(notify.MailerConfig{
		Host:          cfg.SMTP.Host,
		Port:          cfg.SMTP.Port,
		Username:      cfg.SMTP.Username,
		Password:      cfg.SMTP.Password,
		From:          cfg.SMTP.From,
		TemplatesPath: cfg.SMTP.TemplatesPath,
	}, outbox, logger.Component("mailer"))
	if err != nil {
		return err
	}

	smsWriter := notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.SMSTopic)
	defer smsWriter.Close()

	notifier := notify.NewRouter(mailer, notify.NewSmsPublisher(smsWriter, logger.Component("sms")))
	dispatcher := queue.NewDispatcher(cfg.Notify.Workers, cfg.Notify.BufferSize, notifier, logger.Component("dispatcher"))
	// Deliveries outlive the signal context so queued mail drains on shutdown.
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()
	dispatcher.Start(dispatchCtx)

	// --- Core ---
	minter, err := tokens.NewJWTMinter(cfg.JWTSecret)
	if err != nil {
		return err
	}

	tokenSvc := service.NewTokenService(users, minter, service.TokenConfig{
		ExpireIn:      cfg.Auth.TokenExpireIn,
		ResetInterval: cfg.Auth.ResetInterval,
		OTPExpireIn:   cfg.Auth.OTPExpireIn,
	}, log)

	rules := service.NewRestrictionService(restrictions, log)
	if err := rules.Refresh(ctx); err != nil {
		return err
	}
	metrics.RestrictionRulesLoaded.Set(float64(len(rules.Rules())))

	accounts := service.NewAccountService(service.AccountDeps{
		Users:    users,
		Clients:  clients,
		Tokens:   tokenSvc,
		Notifier: notifier,
		Queue:    dispatcher,
		Throttle: redisdb.NewThrottle(rdb),
	}, service.AccountConfig{
		EmailConfirmationRequired:  cfg.Auth.EmailConfirmationRequired,
		MobileConfirmationRequired: cfg.Auth.MobileConfirmationRequired,
		DefaultCountryCode:         cfg.Auth.DefaultCountryCode,
		SendInterval:               cfg.Auth.SendInterval,
	}, log)

	guard := service.NewGuard(tokenSvc, users, rules, log)

	// --- Routes ---
	validator := handler.NewValidator()
	registry := route.NewRegistry(log)
	controllers := []route.Controller{
		handler.NewAuthController(accounts, tokenSvc, validator).Controller(),
		handler.NewRestrictionController(rules, validator).Controller(),
	}
	for _, c := range controllers {
		if err := registry.Register(c); err != nil {
			return err
		}
	}

	e := api.NewRouter(
		api.RouterConfig{AllowedOrigins: cfg.CORSOrigin, BodyLimit: cfg.BodyLimit},
		api.NewServer(registry, guard, log),
		handler.NewHealthHandler(handler.MongoDependency(db), handler.RedisDependency(rdb)),
		validator,
		log,
	)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("notification dispatcher did not drain")
	}
	return nil
}
