package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Skotchmaster/car_rental/internal/config"
	"github.com/Skotchmaster/car_rental/internal/db"
	"github.com/Skotchmaster/car_rental/internal/events"
	"github.com/Skotchmaster/car_rental/internal/httpserver"
	"github.com/Skotchmaster/car_rental/internal/logging"
	"github.com/Skotchmaster/car_rental/internal/mail"
	"github.com/Skotchmaster/car_rental/internal/repo"
	"github.com/Skotchmaster/car_rental/internal/resettoken"
	"github.com/Skotchmaster/car_rental/internal/search"
	"github.com/Skotchmaster/car_rental/internal/service"
	"github.com/Skotchmaster/car_rental/internal/tokens"
)

type publisher interface {
	service.EventPublisher
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(log)

	ctx := context.Background()
	gdb, err := db.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Error("db_open_failed", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Error("db_migrate_failed", "error", err)
		os.Exit(1)
	}
	store := repo.New(gdb)

	issuer := &tokens.Issuer{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	}

	var mailer mail.Sender = mail.LogSender{Log: log}
	if cfg.SMTPHost != "" {
		mailer = &mail.SMTPSender{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
		}
	} else {
		log.Warn("smtp_disabled", "reason", "SMTP_HOST is empty, emails are logged")
	}

	var prod publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		prod = events.NewProducer(cfg.KafkaBrokers)
	} else {
		log.Warn("kafka_disabled", "reason", "KAFKA_BROKERS is empty")
	}

	accounts := &service.AccountService{
		Repo:   store,
		Tokens: issuer,
		Resets: &resettoken.Generator{Secret: cfg.JWTSecret, Timeout: cfg.PasswordResetTimeout},
		Mailer: mailer,
		Events: prod,
		Site:   service.Site{Scheme: cfg.SiteScheme, Domain: cfg.SiteDomain},
	}
	if cfg.ESURL != "" {
		esClient, err := search.NewClient(ctx, search.ClientConfig{
			URL:      cfg.ESURL,
			User:     cfg.ESUser,
			Password: cfg.ESPassword,
		}, log)
		if err != nil {
			log.Error("es_unavailable", "error", err)
		} else {
			idx := &search.UserIndex{Client: esClient, Index: cfg.ESIndex}
			accounts.Index = idx
			accounts.Searcher = idx
		}
	}

	e := httpserver.New(&httpserver.Deps{
		Accounts: &httpserver.AccountHTTP{Svc: accounts},
		Auth: &httpserver.AuthHTTP{Svc: &service.AuthService{
			Repo:          store,
			Tokens:        issuer,
			Events:        prod,
			RotateRefresh: cfg.RotateRefreshTokens,
		}},
		Issuer: issuer,
		Log:    log,
		Ready: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info("http_listen", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http_server_error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server_shutdown_error", "error", err)
	}
	if err := db.Close(gdb); err != nil {
		log.Error("db_close_error", "error", err)
	}
	if err := prod.Close(); err != nil {
		log.Error("kafka_close_error", "error", err)
	}

	log.Info("shutdown complete")
}
