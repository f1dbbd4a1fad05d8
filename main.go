package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jawher/mow.cli"
	log "github.com/sirupsen/logrus"
)

const (
	appName        = "trade-board"
	appDescription = "Application for signing users up, storing their product postings and sharing a message board"
)

func main() {
	app := cli.App(appName, appDescription)

	port := app.String(cli.StringOpt{
		Name:   "port",
		Value:  "8080",
		Desc:   "Port to listen on",
		EnvVar: "APP_PORT",
	})
	logLevel := app.String(cli.StringOpt{
		Name:   "logLevel",
		Value:  "info",
		Desc:   "App log level",
		EnvVar: "LOG_LEVEL",
	})
	recordStore := app.String(cli.StringOpt{
		Name:   "store",
		Value:  storeMemory,
		Desc:   "User record store: mysql, mongo or memory",
		EnvVar: "RECORD_STORE",
	})
	sqlCredentials := app.String(cli.StringOpt{
		Name:      "sqlCredentials",
		Desc:      "Username and password to connect to db, should be in 'user:pass' format",
		EnvVar:    "SQL_CREDENTIALS",
		HideValue: true,
	})
	sqlDSN := app.String(cli.StringOpt{
		Name:      "sqlDSN",
		Desc:      "Schema to connect to on the local MySQL server",
		EnvVar:    "SQL_DSN",
		HideValue: true,
	})
	mongoURI := app.String(cli.StringOpt{
		Name:      "mongoURI",
		Desc:      "MongoDB connection string e.g. mongodb://localhost:27017",
		EnvVar:    "MONGO_URI",
		HideValue: true,
	})
	mongoDatabase := app.String(cli.StringOpt{
		Name:   "mongoDatabase",
		Value:  "trade_board",
		Desc:   "MongoDB database holding the user records",
		EnvVar: "MONGO_DATABASE",
	})
	messageBoard := app.String(cli.StringOpt{
		Name:   "board",
		Value:  boardMemory,
		Desc:   "Message board backend: redis or memory",
		EnvVar: "MESSAGE_BOARD",
	})
	redisAddr := app.String(cli.StringOpt{
		Name:   "redisAddr",
		Value:  "localhost:6379",
		Desc:   "Redis address for the message board",
		EnvVar: "REDIS_ADDR",
	})
	redisKey := app.String(cli.StringOpt{
		Name:   "redisKey",
		Value:  "messages",
		Desc:   "Redis key holding the message board",
		EnvVar: "REDIS_KEY",
	})
	kafkaBrokers := app.Strings(cli.StringsOpt{
		Name:   "kafkaBrokers",
		Desc:   "Kafka brokers to publish events to. Events are only logged when empty",
		EnvVar: "KAFKA_BROKERS",
	})
	kafkaTopic := app.String(cli.StringOpt{
		Name:   "kafkaTopic",
		Value:  "trade-board-events",
		Desc:   "Kafka topic for events",
		EnvVar: "KAFKA_TOPIC",
	})
	identityProvider := app.String(cli.StringOpt{
		Name:   "identity",
		Desc:   "Identity provider: oidc, or dev which accepts any email without a password. Must be set",
		EnvVar: "IDENTITY_PROVIDER",
	})
	oidcIssuer := app.String(cli.StringOpt{
		Name:   "oidcIssuer",
		Desc:   "OpenID Connect issuer URL",
		EnvVar: "OIDC_ISSUER_URL",
	})
	oidcClientID := app.String(cli.StringOpt{
		Name:   "oidcClientID",
		Desc:   "OpenID Connect client ID",
		EnvVar: "OIDC_CLIENT_ID",
	})
	oidcClientSecret := app.String(cli.StringOpt{
		Name:      "oidcClientSecret",
		Desc:      "OpenID Connect client secret",
		EnvVar:    "OIDC_CLIENT_SECRET",
		HideValue: true,
	})
	oidcRedirectURL := app.String(cli.StringOpt{
		Name:   "oidcRedirectURL",
		Desc:   "Public URL of /auth/callback registered at the provider",
		EnvVar: "OIDC_REDIRECT_URL",
	})
	oidcMaxAttempts := app.Int(cli.IntOpt{
		Name:   "oidcMaxAttempts",
		Value:  8,
		Desc:   "Attempts at provider discovery before giving up",
		EnvVar: "OIDC_MAX_ATTEMPTS",
	})
	sessionSecret := app.String(cli.StringOpt{
		Name:      "sessionSecret",
		Desc:      "Key used to sign session cookies",
		EnvVar:    "SESSION_SECRET",
		HideValue: true,
	})
	sessionTTL := app.String(cli.StringOpt{
		Name:   "sessionTTL",
		Value:  "24h",
		Desc:   "How long a login lasts",
		EnvVar: "SESSION_TTL",
	})

	app.Action = func() {
		logLvl, err := log.ParseLevel(*logLevel)
		if err != nil {
			log.WithField("logLevel", *logLevel).WithError(err).Error("could not parse log level. Using INFO instead.")
			logLvl = log.InfoLevel
		}
		log.SetLevel(logLvl)
		log.Infof("[Startup] %s is starting on port %s...", appName, *port)

		ttl, err := time.ParseDuration(*sessionTTL)
		if err != nil || ttl <= 0 {
			log.WithField("sessionTTL", *sessionTTL).Fatal("session TTL must be a positive duration")
		}

		cfg := config{
			store:          *recordStore,
			sqlDSN:         *sqlDSN,
			sqlCredentials: *sqlCredentials,
			mongoURI:       *mongoURI,
			mongoDatabase:  *mongoDatabase,
			board:          *messageBoard,
			redisAddr:      *redisAddr,
			redisKey:       *redisKey,
			kafkaBrokers:   *kafkaBrokers,
			kafkaTopic:     *kafkaTopic,
			identity:       *identityProvider,
			oidcIssuer:     *oidcIssuer,
			oidcClientID:   *oidcClientID,
			oidcSecret:     *oidcClientSecret,
			oidcRedirect:   *oidcRedirectURL,
			oidcAttempts:   *oidcMaxAttempts,
			sessionSecret:  *sessionSecret,
			sessionTTL:     ttl,
		}
		if err := cfg.validate(); err != nil {
			log.WithError(err).Fatal("invalid configuration")
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
		defer cancel()

		deps, err := buildDependencies(ctx, cfg)
		if err != nil {
			log.WithError(err).Fatal("could not initialise backends")
		}
		defer deps.close()

		srv := &http.Server{
			Addr:         ":" + *port,
			Handler:      newRouter(deps),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}

		go func() {
			log.Infof("Listening on port %v", *port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("HTTP server got shut down error: %v", err)
			}
			cancel()
		}()

		<-ctx.Done()
		log.Info("shutting down HTTP server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("HTTP server did not shut down cleanly")
		}
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("app could not start")
	}
}
