package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/scott-ace-newton/trade-board/board"
	"github.com/scott-ace-newton/trade-board/identity"
	"github.com/scott-ace-newton/trade-board/messages"
	"github.com/scott-ace-newton/trade-board/metrics"
	"github.com/scott-ace-newton/trade-board/notification"
	"github.com/scott-ace-newton/trade-board/persistence"
	"github.com/scott-ace-newton/trade-board/users"
	log "github.com/sirupsen/logrus"
)

const (
	storeMySQL   = "mysql"
	storeMongo   = "mongo"
	storeMemory  = "memory"
	boardRedis   = "redis"
	boardMemory  = "memory"
	identityDev  = "dev"
	identityOIDC = "oidc"

	connectTimeout = 10 * time.Second
)

type config struct {
	store          string
	sqlDSN         string
	sqlCredentials string
	mongoURI       string
	mongoDatabase  string
	board          string
	redisAddr      string
	redisKey       string
	kafkaBrokers   []string
	kafkaTopic     string
	identity       string
	oidcIssuer     string
	oidcClientID   string
	oidcSecret     string
	oidcRedirect   string
	oidcAttempts   int
	sessionSecret  string
	sessionTTL     time.Duration
}

func (c config) validate() error {
	switch c.store {
	case storeMySQL:
		if c.sqlDSN == "" {
			return fmt.Errorf("SQL connection string not set")
		}
		if c.sqlCredentials == "" {
			return fmt.Errorf("SQL Username and password not set")
		}
	case storeMongo:
		if c.mongoURI == "" {
			return fmt.Errorf("mongo URI not set")
		}
	case storeMemory:
	default:
		return fmt.Errorf("unknown record store %q", c.store)
	}

	switch c.board {
	case boardRedis:
		if c.redisAddr == "" {
			return fmt.Errorf("redis address not set")
		}
	case boardMemory:
	default:
		return fmt.Errorf("unknown message board %q", c.board)
	}

	switch c.identity {
	case identityOIDC:
		if c.oidcIssuer == "" || c.oidcClientID == "" || c.oidcRedirect == "" {
			return fmt.Errorf("oidc issuer, client ID and redirect URL must all be set")
		}
		if c.sessionSecret == "" {
			return fmt.Errorf("session secret not set")
		}
	case identityDev:
	case "":
		return fmt.Errorf("identity provider not set, choose %s or %s for local development", identityOIDC, identityDev)
	default:
		return fmt.Errorf("unknown identity provider %q", c.identity)
	}
	return nil
}

type dependencies struct {
	store       persistence.Clienter
	board       board.Board
	gateway     identity.Gateway
	queueClient notification.QueueClient
}

func buildDependencies(ctx context.Context, cfg config) (*dependencies, error) {
	deps := &dependencies{}
	var err error

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.store {
	case storeMySQL:
		var client *persistence.Client
		if client, err = persistence.NewClient(cfg.sqlDSN, cfg.sqlCredentials); err == nil {
			deps.store = client
		}
	case storeMongo:
		var client *persistence.MongoClient
		if client, err = persistence.NewMongoClient(connectCtx, cfg.mongoURI, cfg.mongoDatabase); err == nil {
			deps.store = client
		}
	default:
		log.Warn("user records are kept in memory and will be lost on restart")
		deps.store = persistence.NewMemoryClient()
	}
	if err != nil {
		return nil, fmt.Errorf("record store: %w", err)
	}

	switch cfg.board {
	case boardRedis:
		var redisBoard *board.RedisBoard
		if redisBoard, err = board.NewRedisBoard(connectCtx, cfg.redisAddr, cfg.redisKey); err == nil {
			deps.board = redisBoard
		}
	default:
		deps.board = board.NewMemoryBoard()
	}
	if err != nil {
		deps.close()
		return nil, fmt.Errorf("message board: %w", err)
	}

	if len(cfg.kafkaBrokers) > 0 {
		deps.queueClient = notification.NewKafkaQueueClient(cfg.kafkaBrokers, cfg.kafkaTopic)
	} else {
		deps.queueClient = notification.NewLogQueueClient()
	}

	secret := []byte(cfg.sessionSecret)
	if len(secret) == 0 && cfg.identity == identityDev {
		log.Warn("no session secret configured, using an insecure development key")
		secret = []byte(appName + "-development-only")
	}
	sessions := identity.NewSessions(secret, cfg.sessionTTL)

	switch cfg.identity {
	case identityOIDC:
		var gateway *identity.OIDCGateway
		gateway, err = identity.NewOIDCGateway(ctx, identity.OIDCConfig{
			Issuer:       cfg.oidcIssuer,
			ClientID:     cfg.oidcClientID,
			ClientSecret: cfg.oidcSecret,
			RedirectURL:  cfg.oidcRedirect,
			MaxAttempts:  cfg.oidcAttempts,
		}, sessions)
		if err == nil {
			deps.gateway = gateway
		}
	case identityDev:
		deps.gateway = identity.NewDevGateway(sessions)
	default:
		err = fmt.Errorf("unknown identity provider %q", cfg.identity)
	}
	if err != nil {
		deps.close()
		return nil, fmt.Errorf("identity gateway: %w", err)
	}
	return deps, nil
}

func (d *dependencies) close() {
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			log.WithError(err).Error("could not close record store")
		}
	}
	if d.board != nil {
		if err := d.board.Close(); err != nil {
			log.WithError(err).Error("could not close message board")
		}
	}
	if d.queueClient != nil {
		if err := d.queueClient.Close(); err != nil {
			log.WithError(err).Error("could not close queue client")
		}
	}
}

func newRouter(deps *dependencies) http.Handler {
	r := mux.NewRouter()
	r.Use(metrics.Middleware)

	deps.gateway.RegisterHandlers(r)

	usersHandler := users.NewUsersHandler(deps.store, deps.gateway, deps.queueClient)
	usersHandler.RegisterHandlers(r)

	messagesHandler := messages.NewMessagesHandler(deps.board, deps.gateway, deps.queueClient)
	messagesHandler.RegisterHandlers(r)

	r.Handle("/__metrics", handlers.MethodHandler{"GET": metrics.Handler()})

	logged := handlers.CombinedLoggingHandler(log.StandardLogger().WriterLevel(log.InfoLevel), r)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(log.StandardLogger()),
		handlers.PrintRecoveryStack(true),
	)(logged)
}
