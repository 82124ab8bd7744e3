// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

// Package main contains hub main function to start the hub service.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/werg/chanhub/hub"
	"github.com/werg/chanhub/hub/api"
	"github.com/werg/chanhub/hub/middleware"
	hubpg "github.com/werg/chanhub/hub/postgres"
	"github.com/werg/chanhub/hub/tracing"
	"github.com/werg/chanhub/internal"
	"github.com/werg/chanhub/internal/env"
	"github.com/werg/chanhub/internal/server"
	httpserver "github.com/werg/chanhub/internal/server/http"
	chlog "github.com/werg/chanhub/logger"
	"github.com/werg/chanhub/pkg/agents"
	"github.com/werg/chanhub/pkg/authn"
	"github.com/werg/chanhub/pkg/errors"
	pgclient "github.com/werg/chanhub/pkg/postgres"
	"github.com/werg/chanhub/pkg/uuid"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

const (
	svcName        = "hub"
	envPrefixDB    = "CH_HUB_DB_"
	envPrefixHTTP  = "CH_HUB_HTTP_"
	defDB          = "hub"
	defSvcHTTPPort = "9030"
)

var (
	errNoTokenSource     = errors.New("neither a jwt secret nor a static token table is configured")
	errInvalidTokenTable = errors.New("static token table entries must be token:caller pairs")
)

type config struct {
	LogLevel     string `env:"CH_HUB_LOG_LEVEL"     envDefault:"info"`
	InstanceID   string `env:"CH_HUB_INSTANCE_ID"   envDefault:""`
	JWTSecret    string `env:"CH_HUB_JWT_SECRET"    envDefault:""`
	StaticTokens string `env:"CH_HUB_STATIC_TOKENS" envDefault:""`
	AgentsURL    string `env:"CH_HUB_AGENTS_URL"    envDefault:""`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	cfg := config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load %s configuration : %s", svcName, err)
	}

	logger, err := chlog.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %s", err.Error())
	}

	var exitCode int
	defer chlog.ExitWithError(&exitCode)

	if cfg.InstanceID == "" {
		if cfg.InstanceID, err = uuid.New().ID(); err != nil {
			logger.Error(fmt.Sprintf("failed to generate instance ID: %s", err))
			exitCode = 1
			return
		}
	}

	dbConfig := pgclient.Config{Name: defDB}
	if err := env.Parse(&dbConfig, env.Options{Prefix: envPrefixDB}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s database configuration : %s", svcName, err))
		exitCode = 1
		return
	}
	db, err := pgclient.Setup(dbConfig, *hubpg.Migration())
	if err != nil {
		logger.Error(err.Error())
		exitCode = 1
		return
	}
	defer db.Close()

	tokens, err := newTokenValidator(cfg)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to configure token validation : %s", err))
		exitCode = 1
		return
	}

	var agentHost hub.AgentHost
	if cfg.AgentsURL != "" {
		agentHost = agents.NewClient(cfg.AgentsURL)
		logger.Info(fmt.Sprintf("%s service connected to agent host at %s", svcName, cfg.AgentsURL))
	}

	svc := newService(db, dbConfig, tokens, agentHost, logger)

	httpServerConfig := server.Config{Port: defSvcHTTPPort}
	if err := env.Parse(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err))
		exitCode = 1
		return
	}
	hs := httpserver.New(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service terminated: %s", svcName, err))
		exitCode = 1
	}
}

func newService(db *sqlx.DB, dbConfig pgclient.Config, tokens hub.TokenValidator, agentHost hub.AgentHost, logger *slog.Logger) hub.Service {
	database := pgclient.NewDatabase(db, dbConfig, otel.Tracer("postgres"))
	store := hubpg.NewRepository(database)
	idp := uuid.New()

	svc := hub.New(tokens, store, agentHost, idp)
	svc = tracing.New(otel.Tracer(svcName), svc)
	svc = middleware.LoggingMiddleware(svc, logger)
	counter, latency := internal.MakeMetrics(svcName, "api")
	svc = middleware.MetricsMiddleware(svc, counter, latency)

	return svc
}

func newTokenValidator(cfg config) (hub.TokenValidator, error) {
	if cfg.JWTSecret != "" {
		return authn.NewJWTValidator([]byte(cfg.JWTSecret)), nil
	}
	if cfg.StaticTokens != "" {
		table := map[string]string{}
		for _, pair := range strings.Split(cfg.StaticTokens, ",") {
			parts := strings.SplitN(pair, ":", 2)
			if len(parts) != 2 {
				return nil, errInvalidTokenTable
			}
			table[parts[0]] = parts[1]
		}
		return authn.NewStaticValidator(table), nil
	}

	return nil, errNoTokenSource
}
