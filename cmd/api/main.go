package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "roomledger/internal/adapters/http_server"
	"roomledger/internal/adapters/observability"
	redisad "roomledger/internal/adapters/redis"
	"roomledger/internal/app"
	"roomledger/internal/domain"
	"roomledger/internal/shared"
	"roomledger/internal/storage/memory"
	mysqlrepo "roomledger/internal/storage/mysql"
)

func main() {
	ctx := context.Background()
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	// store: MySQL when configured, in-memory otherwise
	var (
		ledger  domain.Ledger
		catalog domain.Catalog
	)
	if cfg.MySQLDSN != "" {
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("sql.Open failed")
		}
		if err := db.Ping(); err != nil {
			log.Fatal().Err(err).Msg("db.Ping failed")
		}
		log.Info().Msg("database connection ok")
		repo := mysqlrepo.New(db)
		ledger, catalog = repo, repo
	} else {
		mem := memory.New()
		ledger, catalog = mem, mem
	}

	// rebuild the availability index from the ledger
	index, err := app.BuildIndex(ctx, ledger)
	if err != nil {
		log.Fatal().Err(err).Msg("index rebuild failed")
	}
	log.Info().Msg("availability index rebuilt")

	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	q := app.NewQueryService(ledger, catalog, index, cache, cfg.CacheTTL)
	alloc := app.NewAllocator(ledger, catalog, index, cfg.HoldTTL)
	trans := app.NewTransitions(ledger, index)

	// periodic expiry of stale pending holds
	go func() {
		t := time.NewTicker(cfg.HoldTTL)
		defer t.Stop()
		for range t.C {
			if n, err := alloc.ExpireStaleHolds(ctx); err != nil {
				log.Warn().Err(err).Msg("hold sweep failed")
			} else if n > 0 {
				log.Info().Int("expired", n).Msg("hold sweep")
			}
		}
	}()

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Q: q, Alloc: alloc, Trans: trans, BookRPS: cfg.BookRPS})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
