package main

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"roomledger/internal/adapters/fixtures"
	"roomledger/internal/adapters/observability"
	redisad "roomledger/internal/adapters/redis"
	"roomledger/internal/domain"
	"roomledger/internal/shared"
	mysqlrepo "roomledger/internal/storage/mysql"
)

// Seeds the room catalog from a rooms.json fixture, either a local file
// (ROOMS_FILE) or a fixture host (ROOMS_URL), then drops the cached catalog.
func main() {
	ctx := context.Background()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Str("file", cfg.RoomsFile).
		Str("url", cfg.RoomsURL).
		Int("workers", cfg.SeedWorkers).
		Msg("seeder starting")

	if cfg.MySQLDSN == "" {
		log.Fatal().Msg("MYSQL_DSN is required for seeding")
	}
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)

	var rooms []domain.Room
	if cfg.RoomsURL != "" {
		rooms, err = fixtures.NewClient(cfg.RoomsURL, cfg.FixtureRPS).Fetch(ctx)
	} else {
		rooms, err = fixtures.Load(cfg.RoomsFile)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("loading room fixtures failed")
	}
	log.Info().Int("rooms", len(rooms)).Msg("fixtures loaded")

	sem := semaphore.NewWeighted(int64(cfg.SeedWorkers))
	var wg sync.WaitGroup

	for _, room := range rooms {
		room := room

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func(rm domain.Room) {
			defer wg.Done()
			defer sem.Release(1)

			if err := repo.UpsertRoom(ctx, rm); err != nil {
				log.Warn().Int64("id", rm.ID).Err(err).Msg("upsert failed")
				return
			}
			log.Info().Int64("id", rm.ID).Str("type", rm.Type).Msg("room seeded")
		}(room)
	}

	wg.Wait()

	// drop the cached catalog so the API picks up the new inventory
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := cache.Del(ctx, "rooms:all"); err != nil {
		log.Warn().Err(err).Msg("cache invalidation failed")
	}

	log.Info().Msg("seeding completed")
}
