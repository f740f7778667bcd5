package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string // empty = in-memory store (demo mode); needs parseTime=true
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	RoomsFile   string
	RoomsURL    string
	FixtureRPS  int
	SeedWorkers int
	BookRPS     int
	CacheTTL    time.Duration
	HoldTTL     time.Duration
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", ""),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisDB:     atoi("REDIS_DB", 0),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RoomsFile:   env("ROOMS_FILE", "data/rooms.json"),
		RoomsURL:    env("ROOMS_URL", ""),
		FixtureRPS:  atoi("FIXTURE_RPS", 5),
		SeedWorkers: atoi("SEED_WORKERS", 8),
		BookRPS:     atoi("BOOK_RPS", 50),
		CacheTTL:    time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
		HoldTTL:     time.Duration(atoi("HOLD_TTL_SECONDS", 900)) * time.Second,
	}
	if c.MySQLDSN == "" {
		log.Warn().Msg("MYSQL_DSN is empty, using in-memory store")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
