//go:build integration || !unit

package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	httpserver "roomledger/internal/adapters/http_server"
	"roomledger/internal/app"
	"roomledger/internal/domain"
	mysqlrepo "roomledger/internal/storage/mysql"
)

// ---------- helpers ----------

func mustEnv(t *testing.T, k string) string {
	t.Helper()
	v := os.Getenv(k)
	if v == "" {
		t.Fatalf("%s not set; export it (e.g. MIGRATIONS_DIR=/path/to/migrations)", k)
	}
	return v
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := mustEnv(t, "MIGRATIONS_DIR")

	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		t.Fatalf("MIGRATIONS_DIR=%s is not a directory or missing", dir)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)
	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

type nopCache struct{}

func (nopCache) Get(ctx context.Context, key string, dst any) (bool, error)   { return false, nil }
func (nopCache) Set(ctx context.Context, key string, v any, ttlSec int) error { return nil }
func (nopCache) Del(ctx context.Context, key string) error                    { return nil }

func post(t *testing.T, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

// ---------- the test ----------

func TestHTTP_EndToEnd_BookingLifecycle(t *testing.T) {
	// Start isolated MySQL container
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}
	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=roomledger",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/roomledger?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC", hostPort)

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)

	repo := mysqlrepo.New(db)
	ctx := context.Background()

	if err := repo.UpsertRoom(ctx, domain.Room{ID: 101, Type: "double", Capacity: 2, NightlyRate: 120, Available: true}); err != nil {
		t.Fatalf("seed room: %v", err)
	}

	index, err := app.BuildIndex(ctx, repo)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	q := app.NewQueryService(repo, repo, index, nopCache{}, time.Minute)
	alloc := app.NewAllocator(repo, repo, index, 15*time.Minute)
	trans := app.NewTransitions(repo, index)

	srv := httpserver.New()
	srv.MountHandlers(&httpserver.Handlers{Q: q, Alloc: alloc, Trans: trans, BookRPS: 1000})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)

	// book
	resp, body := post(t, ts.URL+"/v1/reservations", map[string]any{
		"room_id": 101, "guest_id": 7, "check_in": "2030-03-01", "check_out": "2030-03-05",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("book: %d %s", resp.StatusCode, body)
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// overlapping dates conflict through the full stack
	resp, body = post(t, ts.URL+"/v1/reservations", map[string]any{
		"room_id": 101, "guest_id": 8, "check_in": "2030-03-04", "check_out": "2030-03-08",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", resp.StatusCode, body)
	}

	// confirm and check in
	turl := fmt.Sprintf("%s/v1/reservations/%d/transition", ts.URL, created.ID)
	if resp, body = post(t, turl, map[string]any{"status": "confirmed", "expected_version": 0}); resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm: %d %s", resp.StatusCode, body)
	}
	if resp, body = post(t, turl, map[string]any{"status": "checked_in", "expected_version": 1}); resp.StatusCode != http.StatusOK {
		t.Fatalf("check-in: %d %s", resp.StatusCode, body)
	}

	// a fresh index rebuilt from MySQL still carries the occupied interval
	again, err := app.BuildIndex(ctx, repo)
	if err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	stay, _ := domain.ParseDateRange("2030-03-01", "2030-03-05")
	if again.IsFree(101, stay) {
		t.Fatalf("rebuilt index lost the reservation")
	}
}
