//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"roomledger/internal/domain"
	mysqlrepo "roomledger/internal/storage/mysql"
)

// ---------- small helpers ----------
func pstr(s string) *string { return &s }

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

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
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
	return db
}

func mustRange(t *testing.T, in, out string) domain.DateRange {
	t.Helper()
	r, err := domain.ParseDateRange(in, out)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	return r
}

// ---------- the test ----------
func TestRepo_MySQL_LedgerRoundTrip(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	// rooms first, reservations carry an FK
	room := domain.Room{ID: 101, Type: "double", Name: pstr("Standard Double"), Capacity: 2, NightlyRate: 120, Available: true}
	if err := repo.UpsertRoom(ctx, room); err != nil {
		t.Fatalf("UpsertRoom: %v", err)
	}
	// upsert is idempotent
	if err := repo.UpsertRoom(ctx, room); err != nil {
		t.Fatalf("UpsertRoom twice: %v", err)
	}

	got, err := repo.GetRoom(ctx, 101)
	if err != nil || got.Type != "double" || got.Name == nil || *got.Name != "Standard Double" {
		t.Fatalf("GetRoom: %+v %v", got, err)
	}
	if _, err := repo.GetRoom(ctx, 999); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}

	res, err := repo.Append(ctx, domain.Reservation{
		RoomID:  101,
		GuestID: 7,
		Range:   mustRange(t, "2030-03-01", "2030-03-05"),
		Status:  domain.StatusPending,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if res.ID == 0 || res.Version != 0 || res.CreatedAt.IsZero() {
		t.Fatalf("unexpected appended reservation: %+v", res)
	}
	if res.Range.CheckIn.Format(domain.DateFormat) != "2030-03-01" {
		t.Fatalf("range did not round-trip: %s", res.Range)
	}

	// optimistic compare-and-set
	upd, err := repo.CompareAndSetStatus(ctx, res.ID, domain.StatusConfirmed, 0)
	if err != nil {
		t.Fatalf("CAS: %v", err)
	}
	if upd.Status != domain.StatusConfirmed || upd.Version != 1 {
		t.Fatalf("unexpected CAS result: %+v", upd)
	}
	if _, err := repo.CompareAndSetStatus(ctx, res.ID, domain.StatusCancelled, 0); !errors.Is(err, domain.ErrStaleVersion) {
		t.Fatalf("expected ErrStaleVersion, got %v", err)
	}
	if _, err := repo.CompareAndSetStatus(ctx, 9999, domain.StatusCancelled, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// guest listing
	rs, err := repo.ListByGuest(ctx, 7)
	if err != nil || len(rs) != 1 || rs[0].ID != res.ID {
		t.Fatalf("ListByGuest: %+v %v", rs, err)
	}

	// blocking set excludes cancelled rows
	second, err := repo.Append(ctx, domain.Reservation{
		RoomID:  101,
		GuestID: 8,
		Range:   mustRange(t, "2030-03-10", "2030-03-12"),
		Status:  domain.StatusPending,
	})
	if err != nil {
		t.Fatalf("Append second: %v", err)
	}
	if _, err := repo.CompareAndSetStatus(ctx, second.ID, domain.StatusCancelled, 0); err != nil {
		t.Fatalf("cancel second: %v", err)
	}
	blocking, err := repo.ListBlocking(ctx)
	if err != nil {
		t.Fatalf("ListBlocking: %v", err)
	}
	if len(blocking) != 1 || blocking[0].ID != res.ID {
		t.Fatalf("unexpected blocking set: %+v", blocking)
	}
}
