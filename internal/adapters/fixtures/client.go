// Package fixtures fetches room inventory fixtures, either from a local JSON
// file or over HTTP from a fixture host (the original deployment served them
// as static /data/rooms.json).
package fixtures

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"roomledger/internal/domain"
)

// file wire shape: {"roomTypes":[{...}]}
type roomsFile struct {
	RoomTypes []roomFixture `json:"roomTypes"`
}

type roomFixture struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Price     float64 `json:"price"`
	MaxGuests int     `json:"maxGuests"`
	Available bool    `json:"available"`
}

func (f roomFixture) toRoom() domain.Room {
	typ := f.Type
	if typ == "" {
		// older fixture files only carry a display name
		typ = strings.ToLower(strings.ReplaceAll(f.Name, " ", "_"))
	}
	r := domain.Room{
		ID:          f.ID,
		Type:        typ,
		Capacity:    f.MaxGuests,
		NightlyRate: f.Price,
		Available:   f.Available,
	}
	if f.Name != "" {
		n := f.Name
		r.Name = &n
	}
	return r
}

// Load reads a rooms fixture file from disk.
func Load(path string) ([]domain.Room, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return decode(b)
}

func decode(b []byte) ([]domain.Room, error) {
	var f roomsFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	out := make([]domain.Room, 0, len(f.RoomTypes))
	for _, rf := range f.RoomTypes {
		out = append(out, rf.toRoom())
	}
	return out, nil
}

// Client fetches the fixture over HTTP with client-side rate limiting and
// retries on 429/transient 5xx, honoring Retry-After when provided.
type Client struct {
	url string
	hc  *http.Client
	rl  *rate.Limiter
}

func NewClient(url string, rps int) *Client {
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		url: url,
		hc:  &http.Client{Timeout: 20 * time.Second},
		rl:  rate.NewLimiter(rate.Limit(rps), rps),
	}
}

func (c *Client) Fetch(ctx context.Context) ([]domain.Room, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			return nil, lastErr
		}

		switch resp.StatusCode {
		case http.StatusOK:
			b, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, err
			}
			return decode(b)

		case http.StatusNotFound:
			resp.Body.Close()
			return nil, fmt.Errorf("fixture not found at %s", c.url)

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}
	return nil, lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles each attempt (200ms, 400ms, 800ms...) with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
