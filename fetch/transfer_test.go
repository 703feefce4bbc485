package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// rangeServer serves payload with byte-range support and records requests.
type rangeServer struct {
	payload  []byte
	requests atomic.Int64
	ranges   []string // Range headers seen, in order
}

func (s *rangeServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		rng := r.Header.Get("Range")
		s.ranges = append(s.ranges, rng)
		if rng == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(s.payload)))
			w.WriteHeader(http.StatusOK)
			w.Write(s.payload)
			return
		}
		var offset int64
		if _, err := fmt.Sscanf(rng, "bytes=%d-", &offset); err != nil || offset >= int64(len(s.payload)) {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		tail := s.payload[offset:]
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, len(s.payload)-1, len(s.payload)))
		w.Header().Set("Content-Length", strconv.Itoa(len(tail)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(tail)
	}
}

func testClient(t *testing.T, opts Options) (*Client, *[]time.Duration) {
	t.Helper()
	if opts.Jitter == 0 {
		opts.Jitter = -1 // deterministic schedule
	}
	c := NewClient(opts)
	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, &sleeps
}

func TestFetchWholeFile(t *testing.T) {
	srv := &rangeServer{payload: []byte("the quick brown fox jumps over the lazy dog")}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "artifact.zip")
	c, _ := testClient(t, Options{MaxAttempts: 3})

	res, err := c.Fetch(context.Background(), ts.URL, dest)
	if err != nil {
		t.Fatal(err)
	}
	if res.Size != int64(len(srv.payload)) {
		t.Errorf("size = %d, want %d", res.Size, len(srv.payload))
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Attempts)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != string(srv.payload) {
		t.Errorf("content mismatch: %q", got)
	}
}

func TestFetchResumesFromPartial(t *testing.T) {
	srv := &rangeServer{payload: []byte("0123456789abcdefghij")}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "artifact.zip")
	if err := os.WriteFile(dest, srv.payload[:8], 0o644); err != nil {
		t.Fatal(err)
	}

	c, _ := testClient(t, Options{MaxAttempts: 3})
	res, err := c.Fetch(context.Background(), ts.URL, dest)
	if err != nil {
		t.Fatal(err)
	}
	if res.Size != int64(len(srv.payload)) {
		t.Errorf("size = %d, want %d", res.Size, len(srv.payload))
	}
	if len(srv.ranges) != 1 || srv.ranges[0] != "bytes=8-" {
		t.Errorf("ranges = %v, want [bytes=8-]", srv.ranges)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != string(srv.payload) {
		t.Errorf("resumed content = %q, want %q", got, srv.payload)
	}
}

func TestFetchRetriesWithBackoffSchedule(t *testing.T) {
	var calls atomic.Int64
	payload := []byte("payload after flaky start")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(payload)
	}))
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "artifact.zip")
	c, sleeps := testClient(t, Options{MaxAttempts: 3, BackoffBase: 2, BackoffCap: 60})

	res, err := c.Fetch(context.Background(), ts.URL, dest)
	if err != nil {
		t.Fatal(err)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", *sleeps, want)
	}
	for i, d := range *sleeps {
		if d != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, d, want[i])
		}
	}
}

func TestFetchExhaustsAttempts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "artifact.zip")
	// Pre-existing partial state must survive the failed run.
	if err := os.WriteFile(dest, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, sleeps := testClient(t, Options{MaxAttempts: 3, BackoffBase: 2, BackoffCap: 60})
	_, err := c.Fetch(context.Background(), ts.URL, dest)
	if err == nil {
		t.Fatal("want error after exhausting attempts")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("error = %v, want attempt count", err)
	}
	if !errors.Is(err, ErrServerError) {
		t.Errorf("error = %v, want ErrServerError in chain", err)
	}
	if len(*sleeps) != 2 {
		t.Errorf("sleeps = %v, want 2 backoffs for 3 attempts", *sleeps)
	}
	got, readErr := os.ReadFile(dest)
	if readErr != nil || string(got) != "partial" {
		t.Errorf("partial file not preserved: %q, %v", got, readErr)
	}
}

func TestFetchRangeIgnoredRestartsFromZero(t *testing.T) {
	payload := []byte("full body, range header ignored by this server")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Always 200 with the full object, even for ranged requests.
		w.Write(payload)
	}))
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "artifact.zip")
	if err := os.WriteFile(dest, []byte("stale-partial-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, _ := testClient(t, Options{MaxAttempts: 3})
	res, err := c.Fetch(context.Background(), ts.URL, dest)
	if err != nil {
		t.Fatal(err)
	}
	if res.Size != int64(len(payload)) {
		t.Errorf("size = %d, want %d", res.Size, len(payload))
	}
	got, _ := os.ReadFile(dest)
	if string(got) != string(payload) {
		t.Errorf("content = %q, want full payload", got)
	}
}

func TestFetchRangeNotSatisfiableRestarts(t *testing.T) {
	payload := []byte("short")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Write(payload)
	}))
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "artifact.zip")
	// Partial longer than the object, e.g. the source shrank.
	if err := os.WriteFile(dest, []byte("longer-than-object"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, _ := testClient(t, Options{MaxAttempts: 3})
	res, err := c.Fetch(context.Background(), ts.URL, dest)
	if err != nil {
		t.Fatal(err)
	}
	if res.Size != int64(len(payload)) {
		t.Errorf("size = %d, want %d", res.Size, len(payload))
	}
	got, _ := os.ReadFile(dest)
	if string(got) != string(payload) {
		t.Errorf("content = %q, want %q", got, payload)
	}
}

func TestFetchNotFoundSurfacesSentinel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "artifact.zip")
	c, _ := testClient(t, Options{MaxAttempts: 2})
	_, err := c.Fetch(context.Background(), ts.URL, dest)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
