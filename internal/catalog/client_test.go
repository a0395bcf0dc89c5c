package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"pokeindex/pkg/domain"
)

type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newTestClient(t *testing.T, baseURL string, cfg Config, s *recordingSleeper) *Client {
	t.Helper()
	cfg.BaseURL = baseURL
	return NewClient(cfg, WithSleeper(s.sleep))
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return data
}

func TestRetryExhaustionAttemptsAndDelays(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := &recordingSleeper{}
	c := newTestClient(t, srv.URL, Config{MaxRetries: 3, BackoffFactor: 0.3}, s)
	_, err := c.FetchDocument(context.Background(), srv.URL+"/pokemon/1")

	var fatal *domain.FatalFetchError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected FatalFetchError, got %v", err)
	}
	if fatal.Attempts != 3 || fatal.Status != http.StatusServiceUnavailable {
		t.Fatalf("unexpected fatal error %+v", fatal)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected exactly 3 requests, got %d", got)
	}
	if len(s.delays) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %v", s.delays)
	}
	for i := 1; i < len(s.delays); i++ {
		if s.delays[i] <= s.delays[i-1] {
			t.Fatalf("delays not strictly increasing: %v", s.delays)
		}
	}
	if s.delays[0] != 300*time.Millisecond {
		t.Fatalf("expected first delay 300ms, got %v", s.delays[0])
	}
}

func TestRetryRecoversAfterTransientFailure(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"id":1,"name":"bulbasaur"}`))
	}))
	defer srv.Close()

	s := &recordingSleeper{}
	c := newTestClient(t, srv.URL, Config{MaxRetries: 5, BackoffFactor: 0.3, Delay: 50 * time.Millisecond}, s)
	body, err := c.FetchDocument(context.Background(), srv.URL+"/pokemon/1")
	if err != nil {
		t.Fatalf("FetchDocument: %v", err)
	}
	if string(body) != `{"id":1,"name":"bulbasaur"}` {
		t.Fatalf("unexpected body %s", body)
	}
	want := []time.Duration{300 * time.Millisecond, 50 * time.Millisecond}
	if len(s.delays) != 2 || s.delays[0] != want[0] || s.delays[1] != want[1] {
		t.Fatalf("expected backoff then rate delay %v, got %v", want, s.delays)
	}
}

func TestRetryAfterOnlyLengthensDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := &recordingSleeper{}
	c := newTestClient(t, srv.URL, Config{MaxRetries: 2, BackoffFactor: 0.3}, s)
	if _, err := c.FetchDocument(context.Background(), srv.URL+"/x"); err == nil {
		t.Fatalf("expected error")
	}
	if len(s.delays) != 1 || s.delays[0] != 7*time.Second {
		t.Fatalf("expected Retry-After delay, got %v", s.delays)
	}

	c = newTestClient(t, srv.URL, Config{MaxRetries: 2, BackoffFactor: 10}, s)
	s.delays = nil
	_, _ = c.FetchDocument(context.Background(), srv.URL+"/x")
	if len(s.delays) != 1 || s.delays[0] != 10*time.Second {
		t.Fatalf("expected computed backoff to win, got %v", s.delays)
	}
}

func TestBackoffCappedAtMax(t *testing.T) {
	c := NewClient(Config{BackoffFactor: 1, MaxBackoff: 5 * time.Second})
	if got := c.backoff(10, 0); got != 5*time.Second {
		t.Fatalf("expected cap, got %v", got)
	}
	if got := c.backoff(2, 0); got != 2*time.Second {
		t.Fatalf("expected 2s, got %v", got)
	}
}

func TestNonRetryableStatusFailsImmediately(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	s := &recordingSleeper{}
	c := newTestClient(t, srv.URL, Config{MaxRetries: 5}, s)
	_, err := c.FetchDocument(context.Background(), srv.URL+"/pokemon/missingno")
	var fatal *domain.FatalFetchError
	if !errors.As(err, &fatal) || fatal.Status != http.StatusNotFound {
		t.Fatalf("expected 404 fatal error, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 || len(s.delays) != 0 {
		t.Fatalf("expected single attempt without sleeps, hits=%d delays=%v", hits, s.delays)
	}
}

func TestMalformedBodyIsParseErrorWithoutRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"id":`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{MaxRetries: 5}, &recordingSleeper{})
	_, err := c.FetchDocument(context.Background(), srv.URL+"/pokemon/1")
	var perr *domain.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if _, err := c.ListPage(context.Background(), 0, 10); !errors.As(err, &perr) {
		t.Fatalf("expected listing ParseError, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("parse failures must not retry, hits=%d", hits)
	}
}

func TestCancelledContextStopsBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(Config{BaseURL: srv.URL, MaxRetries: 5, BackoffFactor: 0.3}, WithSleeper(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))
	_, err := c.FetchDocument(ctx, srv.URL+"/pokemon/1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestRequestHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != DefaultUserAgent {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write(readFixture(t, "pokemon_bulbasaur.json"))
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL, Config{}, &recordingSleeper{})
	if _, err := c.FetchDocument(context.Background(), c.EntityURL("bulbasaur")); err != nil {
		t.Fatalf("FetchDocument: %v", err)
	}
}

func TestClampPageSize(t *testing.T) {
	cases := map[int]int{-3: 1, 0: 1, 1: 1, 200: 200, 500: 500, 501: 500, 10000: 500}
	for in, want := range cases {
		if got := ClampPageSize(in); got != want {
			t.Fatalf("ClampPageSize(%d)=%d want %d", in, got, want)
		}
	}
	c := NewClient(Config{BaseURL: "http://api/"})
	if got := c.PageURL(40, 9000); got != "http://api/pokemon?limit=500&offset=40" {
		t.Fatalf("unexpected page url %s", got)
	}
}

// listingServer serves total entities paginated by the requested limit.
func listingServer(t *testing.T, total int, hits *int32) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		end := offset + limit
		if end > total {
			end = total
		}
		results := ""
		for i := offset; i < end; i++ {
			if results != "" {
				results += ","
			}
			results += fmt.Sprintf(`{"name":"mon-%d","url":"%s/pokemon/%d/"}`, i+1, srv.URL, i+1)
		}
		next := "null"
		if end < total {
			next = fmt.Sprintf(`"%s/pokemon?offset=%d&limit=%d"`, srv.URL, end, limit)
		}
		_, _ = fmt.Fprintf(w, `{"count":%d,"next":%s,"results":[%s]}`, total, next, results)
	}))
	return srv
}

func drain(t *testing.T, src TargetSource) []Target {
	t.Helper()
	var out []Target
	for {
		tg, ok, err := src.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, tg)
	}
}

func TestCrawlYieldsEveryEntityOnce(t *testing.T) {
	var hits int32
	srv := listingServer(t, 10, &hits)
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{}, &recordingSleeper{})
	got := drain(t, NewTargetSource(c, Selection{PageSize: 3}))
	if len(got) != 10 {
		t.Fatalf("expected 10 targets, got %d", len(got))
	}
	seen := map[string]bool{}
	for _, tg := range got {
		if seen[tg.Identifier] {
			t.Fatalf("duplicate target %s", tg.Identifier)
		}
		seen[tg.Identifier] = true
	}
	if atomic.LoadInt32(&hits) != 4 {
		t.Fatalf("expected 4 listing calls, got %d", hits)
	}
}

func TestCrawlHonoursLimit(t *testing.T) {
	var hits int32
	srv := listingServer(t, 10, &hits)
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{}, &recordingSleeper{})
	got := drain(t, NewTargetSource(c, Selection{PageSize: 3, Limit: 4}))
	if len(got) != 4 {
		t.Fatalf("expected 4 targets, got %d", len(got))
	}
	if got[3].Identifier != "mon-4" {
		t.Fatalf("unexpected last target %+v", got[3])
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected 2 listing calls, got %d", hits)
	}

	got = drain(t, NewTargetSource(c, Selection{PageSize: 3, Offset: 8}))
	if len(got) != 2 || got[0].Identifier != "mon-9" {
		t.Fatalf("unexpected offset crawl %+v", got)
	}
}

// cyclicLister serves pages whose next cursors loop back.
type cyclicLister struct {
	pages map[string]Page
	calls int
}

func (l *cyclicLister) PageURL(_, _ int) string { return "page-a" }

func (l *cyclicLister) ListPageURL(_ context.Context, pageURL string) (Page, error) {
	l.calls++
	if l.calls > 10 {
		return Page{}, fmt.Errorf("crawl did not stop at %s", pageURL)
	}
	return l.pages[pageURL], nil
}

func TestCrawlStopsOnCursorCycle(t *testing.T) {
	lister := &cyclicLister{pages: map[string]Page{
		"page-a": {Entries: []Target{{Identifier: "a1"}, {Identifier: "a2"}}, Next: "page-b"},
		"page-b": {Entries: []Target{{Identifier: "b1"}}, Next: "page-a"},
	}}
	got := drain(t, NewCrawlSource(lister, 0, 2, 0))
	ids := make([]string, 0, len(got))
	for _, tg := range got {
		ids = append(ids, tg.Identifier)
	}
	if diff := cmp.Diff([]string{"a1", "a2", "b1"}, ids); diff != "" {
		t.Fatalf("targets mismatch (-want +got):\n%s", diff)
	}
	if lister.calls != 2 {
		t.Fatalf("expected 2 listing calls, got %d", lister.calls)
	}
}

func TestCrawlListingFailureSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL, Config{}, &recordingSleeper{})
	src := NewTargetSource(c, Selection{PageSize: 3})
	if _, _, err := src.Next(context.Background()); err == nil {
		t.Fatalf("expected listing error")
	}
	if _, ok, err := src.Next(context.Background()); ok || err != nil {
		t.Fatalf("expected exhausted source after failure, ok=%v err=%v", ok, err)
	}
}

func TestExplicitSourceNormalizesWithoutListing(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{}, &recordingSleeper{})
	got := drain(t, NewTargetSource(c, Selection{Names: []string{" Pikachu", "", "pikachu", "EEVEE ", "25"}}))
	want := []string{"pikachu", "eevee", "25"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %+v", want, got)
	}
	for i, id := range want {
		if got[i].Identifier != id || got[i].URL != srv.URL+"/pokemon/"+id {
			t.Fatalf("target %d = %+v", i, got[i])
		}
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("explicit mode must not call the listing endpoint")
	}
}
