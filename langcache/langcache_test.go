package langcache

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/minios-linux/leeplate/storage"
)

type fakeLister struct {
	mu    sync.Mutex
	calls int
	langs map[string]string
	err   error
}

func (f *fakeLister) SpokenLanguages(context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.langs, nil
}

func (f *fakeLister) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newCache(lister Lister, store storage.Store, clock *fakeClock) *Cache {
	return New(lister, store, WithClock(clock.Now))
}

func TestFreshRecordServedWithoutNetwork(t *testing.T) {
	lister := &fakeLister{langs: map[string]string{"en": "English", "fr": "French"}}
	store := storage.NewMemory()
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	c := newCache(lister, store, clock)

	ok, err := c.IsSupported(context.Background(), "fr")
	if err != nil || !ok {
		t.Fatalf("IsSupported(fr) = %v, %v; want true, nil", ok, err)
	}
	ok, err = c.IsSupported(context.Background(), "xx")
	if err != nil || ok {
		t.Fatalf("IsSupported(xx) = %v, %v; want false, nil", ok, err)
	}
	if lister.Calls() != 1 {
		t.Fatalf("lister calls = %d, want 1", lister.Calls())
	}
}

func TestTTLBoundary(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	lister := &fakeLister{langs: map[string]string{"en": "English"}}
	store := storage.NewMemory()
	clock := &fakeClock{t: start}
	c := newCache(lister, store, clock)

	if _, err := c.Languages(context.Background()); err != nil {
		t.Fatalf("Languages() error: %v", err)
	}

	clock.t = start.Add(TTL - time.Millisecond)
	if _, err := c.Languages(context.Background()); err != nil {
		t.Fatalf("Languages() at T+TTL-1ms error: %v", err)
	}
	if lister.Calls() != 1 {
		t.Fatalf("lister calls at T+TTL-1ms = %d, want 1 (fresh)", lister.Calls())
	}

	clock.t = start.Add(TTL + time.Millisecond)
	if _, err := c.Languages(context.Background()); err != nil {
		t.Fatalf("Languages() at T+TTL+1ms error: %v", err)
	}
	if lister.Calls() != 2 {
		t.Fatalf("lister calls at T+TTL+1ms = %d, want 2 (stale)", lister.Calls())
	}

	expiry, ok := c.Expiry()
	if !ok || !expiry.Equal(start.Add(TTL+time.Millisecond).Add(TTL)) {
		t.Fatalf("Expiry() = %v, %v; want refreshed expiry", expiry, ok)
	}
}

func TestPersistedRecordShape(t *testing.T) {
	start := time.UnixMilli(1_000)
	lister := &fakeLister{langs: map[string]string{"en": "English"}}
	store := storage.NewMemory()
	c := newCache(lister, store, &fakeClock{t: start})

	if _, err := c.Languages(context.Background()); err != nil {
		t.Fatalf("Languages() error: %v", err)
	}

	raw, ok, err := store.Get("spokenLanguages")
	if err != nil || !ok {
		t.Fatalf("store.Get() = %v, %v", ok, err)
	}
	var doc struct {
		Languages map[string]string `json:"languages"`
		Expiry    int64             `json:"expiry"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if doc.Languages["en"] != "English" {
		t.Fatalf("languages = %v", doc.Languages)
	}
	if want := int64(1_000) + TTL.Milliseconds(); doc.Expiry != want {
		t.Fatalf("expiry = %d, want %d", doc.Expiry, want)
	}
}

func TestSurvivesRestartThroughFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	clock := &fakeClock{t: time.UnixMilli(5_000)}

	first := &fakeLister{langs: map[string]string{"de": "German"}}
	if _, err := newCache(first, storage.Open(path), clock).Languages(context.Background()); err != nil {
		t.Fatalf("Languages() error: %v", err)
	}

	second := &fakeLister{langs: map[string]string{"other": "Other"}}
	ok, err := newCache(second, storage.Open(path), clock).IsSupported(context.Background(), "de")
	if err != nil || !ok {
		t.Fatalf("IsSupported(de) after restart = %v, %v", ok, err)
	}
	if second.Calls() != 0 {
		t.Fatalf("second process called the backend %d times, want 0", second.Calls())
	}
}

func TestRefreshFailurePropagatesWithoutStaleFallback(t *testing.T) {
	start := time.UnixMilli(0)
	lister := &fakeLister{langs: map[string]string{"en": "English"}}
	store := storage.NewMemory()
	clock := &fakeClock{t: start}
	c := newCache(lister, store, clock)

	if _, err := c.Languages(context.Background()); err != nil {
		t.Fatalf("Languages() error: %v", err)
	}

	boom := errors.New("backend down")
	lister.err = boom
	clock.t = start.Add(TTL)

	ok, err := c.IsSupported(context.Background(), "en")
	var fe *FetchError
	if !errors.As(err, &fe) || !errors.Is(err, boom) {
		t.Fatalf("IsSupported() error = %v, want *FetchError wrapping boom", err)
	}
	if ok {
		t.Fatal("IsSupported() = true on fetch failure")
	}
}

func TestMalformedRecordTriggersRefresh(t *testing.T) {
	store := storage.NewMemory()
	if err := store.Set(StorageKey, []byte(`{"languages":"nope","expiry":"x"}`)); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	lister := &fakeLister{langs: map[string]string{"en": "English"}}
	c := newCache(lister, store, &fakeClock{t: time.UnixMilli(0)})

	if ok, err := c.IsSupported(context.Background(), "en"); err != nil || !ok {
		t.Fatalf("IsSupported(en) = %v, %v", ok, err)
	}
	if lister.Calls() != 1 {
		t.Fatalf("lister calls = %d, want 1", lister.Calls())
	}
}

type failingStore struct{ storage.Store }

func (failingStore) Set(string, []byte) error { return errors.New("disk full") }

func TestWriteFailureStillReturnsFreshSet(t *testing.T) {
	lister := &fakeLister{langs: map[string]string{"en": "English"}}
	c := newCache(lister, failingStore{storage.NewMemory()}, &fakeClock{t: time.UnixMilli(0)})

	ok, err := c.IsSupported(context.Background(), "en")
	if err != nil || !ok {
		t.Fatalf("IsSupported(en) = %v, %v; want true, nil", ok, err)
	}
}

func TestInvalidateForcesRefresh(t *testing.T) {
	lister := &fakeLister{langs: map[string]string{"en": "English"}}
	store := storage.NewMemory()
	c := newCache(lister, store, &fakeClock{t: time.UnixMilli(0)})

	if _, err := c.Languages(context.Background()); err != nil {
		t.Fatalf("Languages() error: %v", err)
	}
	if err := c.Invalidate(); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}
	if _, ok := c.Expiry(); ok {
		t.Fatal("Expiry() reports a record after Invalidate")
	}
	if _, err := c.Languages(context.Background()); err != nil {
		t.Fatalf("Languages() error: %v", err)
	}
	if lister.Calls() != 2 {
		t.Fatalf("lister calls = %d, want 2", lister.Calls())
	}

	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if lister.Calls() != 3 {
		t.Fatalf("lister calls after Refresh = %d, want 3", lister.Calls())
	}
}

// gatedLister blocks every call until release is closed.
type gatedLister struct {
	fakeLister
	entered chan struct{}
	release chan struct{}
}

func (g *gatedLister) SpokenLanguages(ctx context.Context) (map[string]string, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.fakeLister.SpokenLanguages(ctx)
}

func TestRefreshDoesNotJoinLanguagesFlight(t *testing.T) {
	lister := &gatedLister{
		fakeLister: fakeLister{langs: map[string]string{"en": "English"}},
		entered:    make(chan struct{}, 2),
		release:    make(chan struct{}),
	}
	c := newCache(lister, storage.NewMemory(), &fakeClock{t: time.UnixMilli(1_700_000_000_000)})

	errs := make(chan error, 2)
	go func() {
		_, err := c.Languages(context.Background())
		errs <- err
	}()
	<-lister.entered

	go func() {
		_, err := c.Refresh(context.Background())
		errs <- err
	}()
	select {
	case <-lister.entered:
	case <-time.After(2 * time.Second):
		close(lister.release)
		t.Fatal("Refresh() joined the Languages flight instead of fetching")
	}

	close(lister.release)
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("lookup error: %v", err)
		}
	}
	if lister.Calls() != 2 {
		t.Fatalf("lister calls = %d, want 2", lister.Calls())
	}
}

func TestSetHasNormalizesCodes(t *testing.T) {
	s := Set{"zh-CN": "Chinese", "en": "English"}
	cases := []struct {
		code string
		want bool
	}{
		{"zh-CN", true},
		{"zh-cn", true},
		{"zh_CN", true},
		{"EN", true},
		{"zh", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := s.Has(tc.code); got != tc.want {
			t.Fatalf("Has(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}

	if got := s.Codes(); len(got) != 2 || got[0] != "en" || got[1] != "zh-CN" {
		t.Fatalf("Codes() = %v", got)
	}
}
