// Package langcache memoizes the set of languages the speech backend can
// synthesize. The set is persisted under a single storage key with an
// expiry seven days after it was fetched, so it survives restarts and is
// refreshed lazily once stale.
package langcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/minios-linux/leeplate/storage"
)

const (
	// StorageKey is the persisted record's key.
	StorageKey = "spokenLanguages"
	// TTL is how long a fetched language set stays fresh.
	TTL = 7 * 24 * time.Hour
)

// Lister fetches the supported languages (code -> display name).
type Lister interface {
	SpokenLanguages(ctx context.Context) (map[string]string, error)
}

// FetchError reports a failed refresh. There is no stale fallback:
// callers pick a safe default such as disabling audio controls.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching spoken languages: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// record is the persisted shape: {"languages": {...}, "expiry": <epoch-ms>}.
type record struct {
	Languages map[string]string `json:"languages"`
	Expiry    int64             `json:"expiry"`
}

// Set is a set of supported language codes with their display names.
type Set map[string]string

// Has reports whether code is supported. Codes match exactly first, then
// ignoring case and the "_" / "-" distinction.
func (s Set) Has(code string) bool {
	if _, ok := s[code]; ok {
		return true
	}
	want := normalize(code)
	if want == "" {
		return false
	}
	for c := range s {
		if normalize(c) == want {
			return true
		}
	}
	return false
}

// Codes returns the sorted language codes.
func (s Set) Codes() []string {
	codes := make([]string, 0, len(s))
	for c := range s {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

func normalize(code string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(code), "_", "-"))
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Cache) {
		if log != nil {
			c.log = log.Named("langcache")
		}
	}
}

// Cache is the capability cache. It is safe for concurrent use.
type Cache struct {
	lister Lister
	store  storage.Store
	now    func() time.Time
	log    *zap.Logger
	group  singleflight.Group
}

// New returns a cache reading and writing records in store.
func New(lister Lister, store storage.Store, opts ...Option) *Cache {
	c := &Cache{
		lister: lister,
		store:  store,
		now:    time.Now,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsSupported reports whether the speech backend supports code.
func (c *Cache) IsSupported(ctx context.Context, code string) (bool, error) {
	set, err := c.Languages(ctx)
	if err != nil {
		return false, err
	}
	return set.Has(code), nil
}

// Languages returns the supported set, from storage while fresh and from
// the backend otherwise.
func (c *Cache) Languages(ctx context.Context) (Set, error) {
	if set, ok := c.cached(); ok {
		return set, nil
	}

	v, err, _ := c.group.Do(StorageKey, func() (any, error) {
		// Another flight may have refreshed the record meanwhile.
		if set, ok := c.cached(); ok {
			return set, nil
		}
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(Set), nil
}

// Refresh fetches the set from the backend regardless of freshness.
// Concurrent refreshes share one fetch; they never join a Languages
// flight, which may be satisfied from storage.
func (c *Cache) Refresh(ctx context.Context) (Set, error) {
	v, err, _ := c.group.Do(StorageKey+":refresh", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(Set), nil
}

// Invalidate drops the persisted record.
func (c *Cache) Invalidate() error {
	if err := c.store.Delete(StorageKey); err != nil {
		return fmt.Errorf("deleting %s: %w", StorageKey, err)
	}
	return nil
}

// Expiry returns the persisted record's expiry, if any.
func (c *Cache) Expiry() (time.Time, bool) {
	rec, ok := c.load()
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(rec.Expiry), true
}

// cached returns the stored set when present and fresh: now < expiry.
func (c *Cache) cached() (Set, bool) {
	rec, ok := c.load()
	if !ok {
		return nil, false
	}
	if c.now().UnixMilli() >= rec.Expiry {
		c.log.Debug("spoken languages stale", zap.Time("expiry", time.UnixMilli(rec.Expiry)))
		return nil, false
	}
	return Set(rec.Languages), true
}

// load reads the record. Unreadable or corrupt records count as absent.
func (c *Cache) load() (record, bool) {
	raw, ok, err := c.store.Get(StorageKey)
	if err != nil {
		c.log.Warn("reading spoken languages", zap.Error(err))
		return record{}, false
	}
	if !ok {
		return record{}, false
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil || rec.Languages == nil {
		c.log.Warn("discarding malformed spoken languages record", zap.Error(err))
		return record{}, false
	}
	return rec, true
}

func (c *Cache) refresh(ctx context.Context) (Set, error) {
	langs, err := c.lister.SpokenLanguages(ctx)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	if langs == nil {
		langs = map[string]string{}
	}

	rec := record{
		Languages: langs,
		Expiry:    c.now().Add(TTL).UnixMilli(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", StorageKey, err)
	}
	if err := c.store.Set(StorageKey, data); err != nil {
		// The fresh set is still good for this call.
		c.log.Warn("persisting spoken languages", zap.Error(err))
	}

	c.log.Debug("spoken languages refreshed", zap.Int("count", len(langs)))
	return Set(langs), nil
}
