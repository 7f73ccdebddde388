// Package audiocache memoizes synthesized speech keyed by (language, text).
//
// Identical (language, text) pairs always synthesize identical audio, so
// entries never go stale: the cache is unbounded, never evicts, and lives
// as long as the process. At most one synthesis per key is in flight;
// concurrent callers for the same key share its result.
package audiocache

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Synthesizer produces speech audio for text in lang.
type Synthesizer interface {
	Speak(ctx context.Context, text, lang string) ([]byte, error)
}

// SynthesizerFunc adapts a function to Synthesizer.
type SynthesizerFunc func(ctx context.Context, text, lang string) ([]byte, error)

// Speak implements Synthesizer.
func (f SynthesizerFunc) Speak(ctx context.Context, text, lang string) ([]byte, error) {
	return f(ctx, text, lang)
}

type key struct {
	lang string
	text string
}

// flightKey is the singleflight key; NUL cannot appear in a language code.
func (k key) flightKey() string {
	return k.lang + "\x00" + k.text
}

// Stats reports cache effectiveness.
type Stats struct {
	Entries int
	Hits    int
	Misses  int
}

// Cache is an in-memory audio cache. It is safe for concurrent use.
// Returned slices are shared with the cache and must not be modified.
type Cache struct {
	synth Synthesizer
	log   *zap.Logger

	mu      sync.RWMutex
	entries map[key][]byte
	hits    int
	misses  int

	group singleflight.Group
}

// New returns an empty cache backed by synth. A nil logger disables logging.
func New(synth Synthesizer, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		synth:   synth,
		log:     log.Named("audiocache"),
		entries: make(map[key][]byte),
	}
}

// Lookup returns cached audio without touching the network.
func (c *Cache) Lookup(text, lang string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	audio, ok := c.entries[key{lang: lang, text: text}]
	return audio, ok
}

// Get returns audio for (text, lang), synthesizing it on a miss.
// Failed or empty syntheses are not stored.
func (c *Cache) Get(ctx context.Context, text, lang string) ([]byte, error) {
	k := key{lang: lang, text: text}

	c.mu.Lock()
	if audio, ok := c.entries[k]; ok {
		c.hits++
		c.mu.Unlock()
		return audio, nil
	}
	c.misses++
	c.mu.Unlock()

	// The flight outlives a caller that gives up, so joined callers and the
	// cache still get its result.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(k.flightKey(), func() (any, error) {
		// A caller that lost the race to an earlier flight finds the entry here.
		if audio, ok := c.Lookup(text, lang); ok {
			return audio, nil
		}

		c.log.Debug("synthesizing", zap.String("lang", lang), zap.Int("chars", len(text)))
		audio, err := c.synth.Speak(flightCtx, text, lang)
		if err != nil {
			return nil, err
		}
		if len(audio) > 0 {
			c.mu.Lock()
			c.entries[k] = audio
			c.mu.Unlock()
		}
		return audio, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			c.log.Debug("synthesis failed", zap.String("lang", lang), zap.Error(res.Err))
			return nil, res.Err
		}
		if res.Shared {
			c.log.Debug("joined in-flight synthesis", zap.String("lang", lang))
		}
		audio, _ := res.Val.([]byte)
		return audio, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}
