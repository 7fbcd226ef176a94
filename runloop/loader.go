package runloop

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ContextChunk is one ranked unit of retrieved context. Immutable once
// returned by the search collaborator.
type ContextChunk struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	Embedding      []float32 `json:"embedding,omitempty"`
	TokenCount     int       `json:"token_count"`
	RelevanceScore float64   `json:"relevance_score"`
	SourceRef      string    `json:"source_ref,omitempty"`
}

// queryKey computes a deterministic cache key for a query under a token
// budget. The budget is part of the key: chunks selected under one budget
// must never satisfy a lookup made under another.
func queryKey(query string, tokenBudget int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d", strings.TrimSpace(query), tokenBudget)))
	return fmt.Sprintf("%x", h[:16])
}

// ContextLoader retrieves ranked context under a token budget via the
// embedding and search collaborators, caching recent lookups. The cache is
// the only state shared across concurrent requests; everything else here is
// stateless.
type ContextLoader struct {
	embedder Embedder
	searcher Searcher
	cache    *chunkCache
	topK     int
	log      *zap.Logger
}

// NewContextLoader creates a loader with a fixed-capacity LRU cache.
func NewContextLoader(embedder Embedder, searcher Searcher, topK, cacheCapacity int, log *zap.Logger) *ContextLoader {
	if topK <= 0 {
		topK = 10
	}
	if cacheCapacity <= 0 {
		cacheCapacity = 128
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ContextLoader{
		embedder: embedder,
		searcher: searcher,
		cache:    newChunkCache(cacheCapacity),
		topK:     topK,
		log:      log,
	}
}

// Load returns context chunks for the query, in relevance order, accumulated
// until the next chunk would push the running token sum past tokenBudget (the
// overflowing chunk is dropped, not truncated). Collaborator failures degrade
// to an empty result; callers must tolerate zero context.
func (l *ContextLoader) Load(ctx context.Context, query string, tokenBudget int) []ContextChunk {
	key := queryKey(query, tokenBudget)
	if chunks, ok := l.cache.get(key); ok {
		return chunks
	}

	vector, err := l.embedder.Embed(ctx, query)
	if err != nil {
		l.log.Warn("context loading degraded: embedding failed",
			zap.Error(err))
		return nil
	}

	ranked, err := l.searcher.Search(ctx, vector, l.topK)
	if err != nil {
		l.log.Warn("context loading degraded: search failed",
			zap.Error(err))
		return nil
	}

	selected := make([]ContextChunk, 0, len(ranked))
	total := 0
	for _, chunk := range ranked {
		if total+chunk.TokenCount > tokenBudget {
			break
		}
		total += chunk.TokenCount
		selected = append(selected, chunk)
	}

	l.cache.put(key, selected)
	return copyChunks(selected)
}

// CacheStats returns hit/miss statistics for the loader cache.
func (l *ContextLoader) CacheStats() CacheStats {
	return l.cache.stats()
}

func copyChunks(chunks []ContextChunk) []ContextChunk {
	out := make([]ContextChunk, len(chunks))
	copy(out, chunks)
	return out
}

// CacheStats contains context cache statistics.
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Size    int   `json:"size"`
	MaxSize int   `json:"max_size"`
}

// cacheEntry stores cached chunks with their key for LRU bookkeeping.
type cacheEntry struct {
	key    string
	chunks []ContextChunk
}

// chunkCache is a fixed-capacity LRU cache over query keys. A single mutex
// serializes all access: a read refreshes recency order, so reads mutate too.
type chunkCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   []*cacheEntry // oldest at front, newest at back
	maxSize int
	hits    int64
	misses  int64
}

func newChunkCache(maxSize int) *chunkCache {
	return &chunkCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]*cacheEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// get returns a copy of the cached chunks for key, refreshing recency.
func (c *chunkCache) get(key string) ([]ContextChunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.moveToBackLocked(entry)
	return copyChunks(entry.chunks), true
}

// put stores chunks for key, evicting the least-recently-used entry past
// capacity.
func (c *chunkCache) put(key string, chunks []ContextChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		existing.chunks = copyChunks(chunks)
		c.moveToBackLocked(existing)
		return
	}

	for len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.removeLocked(oldest.key)
	}

	entry := &cacheEntry{key: key, chunks: copyChunks(chunks)}
	c.entries[key] = entry
	c.order = append(c.order, entry)
}

func (c *chunkCache) removeLocked(key string) {
	entry, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	for i, e := range c.order {
		if e == entry {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *chunkCache) moveToBackLocked(entry *cacheEntry) {
	for i, e := range c.order {
		if e == entry {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, entry)
}

func (c *chunkCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    len(c.entries),
		MaxSize: c.maxSize,
	}
}
