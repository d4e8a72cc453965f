package vectorstore

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Manager owns the bounded set of loaded per-user Index instances
// (spec §4.2's "at most N user indices resident"). Eviction from the
// LRU persists the dropped index first so no vectors are lost.
type Manager struct {
	root            string
	embedderVersion string

	cacheMu sync.Mutex
	cache   *lru.Cache[int64, *Index]

	locksMu sync.Mutex
	locks   map[int64]*sync.RWMutex

	compactCountThreshold int
	compactRatioThreshold float64
}

// ManagerConfig configures the Manager (spec §6.4 vector_store block).
type ManagerConfig struct {
	Root                  string
	EmbedderVersion       string
	LRUCapacity           int
	CompactCountThreshold int
	CompactRatioThreshold float64
}

// NewManager constructs a Manager with the given LRU capacity. When an
// index is evicted from the cache it is persisted and closed before
// its slot is reused, so callers never lose unpersisted writes.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.LRUCapacity <= 0 {
		cfg.LRUCapacity = 32
	}
	m := &Manager{
		root:                  cfg.Root,
		embedderVersion:       cfg.EmbedderVersion,
		locks:                 make(map[int64]*sync.RWMutex),
		compactCountThreshold: cfg.CompactCountThreshold,
		compactRatioThreshold: cfg.CompactRatioThreshold,
	}

	cache, err := lru.NewWithEvict[int64, *Index](cfg.LRUCapacity, m.onEvict)
	if err != nil {
		return nil, fmt.Errorf("creating LRU cache: %w", err)
	}
	m.cache = cache
	return m, nil
}

// onEvict is invoked synchronously by the LRU on capacity overflow. It
// persists the evicted index's sidecar/meta snapshot before releasing
// the sqlite handle, honoring the durability contract of spec §4.2.
func (m *Manager) onEvict(userID int64, idx *Index) {
	if err := idx.Persist(context.Background()); err != nil {
		// Best-effort: the index db itself already has every committed
		// write; only the sidecar/meta snapshot may be stale on restart.
		_ = err
	}
	idx.Close()
}

// lockFor returns the per-user RWMutex, creating it if needed. Held by
// callers for the duration of a write (Add/RemoveByDocument/Compact)
// or a batch of reads (Search), giving the single-writer-per-user
// discipline spec §5 requires without serializing across users.
func (m *Manager) lockFor(userID int64) *sync.RWMutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[userID]
	if !ok {
		l = &sync.RWMutex{}
		m.locks[userID] = l
	}
	return l
}

// get loads or fetches from cache the Index for userID.
func (m *Manager) get(userID int64) (*Index, error) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	if idx, ok := m.cache.Get(userID); ok {
		return idx, nil
	}
	idx, err := openIndex(m.root, userID, m.embedderVersion)
	if err != nil {
		return nil, err
	}
	m.cache.Add(userID, idx)
	return idx, nil
}

// Add inserts chunks into a user's index, opening or reusing it as
// needed. It never compacts; RemoveByDocument and Compact do.
func (m *Manager) Add(ctx context.Context, userID int64, chunks []Chunk) error {
	lock := m.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	idx, err := m.get(userID)
	if err != nil {
		return err
	}
	return idx.Add(ctx, chunks)
}

// Search runs a KNN query against a user's index under a read lock,
// allowing concurrent searches but excluding concurrent writers.
func (m *Manager) Search(ctx context.Context, userID int64, queryVec []float32, k int) ([]SearchHit, error) {
	lock := m.lockFor(userID)
	lock.RLock()
	defer lock.RUnlock()

	idx, err := m.get(userID)
	if err != nil {
		return nil, err
	}
	return idx.Search(ctx, queryVec, k)
}

// RemoveByDocument soft-deletes a document's chunks and triggers a
// compaction when the deletion ratio or absolute count crosses the
// configured threshold (spec §4.2 "Compact").
func (m *Manager) RemoveByDocument(ctx context.Context, userID, documentID int64) error {
	lock := m.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	idx, err := m.get(userID)
	if err != nil {
		return err
	}
	deleted, total, err := idx.RemoveByDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if m.shouldCompact(deleted, total) {
		return idx.compact(ctx)
	}
	return nil
}

func (m *Manager) shouldCompact(deleted, total int) bool {
	if total == 0 {
		return false
	}
	if m.compactCountThreshold > 0 && deleted >= m.compactCountThreshold {
		return true
	}
	ratio := float64(deleted) / float64(total)
	return m.compactRatioThreshold > 0 && ratio >= m.compactRatioThreshold
}

// Compact forces a rebuild of a user's index, discarding tombstoned
// rows (spec §4.2 "Compact": rebuild from surviving vectors).
func (m *Manager) Compact(ctx context.Context, userID int64) error {
	lock := m.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	idx, err := m.get(userID)
	if err != nil {
		return err
	}
	return idx.compact(ctx)
}

// Persist flushes a single user's index snapshot without evicting it
// from the cache.
func (m *Manager) Persist(ctx context.Context, userID int64) error {
	lock := m.lockFor(userID)
	lock.RLock()
	defer lock.RUnlock()

	idx, err := m.get(userID)
	if err != nil {
		return err
	}
	return idx.Persist(ctx)
}

// Stats reports the vector/deleted counts for a user's index.
func (m *Manager) Stats(userID int64) (vectorCount, deletedCount int, err error) {
	lock := m.lockFor(userID)
	lock.RLock()
	defer lock.RUnlock()

	idx, err := m.get(userID)
	if err != nil {
		return 0, 0, err
	}
	vc, dc := idx.Stats()
	return vc, dc, nil
}

// Close persists and closes every currently loaded index. Called on
// graceful shutdown (spec §7).
func (m *Manager) Close(ctx context.Context) error {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	var firstErr error
	for _, userID := range m.cache.Keys() {
		idx, ok := m.cache.Peek(userID)
		if !ok {
			continue
		}
		if err := idx.Persist(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		idx.Close()
	}
	m.cache.Purge()
	return firstErr
}
