package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"FxRollup/internal/domain/models"
	"FxRollup/internal/domain/repository"
)

// MemoryBarStore keeps bars per symbol sorted by timestamp.
// Appending an existing (symbol, ts) is a no-op.
type MemoryBarStore struct {
	mu   sync.RWMutex
	bars map[string][]models.Bar
}

func NewMemoryBarStore() *MemoryBarStore {
	return &MemoryBarStore{bars: make(map[string][]models.Bar)}
}

func (s *MemoryBarStore) Append(_ context.Context, bars []models.Bar) error {
	for _, b := range bars {
		if b.Symbol == "" || b.Timestamp.IsZero() {
			return fmt.Errorf("append bar: symbol and timestamp are required")
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range bars {
		b.Timestamp = b.Timestamp.UTC().Truncate(time.Minute)
		series := s.bars[b.Symbol]
		i := sort.Search(len(series), func(i int) bool { return !series[i].Timestamp.Before(b.Timestamp) })
		if i < len(series) && series[i].Timestamp.Equal(b.Timestamp) {
			continue
		}
		series = append(series, models.Bar{})
		copy(series[i+1:], series[i:])
		series[i] = b
		s.bars[b.Symbol] = series
	}
	return nil
}

func (s *MemoryBarStore) Scan(_ context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.bars[symbol]
	lo := 0
	if !from.IsZero() {
		lo = sort.Search(len(series), func(i int) bool { return !series[i].Timestamp.Before(from) })
	}
	hi := len(series)
	if !to.IsZero() {
		hi = sort.Search(len(series), func(i int) bool { return !series[i].Timestamp.Before(to) })
	}
	if lo >= hi {
		return nil, nil
	}
	return append([]models.Bar(nil), series[lo:hi]...), nil
}

func (s *MemoryBarStore) Symbols(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.bars))
	for sym := range s.bars {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}

type rollupKey struct {
	res  repository.Resolution
	mode repository.Mode
}

type bucketKey struct {
	symbol    string
	sessionID int64
	start     int64
}

// MemoryRollupStore holds rollups keyed by resolution and mode.
type MemoryRollupStore struct {
	mu         sync.RWMutex
	rows       map[rollupKey]map[bucketKey]models.ResolutionBucket
	watermarks map[rollupKey]time.Time
}

func NewMemoryRollupStore() *MemoryRollupStore {
	return &MemoryRollupStore{
		rows:       make(map[rollupKey]map[bucketKey]models.ResolutionBucket),
		watermarks: make(map[rollupKey]time.Time),
	}
}

func (s *MemoryRollupStore) Upsert(_ context.Context, res repository.Resolution, mode repository.Mode, rows []models.ResolutionBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := rollupKey{res, mode}
	m, ok := s.rows[k]
	if !ok {
		m = make(map[bucketKey]models.ResolutionBucket)
		s.rows[k] = m
	}
	for _, r := range rows {
		m[bucketKey{r.Symbol, r.SessionID, r.BucketStart.UnixNano()}] = r
	}
	return nil
}

func (s *MemoryRollupStore) Replace(_ context.Context, res repository.Resolution, mode repository.Mode, symbol string, sessions []int64, from, to time.Time, rows []models.ResolutionBucket) error {
	owned := sessionSet(sessions)
	s.mu.Lock()
	defer s.mu.Unlock()
	k := rollupKey{res, mode}
	m, ok := s.rows[k]
	if !ok {
		m = make(map[bucketKey]models.ResolutionBucket)
		s.rows[k] = m
	}
	for key, r := range m {
		if r.Symbol == symbol && owned(r.SessionID) && !r.BucketStart.Before(from) && r.BucketStart.Before(to) {
			delete(m, key)
		}
	}
	for _, r := range rows {
		m[bucketKey{r.Symbol, r.SessionID, r.BucketStart.UnixNano()}] = r
	}
	return nil
}

// sessionSet reports membership in ids; nil ids contains everything.
func sessionSet(ids []int64) func(int64) bool {
	if ids == nil {
		return func(int64) bool { return true }
	}
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(id int64) bool {
		_, ok := set[id]
		return ok
	}
}

func (s *MemoryRollupStore) List(_ context.Context, res repository.Resolution, mode repository.Mode, f repository.BucketFilter) ([]models.ResolutionBucket, error) {
	s.mu.RLock()
	out := make([]models.ResolutionBucket, 0)
	for _, r := range s.rows[rollupKey{res, mode}] {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	models.SortBuckets(out)
	return limitRows(out, f.Limit), nil
}

func (s *MemoryRollupStore) Watermark(_ context.Context, res repository.Resolution, mode repository.Mode) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermarks[rollupKey{res, mode}], nil
}

func (s *MemoryRollupStore) SetWatermark(_ context.Context, res repository.Resolution, mode repository.Mode, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermarks[rollupKey{res, mode}] = t.UTC()
	return nil
}

type memSnapshot struct {
	indexed   atomic.Bool
	populated atomic.Bool
	rows      atomic.Pointer[[]models.ResolutionBucket]
}

// MemorySnapshotStore publishes each snapshot as an immutable slice behind an
// atomic pointer, so readers never wait for a swap.
type MemorySnapshotStore struct {
	mu    sync.Mutex
	snaps map[repository.Resolution]*memSnapshot
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snaps: make(map[repository.Resolution]*memSnapshot)}
}

func (s *MemorySnapshotStore) get(res repository.Resolution) (*memSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[res]
	return snap, ok
}

func (s *MemorySnapshotStore) EnsureSnapshot(_ context.Context, res repository.Resolution) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snaps[res]; ok {
		return false, nil
	}
	snap := &memSnapshot{}
	empty := []models.ResolutionBucket{}
	snap.rows.Store(&empty)
	s.snaps[res] = snap
	return true, nil
}

func (s *MemorySnapshotStore) EnsureIndex(_ context.Context, res repository.Resolution) error {
	snap, ok := s.get(res)
	if !ok {
		return fmt.Errorf("ensure index: snapshot %s does not exist", res)
	}
	snap.indexed.Store(true)
	return nil
}

func (s *MemorySnapshotStore) IsPopulated(_ context.Context, res repository.Resolution) (bool, error) {
	snap, ok := s.get(res)
	return ok && snap.populated.Load(), nil
}

func (s *MemorySnapshotStore) Populate(ctx context.Context, res repository.Resolution, rows []models.ResolutionBucket) error {
	return s.Swap(ctx, res, rows)
}

func (s *MemorySnapshotStore) Swap(_ context.Context, res repository.Resolution, rows []models.ResolutionBucket) error {
	snap, ok := s.get(res)
	if !ok {
		return fmt.Errorf("swap: snapshot %s does not exist", res)
	}
	next := append([]models.ResolutionBucket(nil), rows...)
	// index order: symbol, session, bucket_start descending
	sort.SliceStable(next, func(i, j int) bool {
		a, b := next[i], next[j]
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.SessionName != b.SessionName {
			return a.SessionName < b.SessionName
		}
		if a.SessionID != b.SessionID {
			return a.SessionID < b.SessionID
		}
		return a.BucketStart.After(b.BucketStart)
	})
	snap.rows.Store(&next)
	snap.populated.Store(true)
	return nil
}

func (s *MemorySnapshotStore) Read(_ context.Context, res repository.Resolution, f repository.BucketFilter) ([]models.ResolutionBucket, error) {
	snap, ok := s.get(res)
	if !ok {
		return nil, fmt.Errorf("read: snapshot %s does not exist", res)
	}
	rows := *snap.rows.Load()
	out := make([]models.ResolutionBucket, 0)
	for _, r := range rows {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return limitRows(out, f.Limit), nil
}

// IsIndexed reports whether EnsureIndex ran for res.
func (s *MemorySnapshotStore) IsIndexed(res repository.Resolution) bool {
	snap, ok := s.get(res)
	return ok && snap.indexed.Load()
}

func limitRows(rows []models.ResolutionBucket, limit int) []models.ResolutionBucket {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
