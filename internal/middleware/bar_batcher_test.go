package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FxRollup/internal/domain/models"
	memrepo "FxRollup/internal/repository"
)

type countingStore struct {
	*memrepo.MemoryBarStore
	mu    sync.Mutex
	calls int
	err   error
}

func (s *countingStore) Append(ctx context.Context, bars []models.Bar) error {
	s.mu.Lock()
	s.calls++
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryBarStore.Append(ctx, bars)
}

func (s *countingStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var t0 = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

func bar(minute int) models.Bar {
	return models.Bar{Symbol: "EURUSD", Timestamp: t0.Add(time.Duration(minute) * time.Minute), Open: 1, High: 1.1, Low: 0.9, Close: 1, Volume: 1}
}

func TestBarBatcherMergesConcurrentAppends(t *testing.T) {
	store := &countingStore{MemoryBarStore: memrepo.NewMemoryBarStore()}
	b := NewBarBatcher(store, nil, WithLinger(100*time.Millisecond), WithMaxBatch(1000))
	b.Start(context.Background())
	defer b.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := b.Append(context.Background(), []models.Bar{bar(i)}); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	got, err := b.Scan(context.Background(), "EURUSD", t0, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 20 {
		t.Fatalf("stored %d bars, want 20", len(got))
	}
	if calls := store.callCount(); calls >= 20 {
		t.Fatalf("store called %d times, want fewer than 20", calls)
	}
}

func TestBarBatcherFlushesAtMaxBatch(t *testing.T) {
	store := &countingStore{MemoryBarStore: memrepo.NewMemoryBarStore()}
	b := NewBarBatcher(store, nil, WithLinger(time.Hour), WithMaxBatch(2))
	b.Start(context.Background())
	defer b.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Append(ctx, []models.Bar{bar(0), bar(1)}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if store.callCount() != 1 {
		t.Fatalf("calls = %d, want 1", store.callCount())
	}
}

func TestBarBatcherPropagatesStoreError(t *testing.T) {
	boom := errors.New("clickhouse down")
	store := &countingStore{MemoryBarStore: memrepo.NewMemoryBarStore(), err: boom}
	b := NewBarBatcher(store, nil, WithLinger(time.Millisecond))
	b.Start(context.Background())
	defer b.Stop()

	if err := b.Append(context.Background(), []models.Bar{bar(0)}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
}

func TestBarBatcherRejectsInvalidBars(t *testing.T) {
	store := &countingStore{MemoryBarStore: memrepo.NewMemoryBarStore()}
	b := NewBarBatcher(store, nil)
	bad := bar(0)
	bad.High, bad.Low = 0.9, 1.1
	if err := b.Append(context.Background(), []models.Bar{bar(1), bad}); err == nil {
		t.Fatalf("expected validation error")
	}
	if store.callCount() != 0 {
		t.Fatalf("store called for an invalid batch")
	}
}

func TestBarBatcherWritesThroughWhenStopped(t *testing.T) {
	store := &countingStore{MemoryBarStore: memrepo.NewMemoryBarStore()}
	b := NewBarBatcher(store, nil)
	if err := b.Append(context.Background(), []models.Bar{bar(0)}); err != nil {
		t.Fatalf("append before start: %v", err)
	}
	b.Start(context.Background())
	b.Stop()
	if err := b.Append(context.Background(), []models.Bar{bar(1)}); err != nil {
		t.Fatalf("append after stop: %v", err)
	}
	if store.callCount() != 2 {
		t.Fatalf("calls = %d, want 2", store.callCount())
	}
}
