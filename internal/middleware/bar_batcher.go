package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FxRollup/internal/domain/models"
	domrepo "FxRollup/internal/domain/repository"
)

// BarBatcher sits between the bar feed and the BarStore. Concurrent Append
// calls are merged into one store write of up to maxBars bars or whatever
// arrived within linger. Append returns only after its bars were written,
// so a caller that commits offsets afterwards never loses data.
type BarBatcher struct {
	next    domrepo.BarStore
	metrics domrepo.Metrics
	maxBars int
	linger  time.Duration

	reqCh  chan *appendReq
	stopCh chan struct{}
	doneCh chan struct{}
	mu     sync.Mutex
	state  int // 0 new, 1 running, 2 stopped
}

type appendReq struct {
	bars []models.Bar
	done chan error
}

type BatcherOption func(*BarBatcher)

// WithMaxBatch caps the bars written per store call.
func WithMaxBatch(n int) BatcherOption {
	return func(b *BarBatcher) {
		if n > 0 {
			b.maxBars = n
		}
	}
}

// WithLinger sets how long the first request of a batch waits for company.
func WithLinger(d time.Duration) BatcherOption {
	return func(b *BarBatcher) {
		if d > 0 {
			b.linger = d
		}
	}
}

func NewBarBatcher(next domrepo.BarStore, metrics domrepo.Metrics, opts ...BatcherOption) *BarBatcher {
	b := &BarBatcher{
		next:    next,
		metrics: metrics,
		maxBars: 5000,
		linger:  200 * time.Millisecond,
		reqCh:   make(chan *appendReq, 256),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the flush loop. Before Start and after Stop, Append writes
// straight through.
func (b *BarBatcher) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != 0 {
		return
	}
	b.state = 1
	go b.loop(context.WithoutCancel(ctx))
}

// Stop flushes pending requests and waits for the loop to exit.
func (b *BarBatcher) Stop() {
	b.mu.Lock()
	if b.state != 1 {
		b.state = 2
		b.mu.Unlock()
		return
	}
	b.state = 2
	b.mu.Unlock()
	close(b.stopCh)
	<-b.doneCh
}

func (b *BarBatcher) running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == 1
}

// Append validates bars and waits for them to be written.
func (b *BarBatcher) Append(ctx context.Context, bars []models.Bar) error {
	for i := range bars {
		if err := validateBar(bars[i]); err != nil {
			b.recordError("batcher_validate")
			return err
		}
	}
	if len(bars) == 0 {
		return nil
	}
	if !b.running() {
		return b.next.Append(ctx, bars)
	}

	r := &appendReq{bars: bars, done: make(chan error, 1)}
	select {
	case b.reqCh <- r:
	case <-b.stopCh:
		return b.next.Append(ctx, bars)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-r.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-b.doneCh:
		// The loop drains and answers everything it received before exiting.
		select {
		case err := <-r.done:
			return err
		default:
			return b.next.Append(ctx, bars)
		}
	}
}

func (b *BarBatcher) Scan(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	return b.next.Scan(ctx, symbol, from, to)
}

func (b *BarBatcher) Symbols(ctx context.Context) ([]string, error) {
	return b.next.Symbols(ctx)
}

func (b *BarBatcher) loop(ctx context.Context) {
	defer close(b.doneCh)
	for {
		select {
		case <-b.stopCh:
			b.drain(ctx)
			return
		case r := <-b.reqCh:
			b.flush(ctx, b.collect(r))
		}
	}
}

func (b *BarBatcher) collect(first *appendReq) []*appendReq {
	batch := []*appendReq{first}
	n := len(first.bars)
	timer := time.NewTimer(b.linger)
	defer timer.Stop()
	for n < b.maxBars {
		select {
		case r := <-b.reqCh:
			batch = append(batch, r)
			n += len(r.bars)
		case <-timer.C:
			return batch
		case <-b.stopCh:
			return batch
		}
	}
	return batch
}

func (b *BarBatcher) drain(ctx context.Context) {
	var batch []*appendReq
	for {
		select {
		case r := <-b.reqCh:
			batch = append(batch, r)
		default:
			if len(batch) > 0 {
				b.flush(ctx, batch)
			}
			return
		}
	}
}

func (b *BarBatcher) flush(ctx context.Context, batch []*appendReq) {
	var all []models.Bar
	for _, r := range batch {
		all = append(all, r.bars...)
	}
	start := time.Now()
	err := b.next.Append(ctx, all)
	if b.metrics != nil {
		b.metrics.RecordLatency("bar_batch_flush", time.Since(start).Seconds())
		b.metrics.RecordRows("bar_batch", "1m", len(all))
	}
	if err != nil {
		b.recordError("batcher_flush")
		err = fmt.Errorf("append %d bars: %w", len(all), err)
	}
	for _, r := range batch {
		r.done <- err
	}
}

func (b *BarBatcher) recordError(kind string) {
	if b.metrics != nil {
		b.metrics.RecordError(kind)
	}
}

func validateBar(bar models.Bar) error {
	switch {
	case bar.Symbol == "":
		return fmt.Errorf("bar: symbol empty")
	case bar.Timestamp.IsZero():
		return fmt.Errorf("bar %s: timestamp missing", bar.Symbol)
	case bar.High < bar.Low:
		return fmt.Errorf("bar %s %s: high below low", bar.Symbol, bar.Timestamp.Format(time.RFC3339))
	case bar.Volume < 0:
		return fmt.Errorf("bar %s: negative volume", bar.Symbol)
	}
	return nil
}

var _ domrepo.BarStore = (*BarBatcher)(nil)
