package pagination

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakePages struct {
	total   int
	failOn  int
	delay   time.Duration
	calls   atomic.Int32
	mu      sync.Mutex
	visited []int
}

func (f *fakePages) FetchPage(ctx context.Context, _ string, page int) ([]string, int, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.visited = append(f.visited, page)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
	if page == f.failOn {
		return nil, 0, errors.New("upstream exploded")
	}
	return []string{fmt.Sprintf("p%d-a", page), fmt.Sprintf("p%d-b", page)}, f.total, nil
}

func TestBatchFetcher_PageOrder(t *testing.T) {
	pages := &fakePages{total: 5, delay: time.Millisecond}
	bf := NewBatchFetcher[string](pages, BatchConfig{MaxConcurrency: 3}, zerolog.Nop())

	items, err := bf.FetchAll(context.Background(), "/feeds/comets")
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	var want []string
	for p := 1; p <= 5; p++ {
		want = append(want, fmt.Sprintf("p%d-a", p), fmt.Sprintf("p%d-b", p))
	}
	if !reflect.DeepEqual(items, want) {
		t.Errorf("items = %v, want %v", items, want)
	}
	if got := pages.calls.Load(); got != 5 {
		t.Errorf("calls = %d, want 5", got)
	}
}

func TestBatchFetcher_SinglePage(t *testing.T) {
	pages := &fakePages{total: 1}
	bf := NewBatchFetcher[string](pages, BatchConfig{}, zerolog.Nop())

	items, err := bf.FetchAll(context.Background(), "/feeds/moons")
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(items) != 2 {
		t.Errorf("len(items) = %d, want 2", len(items))
	}
}

func TestBatchFetcher_MaxPages(t *testing.T) {
	pages := &fakePages{total: 10}
	bf := NewBatchFetcher[string](pages, BatchConfig{MaxPages: 3}, zerolog.Nop())

	items, err := bf.FetchAll(context.Background(), "/feeds/asteroids")
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(items) != 6 {
		t.Errorf("len(items) = %d, want 6", len(items))
	}
	if got := pages.calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestBatchFetcher_ErrorDiscardsPartialResults(t *testing.T) {
	pages := &fakePages{total: 6, failOn: 3}
	bf := NewBatchFetcher[string](pages, BatchConfig{MaxConcurrency: 2}, zerolog.Nop())

	items, err := bf.FetchAll(context.Background(), "/feeds/comets")
	if err == nil {
		t.Fatal("FetchAll() expected error")
	}
	if items != nil {
		t.Errorf("items = %v, want nil", items)
	}
}

func TestBatchFetcher_FirstPageError(t *testing.T) {
	pages := &fakePages{total: 4, failOn: 1}
	bf := NewBatchFetcher[string](pages, BatchConfig{}, zerolog.Nop())

	if _, err := bf.FetchAll(context.Background(), "/feeds/comets"); err == nil {
		t.Fatal("FetchAll() expected error")
	}
	if got := pages.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestBatchFetcher_Cancelled(t *testing.T) {
	pages := &fakePages{total: 20, delay: 50 * time.Millisecond}
	bf := NewBatchFetcher[string](pages, BatchConfig{MaxConcurrency: 2}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 75*time.Millisecond)
	defer cancel()

	if _, err := bf.FetchAll(ctx, "/feeds/comets"); err == nil {
		t.Fatal("FetchAll() expected error after cancellation")
	}
}
