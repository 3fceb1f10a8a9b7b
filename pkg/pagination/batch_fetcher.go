package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// BatchConfig holds batch fetcher configuration.
type BatchConfig struct {
	// MaxConcurrency is the maximum number of parallel page requests.
	MaxConcurrency int

	// Timeout bounds a single page fetch, including its retries.
	Timeout time.Duration

	// MaxPages caps how many upstream pages are collected. Feeds advertising
	// more pages are truncated.
	MaxPages int
}

// DefaultBatchConfig returns safe defaults for upstream feeds.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
		MaxPages:       50,
	}
}

// PageFetcher fetches a single page of a page-numbered upstream resource and
// reports the total page count advertised by the upstream.
type PageFetcher[T any] interface {
	FetchPage(ctx context.Context, endpoint string, pageNum int) (items []T, totalPages int, err error)
}

// PageResult is the result of fetching a single page.
type PageResult[T any] struct {
	PageNumber int
	Items      []T
	Err        error
}

// BatchFetcher collects every page of an upstream resource in parallel.
type BatchFetcher[T any] struct {
	fetcher PageFetcher[T]
	config  BatchConfig
	logger  zerolog.Logger
}

// NewBatchFetcher creates a batch fetcher.
func NewBatchFetcher[T any](fetcher PageFetcher[T], config BatchConfig, logger zerolog.Logger) *BatchFetcher[T] {
	defaults := DefaultBatchConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}

	return &BatchFetcher[T]{
		fetcher: fetcher,
		config:  config,
		logger:  logger,
	}
}

// FetchAll fetches page 1 to learn the page count, then the remaining pages
// with a bounded worker pool. Items are returned in page order.
//
// The first failing page cancels the outstanding work and its error is
// returned; partial results are discarded so callers never serve a feed with
// silent holes.
func (bf *BatchFetcher[T]) FetchAll(ctx context.Context, endpoint string) ([]T, error) {
	start := time.Now()

	firstCtx, cancelFirst := context.WithTimeout(ctx, bf.config.Timeout)
	first, totalPages, err := bf.fetcher.FetchPage(firstCtx, endpoint, 1)
	cancelFirst()
	if err != nil {
		FeedPagesFetched.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch page 1: %w", err)
	}
	FeedPagesFetched.WithLabelValues("ok").Inc()

	if totalPages > bf.config.MaxPages {
		bf.logger.Warn().
			Str("endpoint", endpoint).
			Int("total_pages", totalPages).
			Int("max_pages", bf.config.MaxPages).
			Msg("Upstream feed truncated")
		totalPages = bf.config.MaxPages
	}

	if totalPages <= 1 {
		bf.logger.Debug().
			Str("endpoint", endpoint).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return first, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pageQueue := make(chan int)
	results := make(chan PageResult[T], totalPages)

	go func() {
		defer close(pageQueue)
		for page := 2; page <= totalPages; page++ {
			select {
			case pageQueue <- page:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < min(bf.config.MaxConcurrency, totalPages-1); i++ {
		wg.Add(1)
		go bf.worker(ctx, endpoint, pageQueue, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	pages := make([][]T, totalPages+1)
	pages[1] = first
	fetched := 1
	var firstErr error

	for result := range results {
		if result.Err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("fetch page %d: %w", result.PageNumber, result.Err)
				cancel()
			}
			continue
		}
		pages[result.PageNumber] = result.Items
		fetched++
	}

	if firstErr != nil {
		bf.logger.Warn().
			Err(firstErr).
			Str("endpoint", endpoint).
			Int("fetched_pages", fetched).
			Int("total_pages", totalPages).
			Msg("Batch fetch failed")
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil && fetched < totalPages {
		return nil, err
	}

	var items []T
	for _, page := range pages[1:] {
		items = append(items, page...)
	}

	bf.logger.Debug().
		Str("endpoint", endpoint).
		Int("pages", fetched).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return items, nil
}

// worker processes pages from the queue.
func (bf *BatchFetcher[T]) worker(ctx context.Context, endpoint string, pageQueue <-chan int, results chan<- PageResult[T], wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageNum := range pageQueue {
		if ctx.Err() != nil {
			return
		}

		pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		items, _, err := bf.fetcher.FetchPage(pageCtx, endpoint, pageNum)
		cancel()

		if err != nil {
			FeedPagesFetched.WithLabelValues("error").Inc()
		} else {
			FeedPagesFetched.WithLabelValues("ok").Inc()
			pagesProcessed++
		}

		// results is buffered for every page, so this never blocks.
		results <- PageResult[T]{PageNumber: pageNum, Items: items, Err: err}
	}

	bf.logger.Debug().
		Int("worker_id", workerID).
		Int("pages_processed", pagesProcessed).
		Msg("Worker completed")
}
