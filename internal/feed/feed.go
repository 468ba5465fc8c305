// Package feed accumulates pages of a listing for infinite scrolling.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fentz26/taskboard/internal/models"
)

var (
	// ErrNoMorePages is returned by LoadMore after the last page.
	ErrNoMorePages = errors.New("no more pages")
	// ErrStale is returned when the feed was reset while a fetch was out.
	ErrStale = errors.New("feed reset during fetch")
)

// FetchFunc loads one 0-based page.
type FetchFunc[T any] func(ctx context.Context, page int) (models.Page[T], error)

// Feed holds the pages loaded so far. It is safe for concurrent use.
type Feed[T any] struct {
	fetch FetchFunc[T]

	mu       sync.Mutex
	pages    [][]T
	total    int
	numPages int
	gen      uint64
}

// New creates an empty feed backed by fetch.
func New[T any](fetch FetchFunc[T]) *Feed[T] {
	return &Feed[T]{fetch: fetch, numPages: -1}
}

// Reset drops every loaded page and switches to a new source. Fetches
// still in flight for the old source are discarded.
func (f *Feed[T]) Reset(fetch FetchFunc[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fetch != nil {
		f.fetch = fetch
	}
	f.pages = nil
	f.total = 0
	f.numPages = -1
	f.gen++
}

// LoadMore fetches the page after the last loaded one and returns all
// items loaded so far.
func (f *Feed[T]) LoadMore(ctx context.Context) ([]T, error) {
	f.mu.Lock()
	next := len(f.pages)
	if f.numPages >= 0 && next >= f.numPages {
		f.mu.Unlock()
		return nil, ErrNoMorePages
	}
	gen, fetch := f.gen, f.fetch
	f.mu.Unlock()

	page, err := fetch(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("load page %d: %w", next, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return nil, ErrStale
	}
	if next != len(f.pages) {
		// A concurrent LoadMore already appended this page.
		return f.itemsLocked(), nil
	}
	f.pages = append(f.pages, page.Items)
	f.total = page.NumberOfItems
	f.numPages = page.NumberOfPages
	return f.itemsLocked(), nil
}

// Refetch reloads every page loaded so far, or the first page when none
// is, and resolves with the refreshed items. The loaded pages are only
// replaced when every page succeeds.
func (f *Feed[T]) Refetch(ctx context.Context) ([]T, error) {
	f.mu.Lock()
	count := len(f.pages)
	if count == 0 {
		count = 1
	}
	gen, fetch := f.gen, f.fetch
	f.mu.Unlock()

	pages := make([]models.Page[T], count)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		g.Go(func() error {
			p, err := fetch(gctx, i)
			if err != nil {
				return fmt.Errorf("refetch page %d: %w", i, err)
			}
			pages[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return nil, ErrStale
	}
	last := pages[len(pages)-1]
	f.pages = f.pages[:0]
	for _, p := range pages {
		if len(p.Items) == 0 && len(f.pages) > 0 {
			// The listing shrank below what was loaded.
			break
		}
		f.pages = append(f.pages, p.Items)
	}
	f.total = last.NumberOfItems
	f.numPages = last.NumberOfPages
	return f.itemsLocked(), nil
}

// Items returns every item loaded so far.
func (f *Feed[T]) Items() []T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.itemsLocked()
}

// HasMore reports whether LoadMore can fetch another page.
func (f *Feed[T]) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.numPages < 0 || len(f.pages) < f.numPages
}

// Total is the item count reported by the most recent page.
func (f *Feed[T]) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

// Loaded is the number of pages held.
func (f *Feed[T]) Loaded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pages)
}

func (f *Feed[T]) itemsLocked() []T {
	var out []T
	for _, p := range f.pages {
		out = append(out, p...)
	}
	return out
}
