package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/taskboard/internal/models"
)

// source serves a fixed listing in pages of size.
type source struct {
	mu    sync.Mutex
	items []string
	size  int
	calls []int
	fail  bool
}

func (s *source) fetch(_ context.Context, page int) (models.Page[string], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, page)
	if s.fail {
		return models.Page[string]{}, errors.New("unavailable")
	}
	start := page * s.size
	end := start + s.size
	if start > len(s.items) {
		start = len(s.items)
	}
	if end > len(s.items) {
		end = len(s.items)
	}
	pages := (len(s.items) + s.size - 1) / s.size
	return models.Page[string]{
		Items:         append([]string(nil), s.items[start:end]...),
		NumberOfItems: len(s.items),
		NumberOfPages: pages,
	}, nil
}

func items(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("item-%d", i)
	}
	return out
}

func TestLoadMore(t *testing.T) {
	src := &source{items: items(5), size: 2}
	f := New(src.fetch)
	ctx := context.Background()

	assert.True(t, f.HasMore())

	got, err := f.LoadMore(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"item-0", "item-1"}, got)
	assert.Equal(t, 5, f.Total())

	_, err = f.LoadMore(ctx)
	require.NoError(t, err)
	got, err = f.LoadMore(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.False(t, f.HasMore())

	_, err = f.LoadMore(ctx)
	assert.ErrorIs(t, err, ErrNoMorePages)
	assert.Equal(t, []int{0, 1, 2}, src.calls)
}

func TestRefetch_ReloadsLoadedPages(t *testing.T) {
	src := &source{items: items(6), size: 2}
	f := New(src.fetch)
	ctx := context.Background()

	_, err := f.LoadMore(ctx)
	require.NoError(t, err)
	_, err = f.LoadMore(ctx)
	require.NoError(t, err)

	src.mu.Lock()
	src.items[0] = "changed"
	src.calls = nil
	src.mu.Unlock()

	got, err := f.Refetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"changed", "item-1", "item-2", "item-3"}, got)
	assert.ElementsMatch(t, []int{0, 1}, src.calls)
	assert.Equal(t, 2, f.Loaded())
}

func TestRefetch_EmptyFeedLoadsFirstPage(t *testing.T) {
	src := &source{items: items(3), size: 2}
	f := New(src.fetch)

	got, err := f.Refetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"item-0", "item-1"}, got)
}

func TestRefetch_FailureKeepsPages(t *testing.T) {
	src := &source{items: items(3), size: 2}
	f := New(src.fetch)
	ctx := context.Background()

	_, err := f.LoadMore(ctx)
	require.NoError(t, err)

	src.fail = true
	_, err = f.Refetch(ctx)
	require.Error(t, err)
	assert.Equal(t, []string{"item-0", "item-1"}, f.Items())
}

func TestRefetch_ListingShrank(t *testing.T) {
	src := &source{items: items(4), size: 2}
	f := New(src.fetch)
	ctx := context.Background()

	_, _ = f.LoadMore(ctx)
	_, _ = f.LoadMore(ctx)

	src.mu.Lock()
	src.items = items(1)
	src.mu.Unlock()

	got, err := f.Refetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"item-0"}, got)
	assert.False(t, f.HasMore())
}

func TestReset_DiscardsInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	f := New(func(ctx context.Context, page int) (models.Page[string], error) {
		close(started)
		<-release
		return models.Page[string]{Items: []string{"old"}, NumberOfItems: 1, NumberOfPages: 1}, nil
	})

	errc := make(chan error, 1)
	go func() {
		_, err := f.LoadMore(context.Background())
		errc <- err
	}()
	<-started

	f.Reset((&source{items: items(1), size: 1}).fetch)
	close(release)

	assert.ErrorIs(t, <-errc, ErrStale)
	assert.Empty(t, f.Items())
	assert.True(t, f.HasMore())
}
