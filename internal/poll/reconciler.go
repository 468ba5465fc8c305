// Package poll keeps the latest delta counts for the query signature the
// dashboard is showing.
//
// Results are cached per signature. Concurrent polls for one signature
// share a single request, and a response is stored only when it belongs
// to the most recent request issued for its signature.
package poll

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/fentz26/taskboard/internal/models"
)

// DefaultCacheSize bounds how many signatures keep a cached response.
const DefaultCacheSize = 64

// PollFunc fetches delta counts for a signature. It must be safe to call
// repeatedly with the same signature.
type PollFunc func(ctx context.Context, sig models.QueryParams) (models.PollResponse, error)

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger used for poll failures.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Reconciler) { r.log = l }
}

// WithCacheSize sets how many signatures are cached.
func WithCacheSize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.size = n
		}
	}
}

type entry struct {
	resp   models.PollResponse
	has    bool
	issued uint64
}

// Reconciler owns the per-signature poll cache.
type Reconciler struct {
	fn    PollFunc
	log   logrus.FieldLogger
	size  int
	group singleflight.Group

	mu         sync.Mutex
	entries    *lru.Cache[models.QueryParams, *entry]
	current    models.QueryParams
	hasCurrent bool
}

// New creates a reconciler around fn.
func New(fn PollFunc, opts ...Option) *Reconciler {
	r := &Reconciler{
		fn:   fn,
		log:  logrus.StandardLogger(),
		size: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	// lru.New only fails for a non-positive size.
	r.entries, _ = lru.New[models.QueryParams, *entry](r.size)
	return r
}

// SetSignature records sig as the signature on screen and reports whether
// it differs from the previous one.
func (r *Reconciler) SetSignature(sig models.QueryParams) bool {
	sig = sig.Normalize()
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := !r.hasCurrent || r.current != sig
	r.current = sig
	r.hasCurrent = true
	return changed
}

// Current returns the signature last passed to SetSignature.
func (r *Reconciler) Current() (models.QueryParams, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.hasCurrent
}

// Reconcile makes sig the current signature. When it changed, or nothing
// is cached for it yet, a poll is issued. The latest known response is
// returned either way.
func (r *Reconciler) Reconcile(ctx context.Context, sig models.QueryParams) (models.PollResponse, bool, error) {
	if !r.SetSignature(sig) {
		if resp, ok := r.Latest(sig); ok {
			return resp, true, nil
		}
	}
	resp, err := r.Poll(ctx, sig)
	if err != nil {
		stale, ok := r.Latest(sig)
		return stale, ok, err
	}
	return resp, true, nil
}

// Poll issues a poll for sig, joining an identical request already in
// flight. On failure the cached value for sig is left untouched.
func (r *Reconciler) Poll(ctx context.Context, sig models.QueryParams) (models.PollResponse, error) {
	sig = sig.Normalize()
	v, err, _ := r.group.Do(sig.Key(), func() (interface{}, error) {
		return r.issue(ctx, sig)
	})
	if err != nil {
		return models.PollResponse{}, err
	}
	return v.(models.PollResponse), nil
}

// Refresh runs refetch and, only once it has returned without error,
// issues a fresh poll for sig. A poll already in flight for sig is not
// joined, since it started before the refetched data existed.
func (r *Reconciler) Refresh(ctx context.Context, sig models.QueryParams, refetch func(context.Context) error) (models.PollResponse, error) {
	if err := refetch(ctx); err != nil {
		return models.PollResponse{}, fmt.Errorf("refetch: %w", err)
	}
	sig = sig.Normalize()
	key := sig.Key()
	r.group.Forget(key)
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		return r.issue(ctx, sig)
	})
	if err != nil {
		return models.PollResponse{}, err
	}
	return v.(models.PollResponse), nil
}

// Latest returns the last response stored for sig, or false when no poll
// for it has succeeded yet.
func (r *Reconciler) Latest(sig models.QueryParams) (models.PollResponse, bool) {
	sig = sig.Normalize()
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries.Peek(sig)
	if !ok || !e.has {
		return models.PollResponse{}, false
	}
	return e.resp, true
}

func (r *Reconciler) issue(ctx context.Context, sig models.QueryParams) (models.PollResponse, error) {
	r.mu.Lock()
	e, ok := r.entries.Get(sig)
	if !ok {
		e = &entry{}
		r.entries.Add(sig, e)
	}
	e.issued++
	seq := e.issued
	r.mu.Unlock()

	resp, err := r.fn(ctx, sig)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"component": "poll",
			"signature": sig.Key(),
		}).WithError(err).Debug("poll failed, keeping previous counts")
		return models.PollResponse{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e.issued == seq {
		e.resp = resp
		e.has = true
		// The entry may have been evicted while the request was out.
		if _, ok := r.entries.Peek(sig); !ok {
			r.entries.Add(sig, e)
		}
	}
	return resp, nil
}
