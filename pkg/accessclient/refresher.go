package accessclient

import (
	"context"
	"sync"
	"time"

	"dataroom-backend/pkg/models"
)

// AccessSource supplies the current capability set for an item. The HTTP
// client is the production implementation; tests inject a scripted fake
// instead of waiting on real timers.
type AccessSource interface {
	FetchAccess(ctx context.Context, itemID string, itemType models.ItemType) (models.AccessCheckResponse, error)
}

// Refresher keeps a Gate's cache approximately fresh by polling.
//
// Approvals are infrequent human-latency events, so a fixed interval plus
// an on-focus refresh is enough; there is no push channel. A failed fetch
// leaves the previous cache entry untouched, and unknown items stay at the
// gate's fail-closed default. After Stop returns, no further cache writes
// happen.
type Refresher struct {
	source   AccessSource
	gate     *Gate
	interval time.Duration

	mu      sync.Mutex
	watched map[string]Item
	cancel  context.CancelFunc
	stopped bool

	focusC chan struct{}
	wg     sync.WaitGroup
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithInterval overrides the default 10s poll interval.
func WithInterval(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		if d > 0 {
			r.interval = d
		}
	}
}

// NewRefresher creates a refresher feeding the given gate from the source.
func NewRefresher(source AccessSource, gate *Gate, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		source:   source,
		gate:     gate,
		interval: 10 * time.Second,
		watched:  make(map[string]Item),
		focusC:   make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Watch adds items to the poll set and fetches them immediately on the
// next cycle. Watching an item twice is a no-op.
func (r *Refresher) Watch(items ...Item) {
	r.mu.Lock()
	for _, it := range items {
		r.watched[it.key()] = it
	}
	r.mu.Unlock()
}

// Unwatch removes items from the poll set and drops their cache entries,
// returning them to the fail-closed default.
func (r *Refresher) Unwatch(items ...Item) {
	r.mu.Lock()
	for _, it := range items {
		delete(r.watched, it.key())
	}
	r.mu.Unlock()
	for _, it := range items {
		r.gate.Forget(it)
	}
}

// Start begins polling until ctx is cancelled or Stop is called.
// The first refresh runs immediately so pages do not wait a full
// interval for their initial state.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	if r.cancel != nil || r.stopped {
		r.mu.Unlock()
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.wg.Add(1)
	go r.loop(ctx)
}

func (r *Refresher) loop(ctx context.Context) {
	defer r.wg.Done()

	r.RefreshAll(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshAll(ctx)
		case <-r.focusC:
			r.RefreshAll(ctx)
		}
	}
}

// Focus triggers an immediate refresh, mirroring a window regaining
// focus. Signals collapse when a refresh is already queued.
func (r *Refresher) Focus() {
	r.mu.Lock()
	stopped := r.stopped
	r.mu.Unlock()
	if stopped {
		return
	}
	select {
	case r.focusC <- struct{}{}:
	default:
	}
}

// RefreshAll fetches every watched item once. Each item updates only its
// own cache key, so overlapping refreshes resolving out of order cannot
// corrupt unrelated entries.
func (r *Refresher) RefreshAll(ctx context.Context) {
	r.mu.Lock()
	items := make([]Item, 0, len(r.watched))
	for _, it := range r.watched {
		items = append(items, it)
	}
	r.mu.Unlock()

	for _, it := range items {
		r.RefreshItem(ctx, it)
	}
}

// RefreshItem fetches one item and updates its cache entry. Errors leave
// the previous entry in place.
func (r *Refresher) RefreshItem(ctx context.Context, item Item) {
	resp, err := r.source.FetchAccess(ctx, item.ID, item.Type)
	if err != nil {
		return
	}
	if ctx.Err() != nil {
		// 停机后不再写缓存
		return
	}
	r.gate.Set(item, resp.AccessTypes)
}

// Stop halts polling and waits for the loop to exit. Subsequent Focus
// and Start calls are no-ops.
func (r *Refresher) Stop() {
	r.mu.Lock()
	r.stopped = true
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}
