package thumbcache

import (
	"container/list"
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"dataset-tagger/internal/imagetypes"
	"dataset-tagger/internal/logging"
	"dataset-tagger/internal/metrics"

	"github.com/dustin/go-humanize"
)

var log = logging.For("thumbcache")

// DefaultQueueSize bounds the number of pending decode requests
const DefaultQueueSize = 256

// Bitmap is a decoded thumbnail and its approximate memory footprint.
type Bitmap struct {
	Image image.Image
	Bytes int64
}

// NewBitmap wraps img, sizing it as 4 bytes per pixel.
func NewBitmap(img image.Image) *Bitmap {
	b := img.Bounds()
	return &Bitmap{Image: img, Bytes: int64(b.Dx()) * int64(b.Dy()) * 4}
}

// Status is the outcome of a lookup
type Status int

const (
	// StatusReady means Bitmap is set
	StatusReady Status = iota
	// StatusPending means a decode is queued or running
	StatusPending
	// StatusFailed means the last decode failed; see Reason
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusPending:
		return "pending"
	default:
		return "failed"
	}
}

// Lookup is the answer to GetOrRequest
type Lookup struct {
	Status Status
	Bitmap *Bitmap
	Reason string
}

// StateSink receives thumbnail state changes. It reports false when the
// image no longer exists, in which case the cache forgets it.
type StateSink interface {
	SetThumbnailState(id imagetypes.ImageID, state imagetypes.ThumbnailState) bool
}

// Loader decodes the thumbnail for an id.
type Loader interface {
	LoadThumbnail(ctx context.Context, id imagetypes.ImageID) (*Bitmap, error)
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(ctx context.Context, id imagetypes.ImageID) (*Bitmap, error)

// LoadThumbnail calls f
func (f LoaderFunc) LoadThumbnail(ctx context.Context, id imagetypes.ImageID) (*Bitmap, error) {
	return f(ctx, id)
}

// ErrTooLarge is the failure recorded for a bitmap bigger than the whole budget
var ErrTooLarge = errors.New("thumbnail larger than cache capacity")

type entry struct {
	id  imagetypes.ImageID
	bmp *Bitmap
}

type notice struct {
	id    imagetypes.ImageID
	state imagetypes.ThumbnailState
}

// Cache is an LRU bitmap cache bounded by bytes.
type Cache struct {
	mu       sync.Mutex
	capacity int64
	used     int64
	ll       *list.List // front is most recently used
	items    map[imagetypes.ImageID]*list.Element
	inflight map[imagetypes.ImageID]struct{}
	failed   map[imagetypes.ImageID]string
	requests chan imagetypes.ImageID

	// notifyMu keeps sink calls in the order the cache changed state
	notifyMu sync.Mutex
	sink     StateSink
}

// New returns a cache holding at most capacity bytes. sink may be nil.
func New(capacity int64, queueSize int, sink StateSink) *Cache {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[imagetypes.ImageID]*list.Element),
		inflight: make(map[imagetypes.ImageID]struct{}),
		failed:   make(map[imagetypes.ImageID]string),
		requests: make(chan imagetypes.ImageID, queueSize),
		sink:     sink,
	}
}

// SetSink replaces the state sink. Call before the cache is shared.
func (c *Cache) SetSink(sink StateSink) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.sink = sink
}

// GetOrRequest returns the cached bitmap, or queues one decode request for id
// and answers Pending. Failed ids are not retried until Retry is called.
func (c *Cache) GetOrRequest(id imagetypes.ImageID) Lookup {
	c.mu.Lock()
	if el, ok := c.items[id]; ok {
		c.ll.MoveToFront(el)
		bmp := el.Value.(*entry).bmp
		c.mu.Unlock()
		metrics.ThumbnailCacheRequests.WithLabelValues("hit").Inc()
		return Lookup{Status: StatusReady, Bitmap: bmp}
	}
	if reason, ok := c.failed[id]; ok {
		c.mu.Unlock()
		metrics.ThumbnailCacheRequests.WithLabelValues("failed").Inc()
		return Lookup{Status: StatusFailed, Reason: reason}
	}

	metrics.ThumbnailCacheRequests.WithLabelValues("pending").Inc()
	if _, ok := c.inflight[id]; ok {
		c.mu.Unlock()
		return Lookup{Status: StatusPending}
	}
	c.unlockAndNotify(c.enqueueLocked(id))
	return Lookup{Status: StatusPending}
}

// Retry clears a failure for id and requests it once more.
func (c *Cache) Retry(id imagetypes.ImageID) Lookup {
	c.mu.Lock()
	delete(c.failed, id)
	c.mu.Unlock()
	return c.GetOrRequest(id)
}

// enqueueLocked queues a request without blocking. A full queue leaves id
// unrequested; the caller sees Pending and asks again later.
func (c *Cache) enqueueLocked(id imagetypes.ImageID) []notice {
	select {
	case c.requests <- id:
		c.inflight[id] = struct{}{}
		return []notice{{id: id, state: imagetypes.Loading()}}
	default:
		log.Debug("request queue full, deferring %s", id)
		return nil
	}
}

// Insert stores bmp for id and evicts least recently used entries until the
// cache fits its budget again. A bitmap larger than the budget is rejected
// and id is marked failed.
func (c *Cache) Insert(id imagetypes.ImageID, bmp *Bitmap) {
	c.mu.Lock()
	delete(c.inflight, id)

	if bmp == nil || bmp.Bytes > c.capacity {
		c.dropLocked(id)
		c.failed[id] = ErrTooLarge.Error()
		if bmp != nil {
			log.Warn("rejecting %s: %s exceeds capacity %s", id,
				humanize.IBytes(uint64(bmp.Bytes)), humanize.IBytes(uint64(c.capacity)))
		}
		c.unlockAndNotify([]notice{{id: id, state: imagetypes.Failed(ErrTooLarge.Error())}})
		return
	}

	delete(c.failed, id)
	if el, ok := c.items[id]; ok {
		e := el.Value.(*entry)
		c.used -= e.bmp.Bytes
		e.bmp = bmp
		c.ll.MoveToFront(el)
	} else {
		c.items[id] = c.ll.PushFront(&entry{id: id, bmp: bmp})
	}
	c.used += bmp.Bytes

	notes := []notice{{id: id, state: imagetypes.Ready()}}
	for c.used > c.capacity {
		back := c.ll.Back()
		e := back.Value.(*entry)
		if e.id == id {
			break
		}
		c.removeElement(back)
		notes = append(notes, notice{id: e.id, state: imagetypes.Unloaded()})
		metrics.ThumbnailCacheEvictions.Inc()
	}
	if evicted := len(notes) - 1; evicted > 0 {
		log.Debug("evicted %d thumbnails, %s of %s in use", evicted,
			humanize.IBytes(uint64(c.used)), humanize.IBytes(uint64(c.capacity)))
	}
	c.updateGaugesLocked()
	c.unlockAndNotify(notes)
}

// Fail records a decode failure for id. It is not retried automatically.
func (c *Cache) Fail(id imagetypes.ImageID, err error) {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	c.mu.Lock()
	delete(c.inflight, id)
	c.dropLocked(id)
	c.failed[id] = reason
	c.unlockAndNotify([]notice{{id: id, state: imagetypes.Failed(reason)}})
}

// Evict drops everything the cache knows about id and reports whether a
// bitmap was cached.
func (c *Cache) Evict(id imagetypes.ImageID) bool {
	c.mu.Lock()
	delete(c.inflight, id)
	delete(c.failed, id)
	el, ok := c.items[id]
	if !ok {
		c.mu.Unlock()
		return false
	}
	c.removeElement(el)
	c.updateGaugesLocked()
	c.unlockAndNotify([]notice{{id: id, state: imagetypes.Unloaded()}})
	return true
}

// forget drops id without notifying; used when its record is gone.
func (c *Cache) forget(id imagetypes.ImageID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, id)
	delete(c.failed, id)
	if el, ok := c.items[id]; ok {
		c.removeElement(el)
		c.updateGaugesLocked()
	}
}

// dropLocked removes a cached bitmap for id, if any, so a failure cannot sit
// behind a stale Ready entry.
func (c *Cache) dropLocked(id imagetypes.ImageID) {
	if el, ok := c.items[id]; ok {
		c.removeElement(el)
		c.updateGaugesLocked()
	}
}

func (c *Cache) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.items, e.id)
	c.used -= e.bmp.Bytes
}

func (c *Cache) updateGaugesLocked() {
	metrics.ThumbnailCacheBytes.Set(float64(c.used))
	metrics.ThumbnailCacheEntries.Set(float64(len(c.items)))
}

// unlockAndNotify releases c.mu and delivers notes in order. notifyMu is taken
// before c.mu is released so notices from concurrent calls cannot reorder.
func (c *Cache) unlockAndNotify(notes []notice) {
	if len(notes) == 0 {
		c.mu.Unlock()
		return
	}
	c.notifyMu.Lock()
	c.mu.Unlock()

	var gone []imagetypes.ImageID
	if c.sink != nil {
		for _, n := range notes {
			if !c.sink.SetThumbnailState(n.id, n.state) && n.state.Status != imagetypes.ThumbnailUnloaded {
				gone = append(gone, n.id)
			}
		}
	}
	c.notifyMu.Unlock()

	for _, id := range gone {
		c.forget(id)
	}
}

// Len returns the number of cached bitmaps
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Used returns the bytes currently held
func (c *Cache) Used() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Capacity returns the byte budget
func (c *Cache) Capacity() int64 { return c.capacity }

// Pending returns the number of queued decode requests
func (c *Cache) Pending() int { return len(c.requests) }

// Keys returns cached ids from most to least recently used.
func (c *Cache) Keys() []imagetypes.ImageID {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]imagetypes.ImageID, 0, len(c.items))
	for el := c.ll.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry).id)
	}
	return keys
}

// Run resolves queued requests with n workers until ctx is done.
func (c *Cache) Run(ctx context.Context, loader Loader, n int) {
	if n < 1 {
		n = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-c.requests:
					c.resolve(ctx, loader, id)
				}
			}
		}()
	}
	wg.Wait()
}

func (c *Cache) resolve(ctx context.Context, loader Loader, id imagetypes.ImageID) {
	start := time.Now()
	bmp, err := loader.LoadThumbnail(ctx, id)
	metrics.ThumbnailDecodeDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil && ctx.Err() != nil:
		// shutting down: leave the id requestable again
		c.mu.Lock()
		delete(c.inflight, id)
		c.unlockAndNotify([]notice{{id: id, state: imagetypes.Unloaded()}})
	case err != nil:
		metrics.ThumbnailDecodeTotal.WithLabelValues("error").Inc()
		log.Debug("decode %s failed: %v", id, err)
		c.Fail(id, err)
	default:
		metrics.ThumbnailDecodeTotal.WithLabelValues("success").Inc()
		c.Insert(id, bmp)
	}
}
