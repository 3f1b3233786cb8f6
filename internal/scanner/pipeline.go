package scanner

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dataset-tagger/internal/apperrors"
	"dataset-tagger/internal/imagetypes"
	"dataset-tagger/internal/logging"
	"dataset-tagger/internal/memory"
	"dataset-tagger/internal/metrics"
	"dataset-tagger/internal/workers"
)

var log = logging.For("scanner")

// ErrAlreadyScanning is returned by Start while a scan is running.
var ErrAlreadyScanning = errors.New("scan already in progress")

// State is the lifecycle state of a pipeline
type State int

const (
	// Idle means no scan has been started
	Idle State = iota
	// Scanning means a scan is running
	Scanning
	// Completed means the last scan walked the whole tree
	Completed
	// Cancelled means the last scan was cancelled
	Cancelled
	// Failed means the last scan could not read its root
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a scan
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

// Sink receives results from the drain goroutine, one at a time. Apply must
// not call back into the pipeline.
type Sink interface {
	Apply(Result)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(Result)

// Apply calls f
func (f SinkFunc) Apply(r Result) { f(r) }

// Config configures a pipeline
type Config struct {
	// Workers is the fixed worker count (0 = sized from GOMAXPROCS)
	Workers int
	// QueueSize bounds the job and result channels
	QueueSize int
	// SkipHidden skips files and directories starting with "."
	SkipHidden bool
	// Monitor pauses workers while memory is critical (optional)
	Monitor *memory.Monitor
}

// DefaultConfig returns defaults sized for the current machine.
func DefaultConfig() Config {
	return Config{
		Workers:    workers.ForMixed(16),
		QueueSize:  256,
		SkipHidden: true,
	}
}

// Stats counts the progress of the current or last scan
type Stats struct {
	State        string    `json:"state"`
	Root         string    `json:"root,omitempty"`
	Discovered   int64     `json:"discovered"`
	Processed    int64     `json:"processed"`
	Failed       int64     `json:"failed"`
	HashFailed   int64     `json:"hash_failed"`
	DecodeFailed int64     `json:"decode_failed"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Pipeline runs scans. At most one scan runs at a time.
type Pipeline struct {
	config    Config
	processor Processor
	sink      Sink

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	stats  Stats

	discovered atomic.Int64
}

// New returns an idle pipeline. A non-positive worker count or queue size
// falls back to the defaults.
func New(config Config, processor Processor, sink Sink) *Pipeline {
	def := DefaultConfig()
	config.Workers = workers.Resolve(config.Workers, workers.ForMixed, 0)
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	done := make(chan struct{})
	close(done)
	return &Pipeline{
		config:    config,
		processor: processor,
		sink:      sink,
		done:      done,
	}
}

// Workers returns the fixed worker count
func (p *Pipeline) Workers() int { return p.config.Workers }

// State returns the current state
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns a snapshot of the current or last scan
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.State = p.state.String()
	s.Discovered = p.discovered.Load()
	return s
}

// Done returns a channel closed when the current scan's goroutines have
// exited. For an idle pipeline it is already closed.
func (p *Pipeline) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Wait blocks until the current scan finishes or ctx is done, and returns
// the resulting state.
func (p *Pipeline) Wait(ctx context.Context) (State, error) {
	select {
	case <-p.Done():
		return p.State(), nil
	case <-ctx.Done():
		return p.State(), ctx.Err()
	}
}

// Start begins scanning root in the background. It fails with
// ErrAlreadyScanning while a scan runs, and moves to Failed when root is not
// a readable directory.
func (p *Pipeline) Start(ctx context.Context, root string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Scanning {
		return ErrAlreadyScanning
	}

	p.gen++
	p.stats = Stats{Root: root, StartedAt: time.Now()}
	p.discovered.Store(0)

	abs, err := imagetypes.NormalizePath(root)
	if err == nil {
		err = checkRoot(abs)
	}
	if err != nil {
		p.state = Failed
		p.stats.FinishedAt = p.stats.StartedAt
		p.stats.Error = err.Error()
		metrics.ScanRunsTotal.WithLabelValues(Failed.String()).Inc()
		log.Error("cannot scan %s: %v", root, err)
		return err
	}
	p.stats.Root = abs

	runCtx, cancel := context.WithCancel(ctx)
	p.state = Scanning
	p.cancel = cancel
	p.done = make(chan struct{})

	metrics.ScanInProgress.Set(1)
	log.Info("starting scan of %s with %d workers", abs, p.config.Workers)

	go p.run(runCtx, p.gen, abs, p.done)
	return nil
}

func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return apperrors.IO("scan", root, err)
	}
	if !info.IsDir() {
		return apperrors.IO("scan", root, errors.New("not a directory"))
	}
	f, err := os.Open(root)
	if err != nil {
		return apperrors.IO("scan", root, err)
	}
	defer f.Close()
	if _, err := f.ReadDir(1); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.IO("scan", root, err)
	}
	return nil
}

// Cancel stops the running scan. Once Cancel returns no further result of
// that scan is applied. Cancelling an idle or finished pipeline is a no-op.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Scanning {
		return
	}
	p.state = Cancelled
	p.stats.FinishedAt = time.Now()
	p.cancel()
	metrics.ScanRunsTotal.WithLabelValues(Cancelled.String()).Inc()
	metrics.ScanInProgress.Set(0)
	log.Info("scan of %s cancelled after %d results", p.stats.Root, p.stats.Processed)
}

func (p *Pipeline) run(ctx context.Context, gen uint64, root string, done chan struct{}) {
	defer close(done)

	start := time.Now()
	jobs := make(chan string, p.config.QueueSize)
	results := make(chan Result, p.config.QueueSize)

	var wg sync.WaitGroup
	for i := 0; i < p.config.Workers; i++ {
		wg.Add(1)
		go p.worker(ctx, i, jobs, results, &wg)
	}

	var walkErr error
	go func() {
		walkErr = p.walk(ctx, root, jobs)
		close(jobs)
		wg.Wait()
		close(results)
	}()

	// Single consumer: every result is applied from here.
	for res := range results {
		p.apply(gen, res)
	}
	metrics.ScanQueueDepth.Set(0)

	p.finish(ctx, gen, walkErr, time.Since(start))
}

func (p *Pipeline) walk(ctx context.Context, root string, jobs chan<- string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		if err != nil {
			if path == root {
				return apperrors.IO("walk", root, err)
			}
			log.Warn("error accessing %s: %v", path, err)
			return nil
		}
		if path != root && p.config.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !imagetypes.IsSupportedImage(path) {
			return nil
		}

		p.discovered.Add(1)
		select {
		case jobs <- path:
			metrics.ScanQueueDepth.Set(float64(len(jobs)))
		case <-ctx.Done():
			return fs.SkipAll
		}
		return nil
	})
}

func (p *Pipeline) worker(ctx context.Context, id int, jobs <-chan string, results chan<- Result, wg *sync.WaitGroup) {
	defer wg.Done()
	log.Debug("worker %d started", id)

	for path := range jobs {
		if !p.config.Monitor.WaitIfPaused(ctx) || ctx.Err() != nil {
			return
		}

		res := p.processor.Process(ctx, path)
		metrics.ScanFilesProcessed.WithLabelValues(res.Outcome()).Inc()

		select {
		case results <- res:
		case <-ctx.Done():
			return
		}
	}
	log.Debug("worker %d finished", id)
}

// apply hands one result to the sink, unless the scan it belongs to has been
// cancelled or superseded. The lock is held across the sink call so Cancel
// cannot return while a result is being applied.
func (p *Pipeline) apply(gen uint64, res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Scanning || p.gen != gen {
		return
	}

	p.stats.Processed++
	switch {
	case res.Err != nil:
		p.stats.Failed++
		log.Warn("%v", res.Err)
	case res.HashErr != nil:
		p.stats.HashFailed++
		log.Warn("%v", res.HashErr)
	}
	if res.DecodeErr != nil {
		p.stats.DecodeFailed++
		log.Debug("%v", res.DecodeErr)
	}
	p.sink.Apply(res)
}

// finish settles the final state. A scan whose context ended before every
// dispatched file was resolved is Cancelled, never Completed.
func (p *Pipeline) finish(ctx context.Context, gen uint64, walkErr error, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gen != gen || p.state != Scanning {
		return
	}

	p.stats.FinishedAt = time.Now()
	switch {
	case ctx.Err() != nil:
		p.state = Cancelled
		log.Warn("scan of %s interrupted after %d of %d files: %v",
			p.stats.Root, p.stats.Processed, p.discovered.Load(), context.Cause(ctx))
	case walkErr != nil:
		p.state = Failed
		p.stats.Error = walkErr.Error()
		log.Error("scan of %s failed: %v", p.stats.Root, walkErr)
	default:
		p.state = Completed
		log.Info("scan of %s complete: %d processed, %d failed, %d hash failures, %d decode failures in %v",
			p.stats.Root, p.stats.Processed, p.stats.Failed, p.stats.HashFailed, p.stats.DecodeFailed,
			elapsed.Round(time.Millisecond))
	}
	p.cancel()

	metrics.ScanRunsTotal.WithLabelValues(p.state.String()).Inc()
	metrics.ScanDuration.Observe(elapsed.Seconds())
	metrics.ScanInProgress.Set(0)
}
