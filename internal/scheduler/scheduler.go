package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dataset-tagger/internal/logging"
	"dataset-tagger/internal/metrics"

	"github.com/robfig/cron/v3"
)

var log = logging.For("scheduler")

// JobFunc is the work of one scheduled job
type JobFunc func(ctx context.Context) error

// JobInfo describes a registered job
type JobInfo struct {
	Name string    `json:"name"`
	Expr string    `json:"cron"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
}

// Scheduler wraps robfig/cron with named jobs.
type Scheduler struct {
	mu   sync.RWMutex
	c    *cron.Cron
	jobs map[string]job

	ctx    context.Context
	cancel context.CancelFunc
}

type job struct {
	id   cron.EntryID
	expr string
}

// New creates a stopped scheduler. Jobs receive a context that is cancelled
// by Stop.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		c:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		jobs:   make(map[string]job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers fn under name, replacing any job with that name. An empty
// expression disables the job and reports false.
func (s *Scheduler) Add(name, expr string, fn JobFunc) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[name]; ok {
		s.c.Remove(old.id)
		delete(s.jobs, name)
	}
	if expr == "" {
		log.Debug("job %s disabled", name)
		return false, nil
	}

	id, err := s.c.AddFunc(expr, func() { s.run(name, fn) })
	if err != nil {
		return false, fmt.Errorf("invalid cron expression %q for %s: %w", expr, name, err)
	}
	s.jobs[name] = job{id: id, expr: expr}
	log.Info("job %s scheduled: %s", name, expr)
	return true, nil
}

func (s *Scheduler) run(name string, fn JobFunc) {
	start := time.Now()
	if err := fn(s.ctx); err != nil {
		metrics.SchedulerJobRuns.WithLabelValues(name, "error").Inc()
		log.Error("job %s failed after %v: %v", name, time.Since(start).Round(time.Millisecond), err)
		return
	}
	metrics.SchedulerJobRuns.WithLabelValues(name, "success").Inc()
	log.Debug("job %s done in %v", name, time.Since(start).Round(time.Millisecond))
}

// Jobs lists registered jobs by name
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for name, j := range s.jobs {
		e := s.c.Entry(j.id)
		out = append(out, JobInfo{Name: name, Expr: j.expr, Next: e.Next, Prev: e.Prev})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// Start begins the cron loop
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the loop, cancels running jobs' context and waits for them.
func (s *Scheduler) Stop() {
	done := s.c.Stop()
	s.cancel()
	<-done.Done()
}
