package scanner

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"dataset-tagger/internal/apperrors"
	"dataset-tagger/internal/hasher"
	"dataset-tagger/internal/media"
)

type recordingSink struct {
	mu      sync.Mutex
	results []Result
}

func (s *recordingSink) Apply(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
}

func (s *recordingSink) paths(root string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.results))
	for _, r := range s.results {
		rel, _ := filepath.Rel(root, r.Path)
		out = append(out, filepath.ToSlash(rel))
	}
	sort.Strings(out)
	return out
}

type fakeProcessor struct {
	fail map[string]bool
}

func (f fakeProcessor) Process(_ context.Context, path string) Result {
	if f.fail[filepath.Base(path)] {
		return Result{Path: path, Err: apperrors.IO("read", path, errors.New("boom"))}
	}
	return Result{Path: path}
}

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		p := filepath.Join(root, filepath.FromSlash(n))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(n), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func waitState(t *testing.T, p *Pipeline) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := p.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return st
}

func TestScanSkipsHiddenAndUnsupported(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, "a.png", "sub/c.JPG", ".hidden.png", ".cache/b.png", "notes.txt", "a.txt")

	sink := &recordingSink{}
	p := New(Config{Workers: 2, SkipHidden: true}, fakeProcessor{}, sink)
	if err := p.Start(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	if st := waitState(t, p); st != Completed {
		t.Fatalf("state = %v, want completed", st)
	}

	want := []string{"a.png", "sub/c.JPG"}
	if got := sink.paths(root); !equalStrings(got, want) {
		t.Errorf("applied %v, want %v", got, want)
	}
	stats := p.Stats()
	if stats.Discovered != 2 || stats.Processed != 2 || stats.State != "completed" {
		t.Errorf("stats = %+v", stats)
	}
}

func TestScanItemFailuresDoNotAbort(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, "1.png", "2.png", "3.png")

	sink := &recordingSink{}
	p := New(Config{Workers: 3}, fakeProcessor{fail: map[string]bool{"2.png": true}}, sink)
	if err := p.Start(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	if st := waitState(t, p); st != Completed {
		t.Fatalf("state = %v", st)
	}
	s := p.Stats()
	if s.Processed != 3 || s.Failed != 1 {
		t.Errorf("stats = %+v", s)
	}
	if len(sink.paths(root)) != 3 {
		t.Error("failed results should still reach the sink")
	}
}

func TestScanUnreadableRootFails(t *testing.T) {
	t.Parallel()

	p := New(Config{Workers: 1}, fakeProcessor{}, &recordingSink{})
	err := p.Start(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if !apperrors.IsKind(err, apperrors.KindIO) {
		t.Fatalf("expected IO error, got %v", err)
	}
	if p.State() != Failed {
		t.Errorf("state = %v, want failed", p.State())
	}

	// a file is not a root either
	file := filepath.Join(t.TempDir(), "x.png")
	writeFiles(t, filepath.Dir(file), "x.png")
	if err := p.Start(context.Background(), file); err == nil {
		t.Error("expected error scanning a file")
	}
}

type gatedProcessor struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedProcessor) Process(ctx context.Context, path string) Result {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
	}
	return Result{Path: path}
}

type cancelAwareSink struct {
	mu        sync.Mutex
	cancelled bool
	late      int
}

func (s *cancelAwareSink) Apply(Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		s.late++
	}
}

func TestCancelDropsInFlightResults(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	names := make([]string, 40)
	for i := range names {
		names[i] = filepath.Join("d", string(rune('a'+i%26))+string(rune('a'+i/26))+".png")
	}
	writeFiles(t, root, names...)

	proc := &gatedProcessor{started: make(chan struct{}), release: make(chan struct{})}
	sink := &cancelAwareSink{}
	p := New(Config{Workers: 4, QueueSize: 4}, proc, sink)

	if err := p.Start(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	<-proc.started

	p.Cancel()
	sink.mu.Lock()
	sink.cancelled = true
	sink.mu.Unlock()
	close(proc.release)

	if st := waitState(t, p); st != Cancelled {
		t.Fatalf("state = %v, want cancelled", st)
	}
	if sink.late != 0 {
		t.Errorf("%d results applied after Cancel returned", sink.late)
	}

	// a cancelled pipeline can be restarted
	if err := p.Start(context.Background(), root); err != nil {
		t.Fatalf("restart: %v", err)
	}
	p.Cancel()
	waitState(t, p)
}

func TestParentContextEndsScanAsCancelled(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	names := make([]string, 50)
	for i := range names {
		names[i] = string(rune('a'+i%26)) + string(rune('a'+i/26)) + ".png"
	}
	writeFiles(t, root, names...)

	proc := &gatedProcessor{started: make(chan struct{}), release: make(chan struct{})}
	sink := &recordingSink{}
	p := New(Config{Workers: 2, QueueSize: 2}, proc, sink)

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx, root); err != nil {
		t.Fatal(err)
	}
	<-proc.started
	cancel()

	if st := waitState(t, p); st != Cancelled {
		t.Fatalf("state = %v, want cancelled", st)
	}
	if s := p.Stats(); s.Processed >= int64(len(names)) {
		t.Errorf("processed %d of %d files before the context ended", s.Processed, len(names))
	}
}

func TestStartWhileScanning(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, "a.png")

	proc := &gatedProcessor{started: make(chan struct{}), release: make(chan struct{})}
	p := New(Config{Workers: 1}, proc, &recordingSink{})
	if err := p.Start(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	<-proc.started

	if err := p.Start(context.Background(), root); !errors.Is(err, ErrAlreadyScanning) {
		t.Errorf("expected ErrAlreadyScanning, got %v", err)
	}
	close(proc.release)
	if st := waitState(t, p); st != Completed {
		t.Errorf("state = %v", st)
	}
}

func TestIdlePipeline(t *testing.T) {
	t.Parallel()

	p := New(Config{}, fakeProcessor{}, &recordingSink{})
	if p.State() != Idle {
		t.Errorf("state = %v", p.State())
	}
	if p.Workers() < 1 {
		t.Errorf("Workers = %d", p.Workers())
	}
	select {
	case <-p.Done():
	default:
		t.Error("Done should be closed for an idle pipeline")
	}
	p.Cancel()
	if p.State() != Idle {
		t.Error("Cancel changed an idle pipeline")
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state    State
		want     string
		terminal bool
	}{
		{Idle, "idle", false},
		{Scanning, "scanning", false},
		{Completed, "completed", true},
		{Cancelled, "cancelled", true},
		{Failed, "failed", true},
	}
	for _, tt := range tests {
		if tt.state.String() != tt.want || tt.state.Terminal() != tt.terminal {
			t.Errorf("%d: %s terminal=%v", tt.state, tt.state, tt.state.Terminal())
		}
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFileProcessor(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.png")
	bad := filepath.Join(dir, "bad.png")
	if err := os.WriteFile(good, pngBytes(t, 64, 32), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("definitely not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	fp := NewFileProcessor(hasher.Content{}, media.NewDecoder(16))
	ctx := context.Background()

	res := fp.Process(ctx, good)
	if res.Outcome() != "ok" || res.Hash == nil || res.Thumbnail == nil {
		t.Fatalf("good: %+v", res)
	}
	if b := res.Thumbnail.Image.Bounds(); b.Dx() > 16 || b.Dy() > 16 {
		t.Errorf("thumbnail %v exceeds box", b)
	}

	res = fp.Process(ctx, bad)
	if res.Hash == nil {
		t.Error("undecodable files are still hashed")
	}
	if !apperrors.IsKind(res.DecodeErr, apperrors.KindDecode) || res.Outcome() != "decode_failed" {
		t.Errorf("bad: %+v", res)
	}

	res = fp.Process(ctx, filepath.Join(dir, "gone.png"))
	if !apperrors.IsKind(res.Err, apperrors.KindIO) {
		t.Errorf("missing file: %+v", res)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
