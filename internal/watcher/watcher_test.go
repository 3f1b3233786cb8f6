package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dataset-tagger/internal/imagetypes"
)

type fakeTarget struct {
	mu       sync.Mutex
	ingested map[string]int
	forgot   []string
	known    map[string]bool
	events   chan string
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		ingested: map[string]int{},
		known:    map[string]bool{},
		events:   make(chan string, 64),
	}
}

func (f *fakeTarget) Ingest(_ context.Context, path string) (imagetypes.ImageID, error) {
	f.mu.Lock()
	f.ingested[path]++
	f.known[path] = true
	f.mu.Unlock()
	f.events <- "ingest:" + filepath.Base(path)
	return imagetypes.IDFromNormalized(path), nil
}

func (f *fakeTarget) Forget(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.known[path] {
		return false
	}
	delete(f.known, path)
	f.forgot = append(f.forgot, path)
	f.events <- "forget:" + filepath.Base(path)
	return true
}

func (f *fakeTarget) ForgetUnder(dir string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for p := range f.known {
		if strings.HasPrefix(p, dir+string(filepath.Separator)) {
			delete(f.known, p)
			n++
		}
	}
	if n > 0 {
		f.events <- "forget-dir:" + filepath.Base(dir)
	}
	return n
}

// expectEvent waits for any of wants
func expectEvent(t *testing.T, f *fakeTarget, wants ...string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-f.events:
			for _, w := range wants {
				if got == w {
					return
				}
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %v", wants)
		}
	}
}

func startWatcher(t *testing.T, root string, target Target) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := New(root, target, 20*time.Millisecond)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	select {
	case <-w.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never became ready")
	}
}

func TestWatcherIngestsAndForgets(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	target := newFakeTarget()
	startWatcher(t, root, target)

	img := filepath.Join(root, "new.png")
	if err := os.WriteFile(img, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectEvent(t, target, "ingest:new.png")

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(img); err != nil {
		t.Fatal(err)
	}
	expectEvent(t, target, "forget:new.png")

	target.mu.Lock()
	defer target.mu.Unlock()
	for p := range target.ingested {
		if !imagetypes.IsSupportedImage(p) {
			t.Errorf("unsupported file ingested: %s", p)
		}
	}
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	target := newFakeTarget()
	startWatcher(t, root, target)

	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// give the watcher a moment to add the new directory
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(sub, "x.jpg"), []byte("jpg"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectEvent(t, target, "ingest:x.jpg")

	if err := os.RemoveAll(sub); err != nil {
		t.Fatal(err)
	}
	expectEvent(t, target, "forget:x.jpg", "forget-dir:sub")
}

func TestHiddenPath(t *testing.T) {
	t.Parallel()

	w := New("/data", newFakeTarget(), 0)
	tests := []struct {
		path string
		want bool
	}{
		{"/data/a.png", false},
		{"/data/.a.png", true},
		{"/data/.cache/a.png", true},
		{"/data/sub/a.png", false},
	}
	for _, tt := range tests {
		if got := w.hiddenPath(tt.path); got != tt.want {
			t.Errorf("hiddenPath(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
	if w.debounce != DefaultDebounce {
		t.Errorf("debounce = %v", w.debounce)
	}
}
