package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dataset-tagger/internal/library"
	"dataset-tagger/internal/memory"
	"dataset-tagger/internal/startup"
	"dataset-tagger/internal/store"
)

func writePNG(t *testing.T, path string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

// newDataset writes a.png and b.png (identical) and c.png
func newDataset(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "a.png"), color.RGBA{R: 255, A: 255})
	writePNG(t, filepath.Join(root, "b.png"), color.RGBA{R: 255, A: 255})
	writePNG(t, filepath.Join(root, "c.png"), color.RGBA{G: 255, A: 255})
	return root
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// closeCounter is a store that only counts Close calls
type closeCounter struct {
	closes int
}

func (c *closeCounter) Save(context.Context, []store.Entry) error { return nil }
func (c *closeCounter) Load(context.Context) ([]store.Entry, error) {
	return []store.Entry{}, nil
}
func (c *closeCounter) Tags(context.Context, string) ([]string, bool, error) {
	return nil, false, nil
}
func (c *closeCounter) Name() string { return "counter" }
func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestSessionClosesStoreOnce(t *testing.T) {
	t.Parallel()

	st := &closeCounter{}
	lib, err := library.Open(context.Background(), library.Config{Root: t.TempDir()}, library.WithStore(st))
	if err != nil {
		t.Fatal(err)
	}
	sess := &session{lib: lib, store: st, monitor: memory.NewMonitor(memory.DefaultConfig())}
	sess.Close()

	if st.closes != 1 {
		t.Errorf("store closed %d times, want 1", st.closes)
	}
}

func TestScanJSON(t *testing.T) {
	t.Parallel()
	root := newDataset(t)

	out, err := run(t, "scan", "--dataset", root, "--store", "none", "--json")
	if err != nil {
		t.Fatalf("scan: %v\n%s", err, out)
	}
	var report library.ScanReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if report.State != "completed" || report.Indexed != 3 {
		t.Errorf("report = %+v, want completed with 3 images", report)
	}
	if report.DuplicateGroups != 1 || report.DuplicateFiles != 2 {
		t.Errorf("duplicates = %d groups, %d files; want 1, 2", report.DuplicateGroups, report.DuplicateFiles)
	}
}

func TestScanText(t *testing.T) {
	t.Parallel()
	root := newDataset(t)

	out, err := run(t, "scan", "--dataset", root, "--store", "none")
	if err != nil {
		t.Fatalf("scan: %v\n%s", err, out)
	}
	for _, want := range []string{"State:            completed", "Images indexed:   3", "Duplicate groups: 1 (2 files)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCommandErrors(t *testing.T) {
	t.Parallel()
	root := newDataset(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing dataset", []string{"scan", "--dataset", filepath.Join(root, "missing"), "--store", "none"}},
		{"bad log level", []string{"scan", "--dataset", root, "--log-level", "loud"}},
		{"bad store", []string{"scan", "--dataset", root, "--store", "s3"}},
		{"missing config", []string{"scan", "--config", filepath.Join(root, "nope.yaml")}},
		{"suggest needs prefix", []string{"suggest", "--dataset", root}},
		{"backup needs dir", []string{"backup", "--dataset", root, "--store", "none"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out, err := run(t, tt.args...); err == nil {
				t.Errorf("expected an error, got:\n%s", out)
			}
		})
	}
}

func TestDedupe(t *testing.T) {
	t.Parallel()
	root := newDataset(t)

	out, err := run(t, "dedupe", "--dataset", root, "--store", "none", "--dry-run")
	if err != nil {
		t.Fatalf("dry run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "keep   "+filepath.Join(root, "a.png")) ||
		!strings.Contains(out, "delete "+filepath.Join(root, "b.png")) {
		t.Errorf("unexpected dry run output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(root, "b.png")); err != nil {
		t.Fatalf("dry run removed b.png: %v", err)
	}

	out, err = run(t, "dedupe", "--dataset", root, "--store", "none")
	if err != nil {
		t.Fatalf("dedupe: %v\n%s", err, out)
	}
	if !strings.Contains(out, "removed 1 files from 1 groups") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(root, "b.png")); !os.IsNotExist(err) {
		t.Errorf("b.png still present: %v", err)
	}
	for _, keep := range []string{"a.png", "c.png"} {
		if _, err := os.Stat(filepath.Join(root, keep)); err != nil {
			t.Errorf("%s removed: %v", keep, err)
		}
	}

	out, err = run(t, "dedupe", "--dataset", root, "--store", "none")
	if err != nil || !strings.Contains(out, "no duplicates") {
		t.Errorf("second run = %q, %v", out, err)
	}
}

func TestBackup(t *testing.T) {
	t.Parallel()
	root := newDataset(t)
	if err := os.WriteFile(filepath.Join(root, "c.txt"), []byte("green, square"), 0o644); err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(t.TempDir(), "backups")

	out, err := run(t, "backup", "--dataset", root, "--dir", dir)
	if err != nil {
		t.Fatalf("backup: %v\n%s", err, out)
	}
	if !strings.Contains(out, "3 images") {
		t.Errorf("unexpected output:\n%s", out)
	}
	manifests, err := filepath.Glob(filepath.Join(dir, "*", "manifest.json"))
	if err != nil || len(manifests) != 1 {
		t.Fatalf("manifests = %v, %v", manifests, err)
	}
}

func TestSuggest(t *testing.T) {
	t.Parallel()
	root := newDataset(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("long hair, blue eyes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "c.txt"), []byte("long hair, lollipop"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "suggest", "lo", "--dataset", root)
	if err != nil {
		t.Fatalf("suggest: %v\n%s", err, out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("suggestions = %q, want two", lines)
	}
	if !strings.Contains(out, "lollipop") || strings.Contains(out, "blue") {
		t.Errorf("unexpected suggestions:\n%s", out)
	}

	out, err = run(t, "suggest", "lo", "--dataset", root, "--limit", "1")
	if err != nil {
		t.Fatal(err)
	}
	if n := len(strings.Split(strings.TrimSpace(out), "\n")); n != 1 {
		t.Errorf("limit 1 gave %d lines:\n%s", n, out)
	}
}

func TestServe(t *testing.T) {
	root := newDataset(t)
	cfg, err := startup.Load("", func(c *startup.Config) {
		c.DatasetDir = root
		c.Store = startup.StoreNone
		c.Watch = false
		c.ThumbnailSize = 16
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg.Port = "0"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	listening := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, listening) }()

	var addr string
	select {
	case addr = <-listening:
	case err := <-done:
		t.Fatalf("serve returned early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not start")
	}
	base := "http://" + addr

	resp, err := http.Get(base + "/livez")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("livez = %d", resp.StatusCode)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		var list struct {
			Total int `json:"total"`
		}
		resp, err := http.Get(base + "/api/images")
		if err != nil {
			t.Fatal(err)
		}
		err = json.NewDecoder(resp.Body).Decode(&list)
		resp.Body.Close()
		if err != nil {
			t.Fatal(err)
		}
		if list.Total == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("total = %d, want 3", list.Total)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve: %v", err)
		}
	case <-time.After(35 * time.Second):
		t.Fatal("serve did not shut down")
	}
}
