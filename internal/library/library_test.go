package library

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"dataset-tagger/internal/apperrors"
	"dataset-tagger/internal/backup"
	"dataset-tagger/internal/dataset"
	"dataset-tagger/internal/imagetypes"
	"dataset-tagger/internal/store"
	"dataset-tagger/internal/tagdb"
	"dataset-tagger/internal/thumbcache"
)

func writePNG(t *testing.T, path string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

// fiveImages writes a.png..e.png where a and b are byte-identical.
func fiveImages(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "a.png"), color.RGBA{R: 255, A: 255})
	writePNG(t, filepath.Join(root, "b.png"), color.RGBA{R: 255, A: 255})
	writePNG(t, filepath.Join(root, "c.png"), color.RGBA{G: 255, A: 255})
	writePNG(t, filepath.Join(root, "d.png"), color.RGBA{B: 255, A: 255})
	writePNG(t, filepath.Join(root, "e.png"), color.RGBA{R: 9, G: 9, B: 9, A: 255})
	return root
}

func openLibrary(t *testing.T, root string, opts ...Option) *Library {
	t.Helper()
	l, err := Open(context.Background(), Config{Root: root, ScanWorkers: 2, ThumbnailSize: 16}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func scan(t *testing.T, l *Library) ScanReport {
	t.Helper()
	if err := l.Scan(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	report, err := l.WaitScan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return report
}

func idOf(t *testing.T, path string) imagetypes.ImageID {
	t.Helper()
	id, _, err := imagetypes.IDFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestScanFindsDuplicatesAndRemovesThem(t *testing.T) {
	t.Parallel()

	root := fiveImages(t)
	l := openLibrary(t, root)

	report := scan(t, l)
	if report.State != "completed" || report.Indexed != 5 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
	if report.DuplicateGroups != 1 || report.DuplicateFiles != 2 {
		t.Errorf("duplicates in report = %d groups, %d files", report.DuplicateGroups, report.DuplicateFiles)
	}

	hashes := map[imagetypes.Hash]bool{}
	for _, rec := range l.Index().Records() {
		if rec.ContentHash == nil {
			t.Fatalf("%s was not hashed", rec.Path)
		}
		hashes[*rec.ContentHash] = true
	}
	if len(hashes) != 4 {
		t.Errorf("distinct hashes = %d, want 4", len(hashes))
	}

	groups := l.Duplicates()
	if len(groups) != 1 {
		t.Fatalf("groups = %d", len(groups))
	}
	var names []string
	for _, m := range groups[0].Members {
		names = append(names, filepath.Base(m.Path))
	}
	if !reflect.DeepEqual(names, []string{"a.png", "b.png"}) {
		t.Errorf("members = %v", names)
	}

	res, err := l.RemoveDuplicates(groups[0].Hash, "", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Succeeded) != 1 || res.Succeeded[0] != idOf(t, filepath.Join(root, "b.png")) {
		t.Errorf("removed %v", res.Succeeded)
	}
	if l.Index().Len() != 4 || len(l.Duplicates()) != 0 {
		t.Errorf("after removal: %d records, %d groups", l.Index().Len(), len(l.Duplicates()))
	}
	if _, err := os.Stat(filepath.Join(root, "b.png")); !os.IsNotExist(err) {
		t.Error("b.png should be deleted from disk")
	}
	if _, err := os.Stat(filepath.Join(root, "a.png")); err != nil {
		t.Error("a.png should be kept")
	}
}

func TestScanFillsThumbnailCache(t *testing.T) {
	t.Parallel()

	root := fiveImages(t)
	l := openLibrary(t, root)
	scan(t, l)

	id := idOf(t, filepath.Join(root, "c.png"))
	lk, err := l.Thumbnail(id)
	if err != nil {
		t.Fatal(err)
	}
	if lk.Status != thumbcache.StatusReady {
		t.Fatalf("status = %v", lk.Status)
	}
	if b := lk.Bitmap.Image.Bounds(); b.Dx() > 16 || b.Dy() > 16 {
		t.Errorf("thumbnail %v larger than 16px box", b)
	}
	rec, _ := l.Index().Get(id)
	if rec.Thumbnail.Status != imagetypes.ThumbnailReady {
		t.Errorf("record thumbnail state = %v", rec.Thumbnail.Status)
	}

	if _, err := l.Thumbnail("nope"); !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("unknown id err = %v", err)
	}
}

func TestCorruptImageIsRecordedNotFatal(t *testing.T) {
	t.Parallel()

	root := fiveImages(t)
	bad := filepath.Join(root, "broken.png")
	if err := os.WriteFile(bad, []byte("not a png at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := openLibrary(t, root)

	report := scan(t, l)
	if report.State != "completed" || report.Indexed != 6 || report.DecodeFailed != 1 {
		t.Fatalf("report = %+v", report)
	}
	lk, err := l.Thumbnail(idOf(t, bad))
	if err != nil {
		t.Fatal(err)
	}
	if lk.Status != thumbcache.StatusFailed || lk.Reason == "" {
		t.Errorf("lookup = %+v", lk)
	}
}

func waitReady(t *testing.T, l *Library, id imagetypes.ImageID) thumbcache.Lookup {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		lk, err := l.Thumbnail(id)
		if err != nil {
			t.Fatal(err)
		}
		if lk.Status != thumbcache.StatusPending {
			return lk
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("thumbnail never resolved")
	return thumbcache.Lookup{}
}

func TestSaveLoadWithSidecars(t *testing.T) {
	t.Parallel()

	root := fiveImages(t)
	st := store.NewSidecarStore(root)
	l := openLibrary(t, root, WithStore(st))
	scan(t, l)

	a := idOf(t, filepath.Join(root, "a.png"))
	if err := l.SetTagsText(a, "cat, outdoor"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.BulkAddTag("style", true); err != nil {
		t.Fatal(err)
	}
	if err := l.Save(context.Background()); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "style, cat, outdoor" {
		t.Errorf("a.txt = %q", data)
	}

	// a fresh library restores from the store without scanning
	fresh := openLibrary(t, root, WithStore(store.NewSidecarStore(root)))
	n, err := fresh.Load(context.Background())
	if err != nil || n != 5 {
		t.Fatalf("Load = %d, %v", n, err)
	}
	rec, ok := fresh.Index().Get(a)
	if !ok || !reflect.DeepEqual(rec.Tags, []string{"style", "cat", "outdoor"}) {
		t.Errorf("restored record = %+v", rec)
	}
	if rec.ContentHash != nil {
		t.Error("loaded records are hashed lazily")
	}

	// requesting the thumbnail hashes the image
	if lk := waitReady(t, fresh, a); lk.Status != thumbcache.StatusReady {
		t.Fatalf("lookup = %+v", lk)
	}
	if rec, _ := fresh.Index().Get(a); rec.ContentHash == nil {
		t.Error("thumbnail load should assign the hash")
	}

	// and a scan of a third library picks the tags up from the sidecars
	third := openLibrary(t, root, WithStore(store.NewSidecarStore(root)))
	scan(t, third)
	if third.Index().Frequency().Count("style") != 5 {
		t.Errorf("style count after scan = %d", third.Index().Frequency().Count("style"))
	}
}

func TestTagOperationsResolveAliases(t *testing.T) {
	t.Parallel()

	db := tagdb.New([]tagdb.Entry{
		{Name: "cat", Aliases: []string{"kitty"}},
		{Name: "car"},
		{Name: "outdoors", Aliases: []string{"outside"}},
	})
	root := fiveImages(t)
	l := openLibrary(t, root, WithTagDatabase(db))
	scan(t, l)

	a := idOf(t, filepath.Join(root, "a.png"))
	c := idOf(t, filepath.Join(root, "c.png"))
	if _, err := l.AddTag(a, "Kitty"); err != nil {
		t.Fatal(err)
	}
	if err := l.SetTagsText(c, "kitty, outside, castle"); err != nil {
		t.Fatal(err)
	}

	rec, _ := l.Index().Get(c)
	if !reflect.DeepEqual(rec.Tags, []string{"cat", "outdoors", "castle"}) {
		t.Errorf("tags = %v", rec.Tags)
	}

	got := l.Search([]string{"kitty", "outdoors"})
	if len(got) != 1 || got[0].ID != c {
		t.Errorf("Search = %v", got)
	}
	if all := l.Search(nil); len(all) != 5 {
		t.Errorf("empty search returned %d records", len(all))
	}

	if s := l.Suggest("ca", 5); !reflect.DeepEqual(s, []string{"car", "cat", "castle"}) {
		t.Errorf("Suggest = %v", s)
	}
	if s := l.Suggest("", 5); len(s) != 0 {
		t.Errorf("empty prefix = %v", s)
	}

	top := l.TopTags(1, dataset.Descending)
	if len(top) != 1 || top[0].Tag != "cat" || top[0].Count != 2 {
		t.Errorf("TopTags = %v", top)
	}

	res, err := l.BulkAddTagTo("reviewed", false, []string{"cat"})
	if err != nil || len(res.Succeeded) != 2 {
		t.Errorf("BulkAddTagTo = %+v, %v", res, err)
	}
	if res := l.BulkRemoveTag("cat"); len(res.Succeeded) != 2 {
		t.Errorf("BulkRemoveTag = %+v", res)
	}
}

func TestBackupWithoutSnapshotter(t *testing.T) {
	t.Parallel()

	l := openLibrary(t, t.TempDir())
	if _, err := l.Backup(context.Background()); !apperrors.IsKind(err, apperrors.KindInvalid) {
		t.Errorf("err = %v", err)
	}
	if err := l.Save(context.Background()); !apperrors.IsKind(err, apperrors.KindInvalid) {
		t.Errorf("err = %v", err)
	}
}

func TestBackupSnapshotsTags(t *testing.T) {
	t.Parallel()

	root := fiveImages(t)
	dir := filepath.Join(t.TempDir(), "backups")
	l := openLibrary(t, root, WithBackups(backup.New(dir)))
	scan(t, l)
	if _, err := l.AddTag(idOf(t, filepath.Join(root, "d.png")), "blue"); err != nil {
		t.Fatal(err)
	}

	m, err := l.Backup(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(m.Dir, "d.txt"))
	if err != nil || string(data) != "blue" {
		t.Errorf("d.txt = %q, %v", data, err)
	}
	if !strings.HasPrefix(m.Dir, dir) {
		t.Errorf("snapshot written to %s", m.Dir)
	}
}

func TestIngestAndForget(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	l := openLibrary(t, root)

	path := filepath.Join(root, "new.png")
	writePNG(t, path, color.White)
	id, err := l.Ingest(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if rec, ok := l.Index().Get(id); !ok || rec.ContentHash == nil {
		t.Fatalf("ingested record = %+v", rec)
	}
	if _, err := l.Ingest(context.Background(), filepath.Join(root, "notes.txt")); err == nil {
		t.Error("expected unsupported file error")
	}

	if !l.Forget(path) {
		t.Error("Forget reported nothing removed")
	}
	if l.Index().Len() != 0 || l.Cache().Len() != 0 {
		t.Errorf("after Forget: %d records, %d cached", l.Index().Len(), l.Cache().Len())
	}
}

func TestRemoveDuplicatesKeepsSharedTagFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	upper := filepath.Join(root, "img.PNG")
	lower := filepath.Join(root, "img.png")
	writePNG(t, upper, color.RGBA{R: 255, A: 255})
	writePNG(t, lower, color.RGBA{R: 255, A: 255})
	sidecar := filepath.Join(root, "img.txt")
	if err := os.WriteFile(sidecar, []byte("red, square"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := openLibrary(t, root)
	scan(t, l)
	groups := l.Duplicates()
	if len(groups) != 1 || len(groups[0].Members) != 2 {
		t.Fatalf("groups = %+v", groups)
	}

	res, err := l.RemoveDuplicates(groups[0].Hash, idOf(t, upper), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Succeeded) != 1 || res.Succeeded[0] != idOf(t, lower) {
		t.Fatalf("removed %v", res.Succeeded)
	}
	if _, err := os.Stat(lower); !os.IsNotExist(err) {
		t.Errorf("img.png still on disk: %v", err)
	}
	if _, err := os.Stat(sidecar); err != nil {
		t.Errorf("kept image lost its tag file: %v", err)
	}
}

func TestModifiedDuplicateLeavesItsGroup(t *testing.T) {
	t.Parallel()

	root := fiveImages(t)
	l := openLibrary(t, root)
	scan(t, l)
	if len(l.Duplicates()) != 1 {
		t.Fatalf("groups = %d, want 1", len(l.Duplicates()))
	}

	b := filepath.Join(root, "b.png")
	before, _ := l.Index().Get(idOf(t, b))
	writePNG(t, b, color.RGBA{R: 200, G: 100, A: 255})
	if _, err := l.Ingest(context.Background(), b); err != nil {
		t.Fatal(err)
	}

	if groups := l.Duplicates(); len(groups) != 0 {
		t.Fatalf("edited file still grouped: %+v", groups)
	}
	after, _ := l.Index().Get(idOf(t, b))
	if after.ContentHash == nil || *after.ContentHash == *before.ContentHash {
		t.Errorf("hash not refreshed: before %v, after %v", before.ContentHash, after.ContentHash)
	}

	res, err := l.RemoveAllDuplicates(true)
	if err != nil || len(res.Succeeded) != 0 {
		t.Errorf("RemoveAllDuplicates = %+v, %v", res.Succeeded, err)
	}
	if _, err := os.Stat(b); err != nil {
		t.Errorf("b.png was deleted: %v", err)
	}

	// an unchanged rescan keeps hashes and groups stable
	scan(t, l)
	if len(l.Duplicates()) != 0 || l.Index().Len() != 5 {
		t.Errorf("after rescan: %d groups, %d records", len(l.Duplicates()), l.Index().Len())
	}
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), Config{}); !apperrors.IsKind(err, apperrors.KindInvalid) {
		t.Errorf("missing root err = %v", err)
	}
	if _, err := Open(context.Background(), Config{Root: t.TempDir(), Dedupe: "fuzzy"}); err == nil {
		t.Error("expected unknown dedupe mode error")
	}
}
