package imagetypes

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func TestIsSupportedImage(t *testing.T) {
	tests := []struct {
		name string
		path string
		want bool
	}{
		{"JPEG image", "/a/b.jpg", true},
		{"upper case extension", "/a/B.PNG", true},
		{"WebP image", "x.webp", true},
		{"tag sidecar", "/a/b.txt", false},
		{"video", "/a/b.mp4", false},
		{"no extension", "/a/README", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSupportedImage(tt.path); got != tt.want {
				t.Errorf("IsSupportedImage(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestGetMimeType(t *testing.T) {
	if got := GetMimeType("x.JPG"); got != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", got)
	}
	if got := GetMimeType("x.bin"); got != "application/octet-stream" {
		t.Errorf("expected octet-stream fallback, got %s", got)
	}
}

func TestIDFromPathIsStable(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "photos", "cat.png")
	b := filepath.Join(dir, "photos", "..", "photos", "cat.png")

	idA, pathA, err := IDFromPath(a)
	if err != nil {
		t.Fatalf("IDFromPath(a): %v", err)
	}
	idB, pathB, err := IDFromPath(b)
	if err != nil {
		t.Fatalf("IDFromPath(b): %v", err)
	}

	if idA != idB {
		t.Errorf("expected equal ids for equivalent paths, got %s and %s", idA, idB)
	}
	if pathA != pathB {
		t.Errorf("expected equal normalized paths, got %s and %s", pathA, pathB)
	}
	if len(idA) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(idA))
	}
}

func TestIDFromPathRejectsEmpty(t *testing.T) {
	if _, _, err := IDFromPath("  "); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestHashRoundTrip(t *testing.T) {
	var h Hash
	for i := range h {
		h[i] = byte(i)
	}
	parsed, err := ParseHash(h.String())
	if err != nil {
		t.Fatalf("ParseHash: %v", err)
	}
	if parsed != h {
		t.Error("parsed hash differs from original")
	}
	if _, err := ParseHash("abcd"); err == nil {
		t.Error("expected error for short hash")
	}
}

func TestHashCompare(t *testing.T) {
	var lo, hi Hash
	hi[0] = 1
	if lo.Compare(hi) >= 0 || hi.Compare(lo) <= 0 || lo.Compare(lo) != 0 {
		t.Error("Compare does not order hashes bytewise")
	}
}

func TestSidecarPath(t *testing.T) {
	if got := SidecarPath("/data/cat.png"); got != "/data/cat.txt" {
		t.Errorf("SidecarPath = %s", got)
	}
}

func TestThumbnailStatusString(t *testing.T) {
	if Failed("boom").Status.String() != "failed" {
		t.Error("unexpected status name")
	}
}

func TestStateJSON(t *testing.T) {
	var h Hash
	h[0] = 0xab
	in := struct {
		Hash  Hash           `json:"hash"`
		State ThumbnailState `json:"state"`
	}{h, Failed("corrupt")}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"hash":"ab` + strings.Repeat("0", 2*HashSize-2) + `","state":{"status":"failed","reason":"corrupt"}}`
	if string(data) != want {
		t.Errorf("json = %s", data)
	}

	out := in
	out.Hash = Hash{}
	out.State = Unloaded()
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("decoded %+v, want %+v", out, in)
	}
	if err := json.Unmarshal([]byte(`{"state":{"status":"sleeping"}}`), &out); err == nil {
		t.Error("expected an error for an unknown status")
	}
}
