package dataset

import (
	"errors"
	"testing"

	"dataset-tagger/internal/apperrors"
	"dataset-tagger/internal/imagetypes"
)

func collectGroups(d *DuplicateDetector) []DuplicateGroup {
	var out []DuplicateGroup
	for g := range d.Groups() {
		out = append(out, g)
	}
	return out
}

func TestDuplicateGroupsRoundTrip(t *testing.T) {
	t.Parallel()

	ix, ids := newTestIndex(t, "c.png", "a.png", "b.png", "d.png", "e.png")
	same := imagetypes.Hash{0xaa}
	pair := imagetypes.Hash{0x01}

	assign := map[imagetypes.ImageID]imagetypes.Hash{
		ids[0]: same, ids[1]: same, ids[2]: same,
		ids[3]: pair, ids[4]: pair,
	}
	for id, h := range assign {
		if _, err := ix.AssignHash(id, h); err != nil {
			t.Fatal(err)
		}
	}

	groups := collectGroups(ix.Duplicates())
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if groups[0].Hash != same || len(groups[0].Members) != 3 {
		t.Errorf("largest group should come first: %+v", groups[0])
	}
	if groups[1].Hash != pair {
		t.Errorf("second group hash = %s", groups[1].HashString())
	}

	// members sorted by path
	m := groups[0].Members
	for i := 1; i < len(m); i++ {
		if m[i-1].Path >= m[i].Path {
			t.Errorf("members not sorted: %v", m)
		}
	}
	if ix.Duplicates().Redundant() != 3 {
		t.Errorf("Redundant = %d, want 3", ix.Duplicates().Redundant())
	}
}

func TestSingletonHashesAreNotGroups(t *testing.T) {
	t.Parallel()

	ix, ids := newTestIndex(t, "a.png", "b.png")
	_, _ = ix.AssignHash(ids[0], imagetypes.Hash{1})
	_, _ = ix.AssignHash(ids[1], imagetypes.Hash{2})

	if n := len(collectGroups(ix.Duplicates())); n != 0 {
		t.Errorf("got %d groups, want 0", n)
	}
	if _, ok := ix.Duplicates().Group(imagetypes.Hash{1}); ok {
		t.Error("Group returned a singleton")
	}
}

func TestGroupsStopEarly(t *testing.T) {
	t.Parallel()

	ix, ids := newTestIndex(t, "a.png", "b.png", "c.png", "d.png")
	_, _ = ix.AssignHash(ids[0], imagetypes.Hash{1})
	_, _ = ix.AssignHash(ids[1], imagetypes.Hash{1})
	_, _ = ix.AssignHash(ids[2], imagetypes.Hash{2})
	_, _ = ix.AssignHash(ids[3], imagetypes.Hash{2})

	seen := 0
	for range ix.Duplicates().Groups() {
		seen++
		break
	}
	if seen != 1 {
		t.Errorf("iterated %d groups after break", seen)
	}
}

func TestRemoveDuplicatesKeepsSmallestPath(t *testing.T) {
	t.Parallel()

	ix, ids := newTestIndex(t, "b.png", "a.png", "c.png")
	h := imagetypes.Hash{7}
	for _, id := range ids {
		if _, err := ix.AssignHash(id, h); err != nil {
			t.Fatal(err)
		}
		if _, err := ix.AddTag(id, "cat"); err != nil {
			t.Fatal(err)
		}
	}

	group, ok := ix.Duplicates().Group(h)
	if !ok {
		t.Fatal("expected group")
	}
	res, err := ix.Duplicates().RemoveDuplicates(group, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Succeeded) != 2 || res.Err() != nil {
		t.Fatalf("result = %+v", res)
	}

	if ix.Len() != 1 {
		t.Fatalf("Len = %d, want 1", ix.Len())
	}
	if _, ok := ix.Get(ids[1]); !ok {
		t.Error("a.png should have been kept")
	}
	if ix.Frequency().Count("cat") != 1 {
		t.Errorf("cat count = %d, want 1", ix.Frequency().Count("cat"))
	}
	if ix.Duplicates().Count() != 0 {
		t.Error("group should be gone")
	}
}

func TestRemoveDuplicatesExplicitKeep(t *testing.T) {
	t.Parallel()

	ix, ids := newTestIndex(t, "a.png", "b.png", "other.png")
	h := imagetypes.Hash{3}
	_, _ = ix.AssignHash(ids[0], h)
	_, _ = ix.AssignHash(ids[1], h)
	group, _ := ix.Duplicates().Group(h)

	if _, err := ix.Duplicates().RemoveDuplicates(group, ids[2]); !apperrors.IsKind(err, apperrors.KindInvalid) {
		t.Errorf("keeping a non-member should be invalid, got %v", err)
	}
	if ix.Len() != 3 {
		t.Fatal("nothing should be removed on a rejected keep")
	}

	if _, err := ix.Duplicates().RemoveDuplicates(group, ids[1]); err != nil {
		t.Fatal(err)
	}
	if _, ok := ix.Get(ids[1]); !ok {
		t.Error("explicit keep was removed")
	}
	if _, ok := ix.Get(ids[0]); ok {
		t.Error("a.png should have been removed")
	}

	if _, err := ix.Duplicates().RemoveDuplicates(group, ""); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("resolved group should be gone, got %v", err)
	}
}

func TestRemoveDuplicatesSeesLateMembers(t *testing.T) {
	t.Parallel()

	ix, ids := newTestIndex(t, "a.png", "b.png", "c.png")
	h := imagetypes.Hash{5}
	_, _ = ix.AssignHash(ids[0], h)
	_, _ = ix.AssignHash(ids[1], h)
	stale, _ := ix.Duplicates().Group(h)

	_, _ = ix.AssignHash(ids[2], h)

	res, err := ix.Duplicates().RemoveDuplicates(stale, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Succeeded) != 2 || ix.Len() != 1 {
		t.Errorf("removed %d, %d left", len(res.Succeeded), ix.Len())
	}
}
