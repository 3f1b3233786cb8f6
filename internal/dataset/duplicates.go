package dataset

import (
	"iter"
	"sort"
	"sync"

	"dataset-tagger/internal/apperrors"
	"dataset-tagger/internal/imagetypes"
)

// Member is one image of a duplicate group.
type Member struct {
	ID   imagetypes.ImageID `json:"id"`
	Path string             `json:"path"`
}

// DuplicateGroup is a set of images sharing one content hash. Members are
// ordered by path.
type DuplicateGroup struct {
	Hash    imagetypes.Hash `json:"-"`
	Members []Member        `json:"members"`
}

// HashString returns the group's hash in hex
func (g DuplicateGroup) HashString() string { return g.Hash.String() }

// DuplicateDetector maintains hash → ids incrementally as hashes are
// assigned. Every hashed record is in exactly one group; only groups with at
// least two members are reported.
type DuplicateDetector struct {
	mu     sync.RWMutex
	groups map[imagetypes.Hash]map[imagetypes.ImageID]struct{}
	byID   map[imagetypes.ImageID]imagetypes.Hash

	index *Index
}

func newDuplicateDetector(ix *Index) *DuplicateDetector {
	return &DuplicateDetector{
		groups: make(map[imagetypes.Hash]map[imagetypes.ImageID]struct{}),
		byID:   make(map[imagetypes.ImageID]imagetypes.Hash),
		index:  ix,
	}
}

func (d *DuplicateDetector) add(id imagetypes.ImageID, hash imagetypes.Hash) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.byID[id]; ok {
		if prev == hash {
			return
		}
		d.removeLocked(id)
	}
	g, ok := d.groups[hash]
	if !ok {
		g = make(map[imagetypes.ImageID]struct{})
		d.groups[hash] = g
	}
	g[id] = struct{}{}
	d.byID[id] = hash
}

func (d *DuplicateDetector) remove(id imagetypes.ImageID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(id)
}

func (d *DuplicateDetector) removeLocked(id imagetypes.ImageID) {
	hash, ok := d.byID[id]
	if !ok {
		return
	}
	delete(d.byID, id)
	g := d.groups[hash]
	delete(g, id)
	if len(g) == 0 {
		delete(d.groups, hash)
	}
}

type groupSnapshot struct {
	hash imagetypes.Hash
	ids  []imagetypes.ImageID
}

func (d *DuplicateDetector) snapshot() []groupSnapshot {
	d.mu.RLock()
	out := make([]groupSnapshot, 0)
	for hash, g := range d.groups {
		if len(g) < 2 {
			continue
		}
		ids := make([]imagetypes.ImageID, 0, len(g))
		for id := range g {
			ids = append(ids, id)
		}
		out = append(out, groupSnapshot{hash: hash, ids: ids})
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if len(out[i].ids) != len(out[j].ids) {
			return len(out[i].ids) > len(out[j].ids)
		}
		return out[i].hash.Compare(out[j].hash) < 0
	})
	return out
}

// resolve attaches paths; ids removed since the snapshot are dropped.
func (d *DuplicateDetector) resolve(s groupSnapshot) DuplicateGroup {
	g := DuplicateGroup{Hash: s.hash, Members: make([]Member, 0, len(s.ids))}
	for _, id := range s.ids {
		if p, ok := d.index.path(id); ok {
			g.Members = append(g.Members, Member{ID: id, Path: p})
		}
	}
	sort.Slice(g.Members, func(i, j int) bool { return g.Members[i].Path < g.Members[j].Path })
	return g
}

// Groups yields duplicate groups with two or more members, largest first,
// ties ordered by hash. The set of groups is fixed when iteration starts.
func (d *DuplicateDetector) Groups() iter.Seq[DuplicateGroup] {
	return func(yield func(DuplicateGroup) bool) {
		for _, s := range d.snapshot() {
			g := d.resolve(s)
			if len(g.Members) < 2 {
				continue
			}
			if !yield(g) {
				return
			}
		}
	}
}

// Group returns the group for hash, if it has two or more members.
func (d *DuplicateDetector) Group(hash imagetypes.Hash) (DuplicateGroup, bool) {
	d.mu.RLock()
	g, ok := d.groups[hash]
	var ids []imagetypes.ImageID
	if ok && len(g) >= 2 {
		for id := range g {
			ids = append(ids, id)
		}
	}
	d.mu.RUnlock()

	if len(ids) < 2 {
		return DuplicateGroup{}, false
	}
	group := d.resolve(groupSnapshot{hash: hash, ids: ids})
	return group, len(group.Members) >= 2
}

// Count returns the number of reported groups
func (d *DuplicateDetector) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, g := range d.groups {
		if len(g) >= 2 {
			n++
		}
	}
	return n
}

// Redundant returns how many images could be removed while keeping one per
// group.
func (d *DuplicateDetector) Redundant() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, g := range d.groups {
		if len(g) >= 2 {
			n += len(g) - 1
		}
	}
	return n
}

// RemoveDuplicates removes every member of the group except keep from the
// index. An empty keep keeps the member with the smallest path. Membership
// is re-read, so records added to the group since it was listed are removed
// too. This cannot be undone.
func (d *DuplicateDetector) RemoveDuplicates(group DuplicateGroup, keep imagetypes.ImageID) (BulkResult, error) {
	current, ok := d.Group(group.Hash)
	if !ok {
		return BulkResult{}, apperrors.NotFound("remove duplicates", group.Hash.String())
	}

	if keep == "" {
		keep = current.Members[0].ID
	} else {
		found := false
		for _, m := range current.Members {
			if m.ID == keep {
				found = true
				break
			}
		}
		if !found {
			return BulkResult{}, apperrors.Invalid("remove duplicates", "keep is not a member of the group")
		}
	}

	result := newBulkResult()
	for _, m := range current.Members {
		if m.ID == keep {
			continue
		}
		if err := d.index.Remove(m.ID); err != nil {
			result.Failed[m.ID] = err
			continue
		}
		result.Succeeded = append(result.Succeeded, m.ID)
	}
	log.Info("duplicate group %s: kept %s, removed %d", group.Hash.String()[:12], keep, len(result.Succeeded))
	return result, nil
}
