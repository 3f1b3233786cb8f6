package dataset

import (
	"sort"
	"strings"
	"sync"

	"dataset-tagger/internal/apperrors"
	"dataset-tagger/internal/imagetypes"
)

// Direction orders TopN results by count
type Direction int

const (
	// Descending puts the most used tags first
	Descending Direction = iota
	// Ascending puts the least used tags first
	Ascending
)

// TagCount is one row of the frequency table.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type tagEntry struct {
	display string
	ids     map[imagetypes.ImageID]struct{}
}

// TagFrequencyIndex counts how many records carry each tag and remembers
// which ones, so AND searches can intersect id sets instead of scanning the
// index. Tags are compared case-insensitively; the first spelling seen is
// the one reported.
//
// It is updated only by Index, while the index write lock is held.
type TagFrequencyIndex struct {
	mu   sync.RWMutex
	tags map[string]*tagEntry
}

// NewTagFrequencyIndex returns an empty frequency index
func NewTagFrequencyIndex() *TagFrequencyIndex {
	return &TagFrequencyIndex{tags: make(map[string]*tagEntry)}
}

func tagKey(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// Count returns the number of records carrying tag
func (f *TagFrequencyIndex) Count(tag string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if e, ok := f.tags[tagKey(tag)]; ok {
		return len(e.ids)
	}
	return 0
}

// Len returns the number of distinct tags in use
func (f *TagFrequencyIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.tags)
}

// Increment records that id now carries tag. Counting the same pair twice
// is an invariant violation.
func (f *TagFrequencyIndex) Increment(tag string, id imagetypes.ImageID) error {
	key := tagKey(tag)
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.tags[key]
	if !ok {
		e = &tagEntry{display: strings.TrimSpace(tag), ids: make(map[imagetypes.ImageID]struct{})}
		f.tags[key] = e
	}
	if _, dup := e.ids[id]; dup {
		return apperrors.Violation("tag-frequency", "tag %q already counted for %s", tag, id)
	}
	e.ids[id] = struct{}{}
	return nil
}

// Decrement records that id no longer carries tag. Decrementing a pair that
// was never counted is an invariant violation.
func (f *TagFrequencyIndex) Decrement(tag string, id imagetypes.ImageID) error {
	key := tagKey(tag)
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.tags[key]
	if !ok {
		return apperrors.Violation("tag-frequency", "decrement of uncounted tag %q", tag)
	}
	if _, counted := e.ids[id]; !counted {
		return apperrors.Violation("tag-frequency", "tag %q not counted for %s", tag, id)
	}
	delete(e.ids, id)
	if len(e.ids) == 0 {
		delete(f.tags, key)
	}
	return nil
}

// TopN returns up to n tags ordered by count in the given direction, ties
// broken alphabetically. n <= 0 returns every tag.
func (f *TagFrequencyIndex) TopN(n int, dir Direction) []TagCount {
	f.mu.RLock()
	out := make([]TagCount, 0, len(f.tags))
	for _, e := range f.tags {
		out = append(out, TagCount{Tag: e.display, Count: len(e.ids)})
	}
	f.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			if dir == Ascending {
				return out[i].Count < out[j].Count
			}
			return out[i].Count > out[j].Count
		}
		return lessFold(out[i].Tag, out[j].Tag)
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Search returns the ids carrying every tag in tags, sorted. An empty query
// matches nothing.
func (f *TagFrequencyIndex) Search(tags []string) []imagetypes.ImageID {
	keys := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		k := tagKey(t)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return []imagetypes.ImageID{}
	}

	f.mu.RLock()
	sets := make([]map[imagetypes.ImageID]struct{}, 0, len(keys))
	for _, k := range keys {
		e, ok := f.tags[k]
		if !ok {
			f.mu.RUnlock()
			return []imagetypes.ImageID{}
		}
		sets = append(sets, e.ids)
	}

	// smallest candidate set first
	sort.Slice(sets, func(i, j int) bool { return len(sets[i]) < len(sets[j]) })

	out := make([]imagetypes.ImageID, 0, len(sets[0]))
candidates:
	for id := range sets[0] {
		for _, s := range sets[1:] {
			if _, ok := s[id]; !ok {
				continue candidates
			}
		}
		out = append(out, id)
	}
	f.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ids returns a copy of the ids carrying tag
func (f *TagFrequencyIndex) ids(tag string) []imagetypes.ImageID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.tags[tagKey(tag)]
	if !ok {
		return nil
	}
	out := make([]imagetypes.ImageID, 0, len(e.ids))
	for id := range e.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func lessFold(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}
