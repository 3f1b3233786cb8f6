package library

import (
	"strings"

	"dataset-tagger/internal/dataset"
	"dataset-tagger/internal/imagetypes"
	"dataset-tagger/internal/tagdb"
)

// SetTagDatabase replaces the alias database, e.g. after the CSV changed.
func (l *Library) SetTagDatabase(db *tagdb.Database) {
	l.tagsMu.Lock()
	defer l.tagsMu.Unlock()
	l.tags = db
}

// TagDatabase returns the alias database, which may be nil.
func (l *Library) TagDatabase() *tagdb.Database {
	l.tagsMu.RLock()
	defer l.tagsMu.RUnlock()
	return l.tags
}

// Resolve maps an alias to its canonical tag. Input the database does not
// know is returned trimmed.
func (l *Library) Resolve(tag string) string {
	t := strings.TrimSpace(tag)
	if db := l.TagDatabase(); db != nil {
		if e, ok := db.Lookup(t); ok {
			return e.Name
		}
	}
	return t
}

// AddTag adds the canonical form of tag to a record.
func (l *Library) AddTag(id imagetypes.ImageID, tag string) (bool, error) {
	return l.index.AddTag(id, l.Resolve(tag))
}

// PrependTag puts the canonical form of tag first on a record.
func (l *Library) PrependTag(id imagetypes.ImageID, tag string) (bool, error) {
	return l.index.PrependTag(id, l.Resolve(tag))
}

// RemoveTag removes tag from a record. Aliases are not resolved: the tag is
// removed as written on the record.
func (l *Library) RemoveTag(id imagetypes.ImageID, tag string) (bool, error) {
	return l.index.RemoveTag(id, tag)
}

// SetTagsText replaces a record's tags from free text, resolving aliases.
func (l *Library) SetTagsText(id imagetypes.ImageID, text string) error {
	tags := dataset.ParseTags(text)
	for i, t := range tags {
		tags[i] = l.Resolve(t)
	}
	return l.index.SetTags(id, tags)
}

// BulkAddTag adds tag to every record; with prepend it becomes the first tag
// (an activation tag).
func (l *Library) BulkAddTag(tag string, prepend bool) (dataset.BulkResult, error) {
	return l.index.BulkAddTag(l.Resolve(tag), prepend, nil)
}

// BulkAddTagTo adds tag to every record carrying all of filter.
func (l *Library) BulkAddTagTo(tag string, prepend bool, filter []string) (dataset.BulkResult, error) {
	ids := l.index.Frequency().Search(filter)
	selected := make(map[imagetypes.ImageID]bool, len(ids))
	for _, id := range ids {
		selected[id] = true
	}
	return l.index.BulkAddTag(l.Resolve(tag), prepend, func(r dataset.Record) bool {
		return selected[r.ID]
	})
}

// BulkRemoveTag removes tag from every record
func (l *Library) BulkRemoveTag(tag string) dataset.BulkResult {
	return l.index.BulkRemoveTag(tag)
}

// Search returns the records carrying every tag in query, ordered by path.
// An empty query returns every record.
func (l *Library) Search(query []string) []dataset.Record {
	terms := make([]string, 0, len(query))
	for _, q := range query {
		if t := strings.TrimSpace(q); t != "" {
			terms = append(terms, l.Resolve(t))
		}
	}
	if len(terms) == 0 {
		return l.index.Records()
	}
	return l.index.RecordsFor(l.index.Frequency().Search(terms))
}

// TopTags returns the n most (or least) used tags; n <= 0 returns all.
func (l *Library) TopTags(n int, dir dataset.Direction) []dataset.TagCount {
	return l.index.Frequency().TopN(n, dir)
}

// SortedTags returns a record's tags in the requested order.
func (l *Library) SortedTags(id imagetypes.ImageID, order imagetypes.SortOrder) ([]string, error) {
	return l.index.SortedTags(id, order)
}

// Suggest completes prefix. Canonical names from the tag database come
// first; remaining slots are filled with tags already used in the dataset,
// most frequent first. Spaces and underscores are interchangeable.
func (l *Library) Suggest(prefix string, limit int) []string {
	p := tagdb.Normalize(prefix)
	if p == "" || limit <= 0 {
		return []string{}
	}

	out := l.TagDatabase().Suggest(prefix, limit)
	if len(out) >= limit {
		return out
	}
	seen := make(map[string]bool, len(out))
	for _, s := range out {
		seen[tagdb.Normalize(s)] = true
	}
	for _, tc := range l.index.Frequency().TopN(0, dataset.Descending) {
		k := tagdb.Normalize(tc.Tag)
		if seen[k] || !strings.HasPrefix(k, p) {
			continue
		}
		seen[k] = true
		out = append(out, tc.Tag)
		if len(out) == limit {
			break
		}
	}
	return out
}
