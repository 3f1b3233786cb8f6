package dataset

import (
	"sort"
	"sync"

	"dataset-tagger/internal/apperrors"
	"dataset-tagger/internal/imagetypes"
	"dataset-tagger/internal/logging"
	"dataset-tagger/internal/metrics"
)

var log = logging.For("dataset")

// Evictor drops cached data for a removed record.
type Evictor interface {
	Evict(id imagetypes.ImageID) bool
}

// Index is the authoritative set of records.
type Index struct {
	mu      sync.RWMutex
	records map[imagetypes.ImageID]*Record

	freq *TagFrequencyIndex
	dups *DuplicateDetector

	evictMu sync.RWMutex
	evictor Evictor
}

// NewIndex returns an empty index with its frequency and duplicate structures.
func NewIndex() *Index {
	ix := &Index{
		records: make(map[imagetypes.ImageID]*Record),
		freq:    NewTagFrequencyIndex(),
	}
	ix.dups = newDuplicateDetector(ix)
	return ix
}

// SetEvictor registers the cache to notify when records are removed.
func (ix *Index) SetEvictor(e Evictor) {
	ix.evictMu.Lock()
	defer ix.evictMu.Unlock()
	ix.evictor = e
}

// Frequency returns the tag frequency index
func (ix *Index) Frequency() *TagFrequencyIndex { return ix.freq }

// Duplicates returns the duplicate detector
func (ix *Index) Duplicates() *DuplicateDetector { return ix.dups }

// must escalates an invariant violation. Reaching it means the index and its
// derived structures disagree, which no caller can recover from.
func must(err error) {
	if err == nil {
		return
	}
	log.Error("%v", err)
	panic(err)
}

// Upsert returns the id for path, creating a record if the path is new. An
// existing record is returned untouched.
func (ix *Index) Upsert(path string) (imagetypes.ImageID, bool, error) {
	id, normalized, err := imagetypes.IDFromPath(path)
	if err != nil {
		return "", false, apperrors.Invalid("upsert", err.Error())
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.records[id]; ok {
		return id, false, nil
	}
	ix.records[id] = &Record{
		ID:        id,
		Path:      normalized,
		Tags:      []string{},
		Thumbnail: imagetypes.Unloaded(),
	}
	return id, true, nil
}

// AddTag appends tag to a record unless it already carries it.
func (ix *Index) AddTag(id imagetypes.ImageID, tag string) (bool, error) {
	return ix.addTag(id, tag, false)
}

// PrependTag puts tag first on a record, moving it there if already present.
func (ix *Index) PrependTag(id imagetypes.ImageID, tag string) (bool, error) {
	return ix.addTag(id, tag, true)
}

func (ix *Index) addTag(id imagetypes.ImageID, tag string, prepend bool) (bool, error) {
	t, err := NormalizeTag(tag)
	if err != nil {
		return false, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	rec, ok := ix.records[id]
	if !ok {
		return false, apperrors.NotFound("add tag", string(id))
	}
	return ix.addTagLocked(rec, t, prepend), nil
}

func (ix *Index) addTagLocked(rec *Record, tag string, prepend bool) bool {
	if i := rec.tagIndex(tag); i >= 0 {
		if !prepend || i == 0 {
			return false
		}
		existing := rec.Tags[i]
		copy(rec.Tags[1:i+1], rec.Tags[:i])
		rec.Tags[0] = existing
		return true
	}

	tags := make([]string, 0, len(rec.Tags)+1)
	if prepend {
		tags = append(append(tags, tag), rec.Tags...)
	} else {
		tags = append(append(tags, rec.Tags...), tag)
	}
	rec.Tags = tags
	must(ix.freq.Increment(tag, rec.ID))
	metrics.TagMutationsTotal.WithLabelValues("add").Inc()
	return true
}

// RemoveTag drops tag from a record, ignoring case.
func (ix *Index) RemoveTag(id imagetypes.ImageID, tag string) (bool, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rec, ok := ix.records[id]
	if !ok {
		return false, apperrors.NotFound("remove tag", string(id))
	}
	return ix.removeTagLocked(rec, tag), nil
}

func (ix *Index) removeTagLocked(rec *Record, tag string) bool {
	i := rec.tagIndex(tag)
	if i < 0 {
		return false
	}
	removed := rec.Tags[i]
	tags := make([]string, 0, len(rec.Tags)-1)
	tags = append(append(tags, rec.Tags[:i]...), rec.Tags[i+1:]...)
	rec.Tags = tags
	must(ix.freq.Decrement(removed, rec.ID))
	metrics.TagMutationsTotal.WithLabelValues("remove").Inc()
	return true
}

// SetTags replaces a record's tag list. The change is applied to the
// frequency index as individual adds and removes; tags that only change
// case keep their count.
func (ix *Index) SetTags(id imagetypes.ImageID, tags []string) error {
	next := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		t, err := NormalizeTag(tag)
		if err != nil {
			return err
		}
		if seen[tagKey(t)] {
			continue
		}
		seen[tagKey(t)] = true
		next = append(next, t)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	rec, ok := ix.records[id]
	if !ok {
		return apperrors.NotFound("set tags", string(id))
	}

	prev := make(map[string]string, len(rec.Tags))
	for _, t := range rec.Tags {
		prev[tagKey(t)] = t
	}
	for key, t := range prev {
		if !seen[key] {
			must(ix.freq.Decrement(t, id))
			metrics.TagMutationsTotal.WithLabelValues("remove").Inc()
		}
	}
	for _, t := range next {
		if _, had := prev[tagKey(t)]; !had {
			must(ix.freq.Increment(t, id))
			metrics.TagMutationsTotal.WithLabelValues("add").Inc()
		}
	}
	rec.Tags = next
	return nil
}

// SetTagsText parses free text (comma or newline separated) and applies it
// with SetTags.
func (ix *Index) SetTagsText(id imagetypes.ImageID, text string) error {
	return ix.SetTags(id, ParseTags(text))
}

// AssignHash sets a record's content hash. The hash is written once; later
// calls are ignored and report false.
func (ix *Index) AssignHash(id imagetypes.ImageID, hash imagetypes.Hash) (bool, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rec, ok := ix.records[id]
	if !ok {
		return false, apperrors.NotFound("assign hash", string(id))
	}
	if rec.ContentHash != nil {
		log.Debug("hash already assigned for %s, ignoring duplicate completion", rec.Path)
		return false, nil
	}
	h := hash
	rec.ContentHash = &h
	rec.HashError = ""
	ix.dups.add(id, hash)
	return true, nil
}

// ResetHash forgets a record's content hash and hash error, taking it out of
// its duplicate group. Tags are kept. It reports whether a hash was set.
func (ix *Index) ResetHash(id imagetypes.ImageID) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rec, ok := ix.records[id]
	if !ok {
		return false
	}
	had := rec.ContentHash != nil
	rec.ContentHash = nil
	rec.HashError = ""
	ix.dups.remove(id)
	return had
}

// SetHashError records why hashing a record failed.
func (ix *Index) SetHashError(id imagetypes.ImageID, reason string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rec, ok := ix.records[id]
	if !ok {
		return apperrors.NotFound("set hash error", string(id))
	}
	rec.HashError = reason
	return nil
}

// SetThumbnailState updates a record's thumbnail state and reports whether
// the record exists.
func (ix *Index) SetThumbnailState(id imagetypes.ImageID, state imagetypes.ThumbnailState) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rec, ok := ix.records[id]
	if !ok {
		return false
	}
	rec.Thumbnail = state
	return true
}

// Remove deletes a record, its tag counts and duplicate membership, and
// evicts its thumbnail.
func (ix *Index) Remove(id imagetypes.ImageID) error {
	ix.mu.Lock()
	rec, ok := ix.records[id]
	if !ok {
		ix.mu.Unlock()
		return apperrors.NotFound("remove", string(id))
	}
	for _, t := range rec.Tags {
		must(ix.freq.Decrement(t, id))
	}
	if rec.ContentHash != nil {
		ix.dups.remove(id)
	}
	delete(ix.records, id)
	ix.mu.Unlock()

	ix.evictMu.RLock()
	evictor := ix.evictor
	ix.evictMu.RUnlock()
	if evictor != nil {
		evictor.Evict(id)
	}
	return nil
}

// BulkAddTag adds tag to every record match accepts (all records when match
// is nil). With prepend the tag is moved to the front. match runs under the
// index lock and must not call back into the index.
func (ix *Index) BulkAddTag(tag string, prepend bool, match func(Record) bool) (BulkResult, error) {
	t, err := NormalizeTag(tag)
	if err != nil {
		return BulkResult{}, err
	}

	result := newBulkResult()
	for _, id := range ix.IDs() {
		ix.mu.Lock()
		rec, ok := ix.records[id]
		switch {
		case !ok:
			result.Failed[id] = apperrors.NotFound("bulk add tag", string(id))
		case match != nil && !match(rec.clone()):
		case ix.addTagLocked(rec, t, prepend):
			result.Succeeded = append(result.Succeeded, id)
		default:
			result.Unchanged++
		}
		ix.mu.Unlock()
	}
	log.Info("bulk add %q: %d changed, %d unchanged, %d failed",
		t, len(result.Succeeded), result.Unchanged, len(result.Failed))
	return result, nil
}

// BulkRemoveTag removes tag from every record carrying it.
func (ix *Index) BulkRemoveTag(tag string) BulkResult {
	result := newBulkResult()
	for _, id := range ix.freq.ids(tag) {
		ix.mu.Lock()
		rec, ok := ix.records[id]
		switch {
		case !ok:
			result.Failed[id] = apperrors.NotFound("bulk remove tag", string(id))
		case ix.removeTagLocked(rec, tag):
			result.Succeeded = append(result.Succeeded, id)
		default:
			result.Unchanged++
		}
		ix.mu.Unlock()
	}
	log.Info("bulk remove %q: %d changed, %d failed", tag, len(result.Succeeded), len(result.Failed))
	return result
}

// Get returns a copy of a record
func (ix *Index) Get(id imagetypes.ImageID) (Record, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	rec, ok := ix.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Lookup returns a copy of the record for path
func (ix *Index) Lookup(path string) (Record, bool) {
	id, _, err := imagetypes.IDFromPath(path)
	if err != nil {
		return Record{}, false
	}
	return ix.Get(id)
}

// Len returns the number of records
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}

// IDs returns every record id, sorted
func (ix *Index) IDs() []imagetypes.ImageID {
	ix.mu.RLock()
	ids := make([]imagetypes.ImageID, 0, len(ix.records))
	for id := range ix.records {
		ids = append(ids, id)
	}
	ix.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Records returns copies of every record ordered by path.
func (ix *Index) Records() []Record {
	ix.mu.RLock()
	out := make([]Record, 0, len(ix.records))
	for _, rec := range ix.records {
		out = append(out, rec.clone())
	}
	ix.mu.RUnlock()
	sortByPath(out)
	return out
}

// RecordsFor returns copies of the listed records that still exist, ordered
// by path.
func (ix *Index) RecordsFor(ids []imagetypes.ImageID) []Record {
	ix.mu.RLock()
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := ix.records[id]; ok {
			out = append(out, rec.clone())
		}
	}
	ix.mu.RUnlock()
	sortByPath(out)
	return out
}

func sortByPath(recs []Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Path < recs[j].Path })
}

// path returns the path of id without copying the record
func (ix *Index) path(id imagetypes.ImageID) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	rec, ok := ix.records[id]
	if !ok {
		return "", false
	}
	return rec.Path, true
}

// SortedTags returns a record's tags in the requested display order.
func (ix *Index) SortedTags(id imagetypes.ImageID, order imagetypes.SortOrder) ([]string, error) {
	rec, ok := ix.Get(id)
	if !ok {
		return nil, apperrors.NotFound("sorted tags", string(id))
	}
	tags := rec.Tags

	switch order {
	case imagetypes.SortInsertion:
	case imagetypes.SortAlphaAsc:
		sort.SliceStable(tags, func(i, j int) bool { return lessFold(tags[i], tags[j]) })
	case imagetypes.SortAlphaDesc:
		sort.SliceStable(tags, func(i, j int) bool { return lessFold(tags[j], tags[i]) })
	case imagetypes.SortFrequencyDesc, imagetypes.SortFrequencyAsc:
		counts := make(map[string]int, len(tags))
		for _, t := range tags {
			counts[t] = ix.freq.Count(t)
		}
		asc := order == imagetypes.SortFrequencyAsc
		sort.SliceStable(tags, func(i, j int) bool {
			ci, cj := counts[tags[i]], counts[tags[j]]
			if ci != cj {
				if asc {
					return ci < cj
				}
				return ci > cj
			}
			return lessFold(tags[i], tags[j])
		})
	default:
		return nil, apperrors.Invalid("sorted tags", "unknown sort order "+string(order))
	}
	return tags, nil
}

// Stats summarises the index
type Stats struct {
	Records        int `json:"records"`
	Tagged         int `json:"tagged"`
	Hashed         int `json:"hashed"`
	HashFailed     int `json:"hash_failed"`
	ThumbnailReady int `json:"thumbnail_ready"`
	ThumbnailFail  int `json:"thumbnail_failed"`
}

// Stats counts records by state
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	s := Stats{Records: len(ix.records)}
	for _, rec := range ix.records {
		if len(rec.Tags) > 0 {
			s.Tagged++
		}
		if rec.ContentHash != nil {
			s.Hashed++
		}
		if rec.HashError != "" {
			s.HashFailed++
		}
		switch rec.Thumbnail.Status {
		case imagetypes.ThumbnailReady:
			s.ThumbnailReady++
		case imagetypes.ThumbnailFailed:
			s.ThumbnailFail++
		}
	}
	return s
}
