package dataset

import (
	"strings"

	"dataset-tagger/internal/apperrors"
	"dataset-tagger/internal/imagetypes"

	"github.com/hashicorp/go-multierror"
)

// Record is one indexed image.
type Record struct {
	ID          imagetypes.ImageID        `json:"id"`
	Path        string                    `json:"path"`
	Tags        []string                  `json:"tags"`
	ContentHash *imagetypes.Hash          `json:"content_hash,omitempty"`
	Thumbnail   imagetypes.ThumbnailState `json:"thumbnail"`
	HashError   string                    `json:"hash_error,omitempty"`
}

func (r *Record) clone() Record {
	c := *r
	c.Tags = make([]string, len(r.Tags))
	copy(c.Tags, r.Tags)
	if r.ContentHash != nil {
		h := *r.ContentHash
		c.ContentHash = &h
	}
	return c
}

// HasTag reports whether the record carries tag, ignoring case.
func (r Record) HasTag(tag string) bool {
	return r.tagIndex(tag) >= 0
}

func (r *Record) tagIndex(tag string) int {
	key := tagKey(tag)
	for i, t := range r.Tags {
		if strings.ToLower(t) == key {
			return i
		}
	}
	return -1
}

// BulkResult reports a bulk edit per record.
type BulkResult struct {
	Succeeded []imagetypes.ImageID         `json:"succeeded"`
	Unchanged int                          `json:"unchanged"`
	Failed    map[imagetypes.ImageID]error `json:"-"`
}

func newBulkResult() BulkResult {
	return BulkResult{Succeeded: []imagetypes.ImageID{}, Failed: make(map[imagetypes.ImageID]error)}
}

// Err aggregates the per-record failures, or returns nil.
func (r BulkResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	var result *multierror.Error
	for id, err := range r.Failed {
		result = multierror.Append(result, &bulkError{id: id, err: err})
	}
	return result.ErrorOrNil()
}

type bulkError struct {
	id  imagetypes.ImageID
	err error
}

func (e *bulkError) Error() string { return string(e.id) + ": " + e.err.Error() }
func (e *bulkError) Unwrap() error { return e.err }

// NormalizeTag trims tag and rejects values that cannot be stored in a
// comma separated tag file.
func NormalizeTag(tag string) (string, error) {
	t := strings.TrimSpace(tag)
	if t == "" {
		return "", apperrors.Invalid("tag", "empty tag")
	}
	if strings.ContainsAny(t, ",\r\n") {
		return "", apperrors.Invalid("tag", "tag may not contain commas or newlines: "+t)
	}
	return t, nil
}

// ParseTags splits free text on commas and newlines into an ordered tag
// list without blanks or case-insensitive duplicates.
func ParseTags(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		t := strings.TrimSpace(f)
		if t == "" || seen[tagKey(t)] {
			continue
		}
		seen[tagKey(t)] = true
		out = append(out, t)
	}
	return out
}

// FormatTags renders tags the way tag files store them: "a, b, c".
func FormatTags(tags []string) string {
	return strings.Join(tags, ", ")
}
