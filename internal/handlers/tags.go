package handlers

import (
	"net/http"

	"dataset-tagger/internal/dataset"
	"dataset-tagger/internal/imagetypes"
)

// TagRequest adds one tag to an image
type TagRequest struct {
	Tag     string `json:"tag"`
	Prepend bool   `json:"prepend,omitempty"`
}

// TagsTextRequest replaces an image's tags from comma separated text
type TagsTextRequest struct {
	Text string `json:"text"`
}

// BulkTagRequest adds a tag to every image, or to those carrying all of Filter
type BulkTagRequest struct {
	Tag     string   `json:"tag"`
	Prepend bool     `json:"prepend,omitempty"`
	Filter  []string `json:"filter,omitempty"`
}

// TagEditResponse reports a single-image edit
type TagEditResponse struct {
	Changed bool           `json:"changed"`
	Record  dataset.Record `json:"record"`
}

// BulkResponse reports a bulk edit per image
type BulkResponse struct {
	Succeeded []imagetypes.ImageID          `json:"succeeded"`
	Unchanged int                           `json:"unchanged"`
	Failed    map[imagetypes.ImageID]string `json:"failed,omitempty"`
	Error     string                        `json:"error,omitempty"`
}

func newBulkResponse(res dataset.BulkResult) BulkResponse {
	out := BulkResponse{Succeeded: res.Succeeded, Unchanged: res.Unchanged}
	if out.Succeeded == nil {
		out.Succeeded = []imagetypes.ImageID{}
	}
	if len(res.Failed) > 0 {
		out.Failed = make(map[imagetypes.ImageID]string, len(res.Failed))
		for id, err := range res.Failed {
			out.Failed[id] = err.Error()
		}
	}
	return out
}

func (h *Handlers) writeEdit(w http.ResponseWriter, id imagetypes.ImageID, changed bool) {
	rec, ok := h.lib.Index().Get(id)
	if !ok {
		writeJSONError(w, "image not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, TagEditResponse{Changed: changed, Record: rec})
}

// AddImageTag adds (or with prepend, moves to the front) one tag
func (h *Handlers) AddImageTag(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id := imageID(r)
	add := h.lib.AddTag
	if req.Prepend {
		add = h.lib.PrependTag
	}
	changed, err := add(id, req.Tag)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeEdit(w, id, changed)
}

// RemoveImageTag removes ?tag= from an image
func (h *Handlers) RemoveImageTag(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		writeJSONError(w, "tag is required", http.StatusBadRequest)
		return
	}

	id := imageID(r)
	changed, err := h.lib.RemoveTag(id, tag)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeEdit(w, id, changed)
}

// SetImageTags replaces an image's tags from free text
func (h *Handlers) SetImageTags(w http.ResponseWriter, r *http.Request) {
	var req TagsTextRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id := imageID(r)
	if err := h.lib.SetTagsText(id, req.Text); err != nil {
		writeError(w, err)
		return
	}
	h.writeEdit(w, id, true)
}

// GetTagFrequencies returns tag counts. ?order=asc lists the rarest first;
// ?limit= caps the rows.
func (h *Handlers) GetTagFrequencies(w http.ResponseWriter, r *http.Request) {
	dir := dataset.Descending
	switch r.URL.Query().Get("order") {
	case "", "desc":
	case "asc":
		dir = dataset.Ascending
	default:
		writeJSONError(w, "order must be asc or desc", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.lib.TopTags(queryInt(r, "limit", 0), dir))
}

// BulkAddTag adds a tag to every image (or those matching the filter)
func (h *Handlers) BulkAddTag(w http.ResponseWriter, r *http.Request) {
	var req BulkTagRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var (
		res dataset.BulkResult
		err error
	)
	if len(req.Filter) > 0 {
		res, err = h.lib.BulkAddTagTo(req.Tag, req.Prepend, req.Filter)
	} else {
		res, err = h.lib.BulkAddTag(req.Tag, req.Prepend)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBulkResponse(res))
}

// BulkRemoveTag removes ?tag= from every image
func (h *Handlers) BulkRemoveTag(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		writeJSONError(w, "tag is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, newBulkResponse(h.lib.BulkRemoveTag(tag)))
}

// SuggestTags completes ?prefix=, returning at most ?limit= (default 10) tags
func (h *Handlers) SuggestTags(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	writeJSON(w, http.StatusOK, h.lib.Suggest(r.URL.Query().Get("prefix"), limit))
}

// ResolveTag maps ?tag= to its canonical name
func (h *Handlers) ResolveTag(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		writeJSONError(w, "tag is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"input": tag, "canonical": h.lib.Resolve(tag)})
}
