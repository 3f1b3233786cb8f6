package handlers

import (
	"net/http"

	"dataset-tagger/internal/dataset"
	"dataset-tagger/internal/imagetypes"
	"dataset-tagger/internal/media"
	"dataset-tagger/internal/thumbcache"

	"github.com/gorilla/mux"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// ImageList is one page of records
type ImageList struct {
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
	Items    []dataset.Record `json:"items"`
}

// searchTerms collects ?tag= values and the comma separated ?q= list
func searchTerms(r *http.Request) []string {
	q := r.URL.Query()
	terms := append([]string{}, q["tag"]...)
	if text := q.Get("q"); text != "" {
		terms = append(terms, dataset.ParseTags(text)...)
	}
	return terms
}

// ListImages returns records carrying every requested tag, ordered by path
func (h *Handlers) ListImages(w http.ResponseWriter, r *http.Request) {
	recs := h.lib.Search(searchTerms(r))

	page := max(queryInt(r, "page", 1), 1)
	pageSize := queryInt(r, "pageSize", defaultPageSize)
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	start := min((page-1)*pageSize, len(recs))
	end := min(start+pageSize, len(recs))
	writeJSON(w, http.StatusOK, ImageList{
		Total:    len(recs),
		Page:     page,
		PageSize: pageSize,
		Items:    recs[start:end],
	})
}

func imageID(r *http.Request) imagetypes.ImageID {
	return imagetypes.ImageID(mux.Vars(r)["id"])
}

// GetImage returns one record. ?sort= orders its tags (alpha_asc, alpha_desc,
// freq_desc, freq_asc).
func (h *Handlers) GetImage(w http.ResponseWriter, r *http.Request) {
	id := imageID(r)
	rec, ok := h.lib.Index().Get(id)
	if !ok {
		writeJSONError(w, "image not found", http.StatusNotFound)
		return
	}
	if order := r.URL.Query().Get("sort"); order != "" {
		tags, err := h.lib.SortedTags(id, imagetypes.SortOrder(order))
		if err != nil {
			writeError(w, err)
			return
		}
		rec.Tags = tags
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetThumbnail serves the thumbnail as JPEG once it is decoded. While the
// decode is pending it answers 202; after a failure it answers 422 with the
// reason until a retry is requested.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	lookup, err := h.lib.Thumbnail(imageID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeThumbnail(w, lookup)
}

// RetryThumbnail clears a failed decode and requests the thumbnail again
func (h *Handlers) RetryThumbnail(w http.ResponseWriter, r *http.Request) {
	lookup, err := h.lib.RetryThumbnail(imageID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeThumbnail(w, lookup)
}

func (h *Handlers) writeThumbnail(w http.ResponseWriter, lookup thumbcache.Lookup) {
	switch lookup.Status {
	case thumbcache.StatusReady:
		data, err := media.EncodeJPEG(lookup.Bitmap.Image, h.jpegQuality)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "private, max-age=60")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	case thumbcache.StatusPending:
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": lookup.Status.String()})
	default:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"status": lookup.Status.String(),
			"reason": lookup.Reason,
		})
	}
}
