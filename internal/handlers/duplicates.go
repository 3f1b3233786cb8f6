package handlers

import (
	"errors"
	"io"
	"net/http"

	"dataset-tagger/internal/apperrors"
	"dataset-tagger/internal/dataset"
	"dataset-tagger/internal/imagetypes"

	"github.com/gorilla/mux"
)

// DuplicateGroupResponse is one group of identical images
type DuplicateGroupResponse struct {
	Hash    string           `json:"hash"`
	Members []dataset.Member `json:"members"`
}

// ResolveRequest chooses the image to keep and whether removed files are
// deleted from disk. Keep is ignored when resolving every group.
type ResolveRequest struct {
	Keep        imagetypes.ImageID `json:"keep,omitempty"`
	DeleteFiles bool               `json:"deleteFiles,omitempty"`
}

// ListDuplicates returns every duplicate group, largest first
func (h *Handlers) ListDuplicates(w http.ResponseWriter, _ *http.Request) {
	groups := h.lib.Duplicates()
	out := make([]DuplicateGroupResponse, len(groups))
	for i, g := range groups {
		out[i] = DuplicateGroupResponse{Hash: g.HashString(), Members: g.Members}
	}
	writeJSON(w, http.StatusOK, out)
}

// decodeResolve reads an optional ResolveRequest body
func decodeResolve(w http.ResponseWriter, r *http.Request) (ResolveRequest, bool) {
	var req ResolveRequest
	if r.ContentLength == 0 {
		return req, true
	}
	err := decodeJSONErr(w, r, &req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// ResolveDuplicates removes every member of one group but the kept image
func (h *Handlers) ResolveDuplicates(w http.ResponseWriter, r *http.Request) {
	hash, err := imagetypes.ParseHash(mux.Vars(r)["hash"])
	if err != nil {
		writeError(w, apperrors.Invalid("resolve duplicates", err.Error()))
		return
	}
	req, ok := decodeResolve(w, r)
	if !ok {
		return
	}

	res, err := h.lib.RemoveDuplicates(hash, req.Keep, req.DeleteFiles)
	h.writeResolved(w, res, err)
}

// ResolveAllDuplicates resolves every group, keeping the smallest path
func (h *Handlers) ResolveAllDuplicates(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeResolve(w, r)
	if !ok {
		return
	}
	res, err := h.lib.RemoveAllDuplicates(req.DeleteFiles)
	h.writeResolved(w, res, err)
}

// writeResolved reports argument errors as such; file deletion failures are
// returned alongside the records that were removed from the index.
func (h *Handlers) writeResolved(w http.ResponseWriter, res dataset.BulkResult, err error) {
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound, apperrors.KindInvalid:
		writeError(w, err)
		return
	}
	out := newBulkResponse(res)
	if err != nil {
		out.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, out)
}
