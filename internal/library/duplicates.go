package library

import (
	"errors"
	"io/fs"
	"os"

	"dataset-tagger/internal/apperrors"
	"dataset-tagger/internal/dataset"
	"dataset-tagger/internal/imagetypes"

	"github.com/hashicorp/go-multierror"
)

// Duplicates returns every duplicate group, largest first.
func (l *Library) Duplicates() []dataset.DuplicateGroup {
	out := []dataset.DuplicateGroup{}
	for g := range l.index.Duplicates().Groups() {
		out = append(out, g)
	}
	return out
}

// RemoveDuplicates resolves the group with the given hash, keeping keep (or
// the member with the smallest path when keep is empty). With deleteFiles
// the removed images and their tag files are deleted from disk as well;
// failures to delete are returned together.
func (l *Library) RemoveDuplicates(hash imagetypes.Hash, keep imagetypes.ImageID, deleteFiles bool) (dataset.BulkResult, error) {
	dups := l.index.Duplicates()
	group, ok := dups.Group(hash)
	if !ok {
		return dataset.BulkResult{}, apperrors.NotFound("remove duplicates", hash.String())
	}
	paths := make(map[imagetypes.ImageID]string, len(group.Members))
	for _, m := range group.Members {
		paths[m.ID] = m.Path
	}

	result, err := dups.RemoveDuplicates(group, keep)
	if err != nil || !deleteFiles {
		return result, err
	}

	// img.jpg and img.jpeg share img.txt; a survivor's tag file stays
	removed := make(map[imagetypes.ImageID]bool, len(result.Succeeded))
	for _, id := range result.Succeeded {
		removed[id] = true
	}
	kept := make(map[string]bool)
	for id, path := range paths {
		if !removed[id] {
			kept[imagetypes.SidecarPath(path)] = true
		}
	}

	var errs *multierror.Error
	for _, id := range result.Succeeded {
		path, ok := paths[id]
		if !ok {
			// joined the group after it was listed; the index no longer knows its path
			continue
		}
		if err := removeFile(path); err != nil {
			errs = multierror.Append(errs, err)
		}
		if sidecar := imagetypes.SidecarPath(path); !kept[sidecar] {
			if err := removeFile(sidecar); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}
	return result, errs.ErrorOrNil()
}

// RemoveAllDuplicates resolves every group with its default keep.
func (l *Library) RemoveAllDuplicates(deleteFiles bool) (dataset.BulkResult, error) {
	total := dataset.BulkResult{Succeeded: []imagetypes.ImageID{}, Failed: map[imagetypes.ImageID]error{}}
	var errs *multierror.Error
	for _, g := range l.Duplicates() {
		res, err := l.RemoveDuplicates(g.Hash, "", deleteFiles)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		total.Succeeded = append(total.Succeeded, res.Succeeded...)
		total.Unchanged += res.Unchanged
		for id, ferr := range res.Failed {
			total.Failed[id] = ferr
		}
	}
	return total, errs.ErrorOrNil()
}

func removeFile(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return apperrors.IO("delete", path, err)
}
