package library

import (
	"context"

	"dataset-tagger/internal/apperrors"
	"dataset-tagger/internal/backup"
	"dataset-tagger/internal/store"
)

// Entries returns the persistable state of every record, ordered by path.
func (l *Library) Entries() []store.Entry {
	recs := l.index.Records()
	out := make([]store.Entry, len(recs))
	for i, r := range recs {
		out[i] = store.Entry{Path: r.Path, Tags: r.Tags}
	}
	return out
}

// Save writes every record's tags to the store.
func (l *Library) Save(ctx context.Context) error {
	if l.store == nil {
		return apperrors.Invalid("save", "no tag store configured")
	}
	return l.store.Save(ctx, l.Entries())
}

// Load restores records and tags from the store. Paths that no longer exist
// on disk are skipped. Hashes and thumbnails are computed when first needed.
// It returns the number of records restored.
func (l *Library) Load(ctx context.Context) (int, error) {
	if l.store == nil {
		return 0, apperrors.Invalid("load", "no tag store configured")
	}
	entries, err := l.store.Load(ctx)
	if err != nil {
		return 0, err
	}

	restored, missing := 0, 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return restored, ctx.Err()
		}
		if !exists(e.Path) {
			missing++
			continue
		}
		id, _, err := l.index.Upsert(e.Path)
		if err != nil {
			log.Warn("load %s: %v", e.Path, err)
			continue
		}
		if err := l.index.SetTags(id, e.Tags); err != nil {
			log.Warn("load tags for %s: %v", e.Path, err)
			continue
		}
		restored++
	}
	log.Info("loaded %d records from %s store (%d missing on disk)", restored, l.store.Name(), missing)
	return restored, nil
}

// Backup snapshots every record and prunes old snapshots.
func (l *Library) Backup(ctx context.Context) (backup.Manifest, error) {
	if l.backups == nil {
		return backup.Manifest{}, apperrors.Invalid("backup", "no backup directory configured")
	}
	m, err := l.backups.Snapshot(ctx, l.config.Root, l.Entries())
	if l.config.BackupKeep > 0 {
		if _, perr := l.backups.Prune(l.config.BackupKeep); perr != nil {
			log.Warn("prune backups: %v", perr)
		}
	}
	return m, err
}
