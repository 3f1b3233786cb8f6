package library

import (
	"context"

	"dataset-tagger/internal/scanner"
)

// ScanReport summarises the current or last scan and the dataset it left.
type ScanReport struct {
	State           string `json:"state"`
	Discovered      int64  `json:"discovered"`
	Processed       int64  `json:"processed"`
	Indexed         int    `json:"indexed"`
	Failed          int64  `json:"failed"`
	HashFailed      int64  `json:"hash_failed"`
	DecodeFailed    int64  `json:"decode_failed"`
	DuplicateGroups int    `json:"duplicate_groups"`
	DuplicateFiles  int    `json:"duplicate_files"`
	Error           string `json:"error,omitempty"`
}

// Scan starts scanning the library root in the background. The scan is
// bound to the library's lifetime, not to the caller's request.
func (l *Library) Scan() error {
	return l.pipeline.Start(l.ctx, l.config.Root)
}

// CancelScan stops a running scan. Results not yet applied are dropped.
func (l *Library) CancelScan() {
	l.pipeline.Cancel()
}

// ScanState returns the pipeline state
func (l *Library) ScanState() scanner.State {
	return l.pipeline.State()
}

// WaitScan blocks until the running scan ends or ctx is done.
func (l *Library) WaitScan(ctx context.Context) (ScanReport, error) {
	_, err := l.pipeline.Wait(ctx)
	return l.ScanReport(), err
}

// ScanReport returns the scan counters together with the index totals.
func (l *Library) ScanReport() ScanReport {
	s := l.pipeline.Stats()
	dups := l.index.Duplicates()
	groups := dups.Count()
	return ScanReport{
		State:           s.State,
		Discovered:      s.Discovered,
		Processed:       s.Processed,
		Indexed:         l.index.Len(),
		Failed:          s.Failed,
		HashFailed:      s.HashFailed,
		DecodeFailed:    s.DecodeFailed,
		DuplicateGroups: groups,
		DuplicateFiles:  dups.Redundant() + groups,
		Error:           s.Error,
	}
}
