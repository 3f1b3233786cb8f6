package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"dataset-tagger/internal/library"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const progressInterval = 200 * time.Millisecond

func newScanCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the dataset once and print a report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			sess, err := openSession(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer sess.Close()

			report, err := runScan(cmd.Context(), sess.lib, cmd.OutOrStdout(), !asJSON)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(cmd.OutOrStdout(), report, sess.lib.GetStats().CacheBytes)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

// runScan scans lib and waits for the result. Progress is redrawn on one
// line while out is a terminal.
func runScan(ctx context.Context, lib *library.Library, out io.Writer, progress bool) (library.ScanReport, error) {
	if err := lib.Scan(); err != nil {
		return library.ScanReport{}, err
	}

	if progress && isTerminal(out) {
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(progressInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					r := lib.ScanReport()
					fmt.Fprintf(out, "\r%s: %s of %s files", r.State,
						humanize.Comma(r.Processed), humanize.Comma(r.Discovered))
				case <-done:
					fmt.Fprint(out, "\r\033[K")
					return
				}
			}
		}()
	}

	report, err := lib.WaitScan(ctx)
	if err != nil {
		return report, err
	}
	if report.Error != "" {
		return report, fmt.Errorf("scan failed: %s", report.Error)
	}
	return report, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printReport(w io.Writer, r library.ScanReport, cacheBytes int64) {
	fmt.Fprintf(w, "State:            %s\n", r.State)
	fmt.Fprintf(w, "Files discovered: %s\n", humanize.Comma(r.Discovered))
	fmt.Fprintf(w, "Images indexed:   %s\n", humanize.Comma(int64(r.Indexed)))
	fmt.Fprintf(w, "Failed:           %s (hash %d, decode %d)\n", humanize.Comma(r.Failed), r.HashFailed, r.DecodeFailed)
	fmt.Fprintf(w, "Duplicate groups: %d (%d files)\n", r.DuplicateGroups, r.DuplicateFiles)
	fmt.Fprintf(w, "Thumbnail cache:  %s\n", humanize.IBytes(uint64(cacheBytes)))
}
