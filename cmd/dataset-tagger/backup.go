package main

import (
	"fmt"

	"dataset-tagger/internal/startup"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newBackupCmd(flags *globalFlags) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot every image and its tags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(func(c *startup.Config) {
				if dir != "" {
					c.BackupDir = dir
				}
			})
			if err != nil {
				return err
			}
			if cfg.BackupDir == "" {
				return fmt.Errorf("no backup directory: pass --dir or set BACKUP_DIR")
			}
			if err := startup.EnsureDirectory(cfg.BackupDir, "backup"); err != nil {
				return err
			}
			sess, err := openSession(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer sess.Close()

			if _, err := runScan(cmd.Context(), sess.lib, cmd.ErrOrStderr(), true); err != nil {
				return err
			}
			m, err := sess.lib.Backup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s: %d images, %d files, %s -> %s\n",
				m.ID, m.Images, m.Files, humanize.IBytes(uint64(m.Bytes)), m.Dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "backup directory (overrides BACKUP_DIR)")
	return cmd
}
