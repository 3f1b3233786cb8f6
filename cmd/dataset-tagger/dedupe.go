package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDedupeCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Find byte-identical images and delete all but one of each",
		Long: `Scan the dataset, list every group of identical images and delete the
redundant files. The first path of each group is kept. Use --dry-run to only
list the groups.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			cfg, err := flags.load()
			if err != nil {
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

			out := cmd.OutOrStdout()
			groups := sess.lib.Duplicates()
			if len(groups) == 0 {
				fmt.Fprintln(out, "no duplicates")
				return nil
			}
			for _, g := range groups {
				fmt.Fprintf(out, "%s\n", g.HashString())
				for i, m := range g.Members {
					mark := "delete"
					if i == 0 {
						mark = "keep"
					}
					fmt.Fprintf(out, "  %-6s %s\n", mark, m.Path)
				}
			}
			if dryRun {
				return nil
			}

			res, err := sess.lib.RemoveAllDuplicates(true)
			fmt.Fprintf(out, "removed %d files from %d groups\n", len(res.Succeeded), len(groups))
			return err
		},
	}
	cmd.Flags().Bool("dry-run", false, "list duplicate groups without deleting anything")
	return cmd
}
