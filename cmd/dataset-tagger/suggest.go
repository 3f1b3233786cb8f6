package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSuggestCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest <prefix>",
		Short: "Complete a tag from the tag database and the dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := flags.load()
			if err != nil {
				return err
			}
			sess, err := openSession(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer sess.Close()

			// stored tags are enough; only scan when there is nothing to load
			if sess.store != nil {
				if _, err := sess.lib.Load(cmd.Context()); err != nil {
					return err
				}
			} else if _, err := runScan(cmd.Context(), sess.lib, cmd.ErrOrStderr(), false); err != nil {
				return err
			}

			for _, s := range sess.lib.Suggest(args[0], limit) {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 10, "maximum number of suggestions")
	return cmd
}
