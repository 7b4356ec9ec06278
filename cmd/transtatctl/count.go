package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCountCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "输出记录总数",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}
