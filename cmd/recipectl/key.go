package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chdsbd/recipeyak/internal/ordering"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Compute position keys offline",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "after <key>",
			Short: "Print a key that sorts after key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, err := ordering.PositionAfter(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			},
		},
		&cobra.Command{
			Use:   "before <key>",
			Short: "Print a key that sorts before key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, err := ordering.PositionBefore(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			},
		},
		&cobra.Command{
			Use:   "between <low> <high>",
			Short: `Print a key strictly between low and high; pass "" for an open end`,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, err := ordering.PositionBetween(args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			},
		},
		&cobra.Command{
			Use:   "spread <n>",
			Short: "Print n evenly appended keys",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var n int
				if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil || n <= 0 {
					return fmt.Errorf("invalid count %q", args[0])
				}
				for _, key := range ordering.Spread(n) {
					fmt.Fprintln(cmd.OutOrStdout(), key)
				}
				return nil
			},
		},
	)
	return cmd
}
