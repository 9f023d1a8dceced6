package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chdsbd/recipeyak/internal/calendar"
)

func newShoppingCmd(c *cli) *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "shopping",
		Short: "Print the combined shopping list for scheduled recipes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from := calendar.Day(time.Now().UTC())
			if start != "" {
				day, err := time.Parse(calendar.DateLayout, start)
				if err != nil {
					return fmt.Errorf("invalid --start %q", start)
				}
				from = day
			}
			to := from.AddDate(0, 0, 6)
			if end != "" {
				day, err := time.Parse(calendar.DateLayout, end)
				if err != nil {
					return fmt.Errorf("invalid --end %q", end)
				}
				to = day
			}

			items, err := c.client().ShoppingList(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			category := ""
			for _, item := range items {
				if item.Category != category {
					category = item.Category
					fmt.Fprintf(tw, "%s\n", category)
				}
				fmt.Fprintf(tw, "  %s\t%s\n", strings.Join(item.Quantities, " + "), item.Name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&end, "end", "", "last day, YYYY-MM-DD (default a week after start)")
	return cmd
}
