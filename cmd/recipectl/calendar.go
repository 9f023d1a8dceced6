package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/chdsbd/recipeyak/internal/calendar"
)

// calendarWindow is how far around the reference day entries are loaded.
const calendarWindow = 62 * 24 * time.Hour

func newCalendarCmd(c *cli) *cobra.Command {
	var around string

	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Move or recount scheduled recipes",
	}
	cmd.PersistentFlags().StringVar(&around, "around", "", "day used to find the entry, YYYY-MM-DD (default today)")

	loadBoard := func(cmd *cobra.Command, reference time.Time) (*calendar.Board, error) {
		if around != "" {
			day, err := time.Parse(calendar.DateLayout, around)
			if err != nil {
				return nil, fmt.Errorf("invalid --around %q", around)
			}
			reference = day
		}
		api := c.client()
		entries, err := api.ListCalendar(cmd.Context(), reference.Add(-calendarWindow), reference.Add(calendarWindow))
		if err != nil {
			return nil, err
		}
		return calendar.NewBoard(entries, api, c.logger), nil
	}

	printEntry := func(cmd *cobra.Command, board *calendar.Board, id int64) {
		if entry, ok := board.Get(id); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\tx%d\n", entry.ID, entry.On.Format(calendar.DateLayout), entry.RecipeName, entry.Count)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d\tremoved\n", id)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "move <id> <date>",
			Short: "Move a scheduled recipe to another day, merging with the same recipe there",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				to, err := time.Parse(calendar.DateLayout, args[1])
				if err != nil {
					return fmt.Errorf("invalid date %q", args[1])
				}
				board, err := loadBoard(cmd, to)
				if err != nil {
					return err
				}
				before, ok := board.Get(id)
				if !ok {
					return fmt.Errorf("scheduled recipe %d not found near %s", id, to.Format(calendar.DateLayout))
				}
				pending, err := board.Move(cmd.Context(), id, to)
				if err != nil {
					return err
				}
				if err := pending.Wait(); err != nil {
					return err
				}
				printEntry(cmd, board, id)
				for _, entry := range board.Entries() {
					if entry.ID != id && entry.RecipeID == before.RecipeID && entry.On.Equal(calendar.Day(to)) {
						fmt.Fprintf(cmd.OutOrStdout(), "merged into %d (x%d)\n", entry.ID, entry.Count)
					}
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "count <id> <n>",
			Short: "Set how many times a scheduled recipe is cooked; 0 removes it",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				count, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid count %q", args[1])
				}
				board, err := loadBoard(cmd, time.Now().UTC())
				if err != nil {
					return err
				}
				pending, err := board.SetCount(cmd.Context(), id, count)
				if err != nil {
					return err
				}
				if err := pending.Wait(); err != nil {
					return err
				}
				printEntry(cmd, board, id)
				return nil
			},
		},
	)
	return cmd
}
