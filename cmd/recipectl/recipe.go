package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chdsbd/recipeyak/internal/client"
	"github.com/chdsbd/recipeyak/internal/reorder"
)

func newShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <recipe>",
		Short: "Print a recipe's ingredients and steps with their positions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipeID, err := parseID(args[0])
			if err != nil {
				return err
			}
			recipe, err := c.client().GetRecipe(cmd.Context(), recipeID)
			if err != nil {
				return err
			}
			return printRecipe(cmd.OutOrStdout(), recipe)
		},
	}
}

func newMoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "move ingredients|steps <recipe> <from> <to>",
		Short: "Move the item at display row from to row to (1-based)",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := reorder.ParseKind(args[0])
			if err != nil {
				return err
			}
			if kind == reorder.KindSection {
				kind = reorder.KindIngredient
			}
			recipeID, err := parseID(args[1])
			if err != nil {
				return err
			}
			from, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid row %q", args[2])
			}
			to, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("invalid row %q", args[3])
			}

			api := c.client()
			recipe, err := api.GetRecipe(cmd.Context(), recipeID)
			if err != nil {
				return err
			}
			items := recipe.StepItems()
			if kind == reorder.KindIngredient {
				items = recipe.IngredientItems()
			}

			list := reorder.NewList(items, api, reorder.Options{Logger: c.logger})
			pending, err := list.Move(cmd.Context(), from-1, to-1)
			if err != nil {
				return err
			}
			if err := pending.Wait(); err != nil {
				return err
			}

			labels := itemLabels(recipe)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for i, item := range list.Items() {
				fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, item.Position, labels[labelKey{item.Kind, item.ID}])
			}
			return w.Flush()
		},
	}
}

func newRebalanceCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "rebalance <recipe>",
		Short: "Respace every position of a recipe to the shortest keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipeID, err := parseID(args[0])
			if err != nil {
				return err
			}
			recipe, err := c.client().Rebalance(cmd.Context(), recipeID)
			if err != nil {
				return err
			}
			return printRecipe(cmd.OutOrStdout(), recipe)
		},
	}
}

type labelKey struct {
	kind reorder.Kind
	id   int64
}

func itemLabels(recipe client.Recipe) map[labelKey]string {
	labels := make(map[labelKey]string)
	for _, i := range recipe.Ingredients {
		labels[labelKey{reorder.KindIngredient, i.ID}] = joinNonEmpty(i.Quantity, i.Name)
	}
	for _, s := range recipe.Sections {
		labels[labelKey{reorder.KindSection, s.ID}] = "## " + s.Title
	}
	for _, s := range recipe.Steps {
		labels[labelKey{reorder.KindStep, s.ID}] = s.Text
	}
	return labels
}

func printRecipe(out io.Writer, recipe client.Recipe) error {
	labels := itemLabels(recipe)
	list := reorder.NewList(recipe.IngredientItems(), nil, reorder.Options{})
	steps := reorder.NewList(recipe.StepItems(), nil, reorder.Options{})

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%s (#%d)\n", recipe.Name, recipe.ID)
	fmt.Fprintln(w, "ingredients")
	for i, item := range list.Items() {
		fmt.Fprintf(w, "  %d\t%s\t%s\n", i+1, item.Position, labels[labelKey{item.Kind, item.ID}])
	}
	fmt.Fprintln(w, "steps")
	for i, item := range steps.Items() {
		fmt.Fprintf(w, "  %d\t%s\t%s\n", i+1, item.Position, labels[labelKey{item.Kind, item.ID}])
	}
	return w.Flush()
}

func joinNonEmpty(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += p
	}
	return out
}
