package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var undoCmd = &cobra.Command{
	Use:   "undo <issue-id>",
	Short: "Revert the most recent reversible event on an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		evt, err := store.UndoLast(ctx, args[0], actor)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(evt)
			return nil
		}
		fmt.Printf("reverted %s on %s\n", evt.EventType, evt.IssueID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(undoCmd)
}
