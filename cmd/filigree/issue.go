package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tachyon-beep/filigree/internal/storage"
	"github.com/tachyon-beep/filigree/internal/types"
)

func printIssue(iss *types.Issue) {
	if jsonOutput {
		printJSON(iss)
		return
	}
	readyMarker := ""
	if iss.IsReady {
		readyMarker = " *"
	}
	fmt.Printf("P%d %s [%s] %-12s %s%s\n", iss.Priority, iss.ID, iss.Type, iss.Status, iss.Title, readyMarker)
}

var createCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new issue",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := strings.Join(args, " ")
		issueType, _ := cmd.Flags().GetString("type")
		priority, _ := cmd.Flags().GetInt("priority")
		parent, _ := cmd.Flags().GetString("parent")
		description, _ := cmd.Flags().GetString("description")
		labels, _ := cmd.Flags().GetStringSlice("label")
		deps, _ := cmd.Flags().GetStringSlice("dep")

		var parentID *string
		if parent != "" {
			parentID = &parent
		}

		iss, err := store.CreateIssue(ctx, storage.CreateIssueParams{
			Title:       title,
			Type:        issueType,
			Priority:    priority,
			ParentID:    parentID,
			Description: description,
			Labels:      labels,
			Deps:        deps,
			Actor:       actor,
		})
		if err != nil {
			return err
		}
		printIssue(iss)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		iss, err := store.GetIssue(ctx, args[0])
		if err != nil {
			return err
		}
		printIssue(iss)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues matching optional filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := types.IssueFilter{}
		if v, _ := cmd.Flags().GetString("status"); v != "" {
			filter.Status = &v
		}
		if v, _ := cmd.Flags().GetString("type"); v != "" {
			filter.Type = &v
		}
		if v, _ := cmd.Flags().GetString("assignee"); v != "" {
			filter.Assignee = &v
		}
		limit, _ := cmd.Flags().GetInt("limit")
		filter.Limit = limit

		issues, err := store.ListIssues(ctx, filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(issues)
			return nil
		}
		for _, iss := range issues {
			printIssue(iss)
		}
		fmt.Printf("\n%d issues\n", len(issues))
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update an issue's mutable fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := storage.UpdateIssueParams{Actor: actor}
		if v, _ := cmd.Flags().GetString("status"); cmd.Flags().Changed("status") {
			p.Status = &v
		}
		if v, _ := cmd.Flags().GetInt("priority"); cmd.Flags().Changed("priority") {
			p.Priority = &v
		}
		if v, _ := cmd.Flags().GetString("title"); cmd.Flags().Changed("title") {
			p.Title = &v
		}
		if v, _ := cmd.Flags().GetString("assignee"); cmd.Flags().Changed("assignee") {
			p.Assignee = &v
		}
		if v, _ := cmd.Flags().GetString("description"); cmd.Flags().Changed("description") {
			p.Description = &v
		}
		if v, _ := cmd.Flags().GetString("notes"); cmd.Flags().Changed("notes") {
			p.Notes = &v
		}

		iss, err := store.UpdateIssue(ctx, args[0], p)
		if err != nil {
			return err
		}
		printIssue(iss)
		return nil
	},
}

var closeCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		iss, err := store.CloseIssue(ctx, args[0], storage.CloseIssueParams{Reason: reason, Actor: actor})
		if err != nil {
			return err
		}
		printIssue(iss)
		return nil
	},
}

var reopenCmd = &cobra.Command{
	Use:   "reopen <id>",
	Short: "Reopen a closed issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		iss, err := store.ReopenIssue(ctx, args[0], actor)
		if err != nil {
			return err
		}
		printIssue(iss)
		return nil
	},
}

func init() {
	createCmd.Flags().StringP("type", "t", "task", "issue type")
	createCmd.Flags().IntP("priority", "p", 2, "priority (0 highest)")
	createCmd.Flags().String("parent", "", "parent issue id")
	createCmd.Flags().StringP("description", "d", "", "description text")
	createCmd.Flags().StringSliceP("label", "l", nil, "label (repeatable)")
	createCmd.Flags().StringSlice("dep", nil, "id this issue depends on (repeatable)")
	rootCmd.AddCommand(createCmd)

	rootCmd.AddCommand(showCmd)

	listCmd.Flags().String("status", "", "filter by exact status")
	listCmd.Flags().String("type", "", "filter by type")
	listCmd.Flags().String("assignee", "", "filter by assignee")
	listCmd.Flags().Int("limit", 0, "max rows (0 = unlimited)")
	rootCmd.AddCommand(listCmd)

	updateCmd.Flags().String("status", "", "new status")
	updateCmd.Flags().Int("priority", 0, "new priority")
	updateCmd.Flags().String("title", "", "new title")
	updateCmd.Flags().String("assignee", "", "new assignee")
	updateCmd.Flags().StringP("description", "d", "", "new description")
	updateCmd.Flags().String("notes", "", "new notes")
	rootCmd.AddCommand(updateCmd)

	closeCmd.Flags().String("reason", "", "closing reason, recorded as a close_reason event")
	rootCmd.AddCommand(closeCmd)

	rootCmd.AddCommand(reopenCmd)
}
