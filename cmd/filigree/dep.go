package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tachyon-beep/filigree/internal/types"
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage dependency edges between issues",
}

var depAddCmd = &cobra.Command{
	Use:   "add <issue-id> <depends-on-id>",
	Short: "Add a dependency: issue-id depends on depends-on-id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		if err := store.AddDependency(ctx, args[0], args[1], kind, actor); err != nil {
			return err
		}
		fmt.Printf("%s now depends on %s\n", args[0], args[1])
		return nil
	},
}

var depRmCmd = &cobra.Command{
	Use:   "rm <issue-id> <depends-on-id>",
	Short: "Remove a dependency edge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		removed, err := store.RemoveDependency(ctx, args[0], args[1], actor)
		if err != nil {
			return err
		}
		if removed {
			fmt.Printf("removed dependency %s -> %s\n", args[0], args[1])
		} else {
			fmt.Println("no such dependency")
		}
		return nil
	},
}

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "List unblocked, open-category issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		issues, err := store.GetReadyWork(ctx, types.WorkFilter{Limit: limit})
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
		return nil
	},
}

var blockedCmd = &cobra.Command{
	Use:   "blocked",
	Short: "List issues with at least one unresolved blocker",
	RunE: func(cmd *cobra.Command, args []string) error {
		issues, err := store.GetBlocked(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(issues)
			return nil
		}
		for _, iss := range issues {
			fmt.Printf("P%d %s [%s] %q blocked by: %v\n", iss.Priority, iss.ID, iss.Type, iss.Title, iss.BlockedBy)
		}
		return nil
	},
}

var criticalPathCmd = &cobra.Command{
	Use:   "critical-path",
	Short: "Show the longest unresolved dependency chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := store.GetCriticalPath(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(path)
			return nil
		}
		for i, item := range path {
			arrow := ""
			if i > 0 {
				arrow = " -> "
			}
			fmt.Printf("%sP%d %s [%s] %q\n", arrow, item.Priority, item.ID, item.Type, item.Title)
		}
		return nil
	},
}

func init() {
	depAddCmd.Flags().String("kind", types.DefaultDependencyKind, "dependency kind")
	depCmd.AddCommand(depAddCmd)
	depCmd.AddCommand(depRmCmd)
	rootCmd.AddCommand(depCmd)

	readyCmd.Flags().Int("limit", 0, "max rows (0 = unlimited)")
	rootCmd.AddCommand(readyCmd)

	rootCmd.AddCommand(blockedCmd)
	rootCmd.AddCommand(criticalPathCmd)
}
