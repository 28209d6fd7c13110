package main

import (
	"github.com/spf13/cobra"

	"github.com/tachyon-beep/filigree/internal/types"
)

var claimCmd = &cobra.Command{
	Use:   "claim <id>",
	Short: "Claim an issue for the current actor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		iss, err := store.ClaimIssue(ctx, args[0], actor)
		if err != nil {
			return err
		}
		printIssue(iss)
		return nil
	},
}

var claimNextCmd = &cobra.Command{
	Use:   "claim-next",
	Short: "Claim the highest-priority ready issue",
	RunE: func(cmd *cobra.Command, args []string) error {
		issueType, _ := cmd.Flags().GetString("type")
		filter := types.WorkFilter{}
		if issueType != "" {
			filter.Type = &issueType
		}
		iss, err := store.ClaimNext(ctx, filter, actor)
		if err != nil {
			return err
		}
		printIssue(iss)
		return nil
	},
}

var releaseCmd = &cobra.Command{
	Use:   "release <id>",
	Short: "Release a claimed issue back to the ready pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		iss, err := store.ReleaseIssue(ctx, args[0], actor)
		if err != nil {
			return err
		}
		printIssue(iss)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(claimCmd)

	claimNextCmd.Flags().String("type", "", "restrict to a single issue type")
	rootCmd.AddCommand(claimNextCmd)

	rootCmd.AddCommand(releaseCmd)
}
