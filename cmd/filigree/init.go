package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tachyon-beep/filigree/internal/config"
	"github.com/tachyon-beep/filigree/internal/storage/sqlite"
)

var (
	initPrefix string
	initMode   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new Filigree project in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		if projectDir != "" {
			cwd = projectDir
		}
		dir := filepath.Join(cwd, config.Dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}

		cfg := &config.Config{Prefix: initPrefix, Version: 1, Mode: initMode}
		if err := config.Save(dir, cfg); err != nil {
			return err
		}

		dbPath := filepath.Join(dir, config.DBFileName)
		s, err := sqlite.Open(dbPath, sqlite.WithPrefix(initPrefix))
		if err != nil {
			return err
		}
		defer s.Close()

		if jsonOutput {
			printJSON(map[string]string{"project_dir": dir, "db": dbPath})
		} else {
			cmd.Printf("Initialized Filigree project in %s\n", dir)
		}
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initPrefix, "prefix", "fil", "issue id prefix")
	initCmd.Flags().StringVar(&initMode, "mode", config.DefaultMode, "project mode (ethereal|server)")
	rootCmd.AddCommand(initCmd)
}
