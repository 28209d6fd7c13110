// Command filigree is a thin CLI consumer of the Filigree storage engine.
// It exists to exercise the library end-to-end; it is not itself a
// stability contract.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tachyon-beep/filigree/internal/config"
	"github.com/tachyon-beep/filigree/internal/storage"
	"github.com/tachyon-beep/filigree/internal/storage/sqlite"
	"github.com/tachyon-beep/filigree/internal/summary"
)

var (
	projectDir string
	actor      string
	jsonOutput bool

	store storage.Storage
	ctx   = context.Background()
)

var rootCmd = &cobra.Command{
	Use:   "filigree",
	Short: "A local, file-backed issue and workflow tracker",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectDir, "project", "", "project directory (default: nearest .filigree ancestor, or cwd)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", envOr("FILIGREE_ACTOR", "cli"), "actor name recorded on mutating events")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON instead of human-readable text")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "init" {
			return nil
		}
		return openStore()
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if store != nil {
			store.Close()
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		FatalError("%v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// resolveProjectDir returns the .filigree directory: an explicit --project
// override, or the first .filigree found walking up from cwd, or
// ./.filigree as a last resort (the path `init` will create).
func resolveProjectDir() (string, error) {
	if projectDir != "" {
		return filepath.Join(projectDir, config.Dir), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	dir := cwd
	for {
		candidate := filepath.Join(dir, config.Dir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return filepath.Join(cwd, config.Dir), nil
}

func openStore() error {
	dir, err := resolveProjectDir()
	if err != nil {
		return fmt.Errorf("resolving project directory: %w", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("no Filigree project found at %s (run 'filigree init' first)", dir)
	}

	dbPath := filepath.Join(dir, config.DBFileName)
	summaryPath := filepath.Join(dir, config.SummaryFileName)

	var opened storage.Storage
	s, err := sqlite.Open(dbPath, sqlite.WithPrefix(cfg.Prefix), sqlite.WithOnMutate(func() {
		if err := summary.WriteSummary(context.Background(), opened, summaryPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to refresh %s: %v\n", summaryPath, err)
		}
	}))
	if err != nil {
		return fmt.Errorf("opening %s: %w", dbPath, err)
	}
	opened = s
	store = s
	return nil
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		FatalError("marshaling output: %v", err)
	}
	fmt.Println(string(data))
}
