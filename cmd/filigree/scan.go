package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tachyon-beep/filigree/internal/storage"
)

// scanIngestInput mirrors the JSON wire contract a scanner submits:
// {scan_source, scan_run_id?, findings: [...], mark_unseen?}.
type scanIngestInput struct {
	ScanSource string                   `json:"scan_source"`
	ScanRunID  string                   `json:"scan_run_id"`
	MarkUnseen bool                     `json:"mark_unseen"`
	Findings   []scanIngestFindingInput `json:"findings"`
}

type scanIngestFindingInput struct {
	Path       string         `json:"path"`
	RuleID     string         `json:"rule_id"`
	Severity   string         `json:"severity"`
	Message    string         `json:"message"`
	Suggestion string         `json:"suggestion"`
	LineStart  *int           `json:"line_start"`
	LineEnd    *int           `json:"line_end"`
	Metadata   map[string]any `json:"metadata"`
}

var scanIngestCmd = &cobra.Command{
	Use:   "scan-ingest [path]",
	Short: "Ingest scan findings from a JSON file (or stdin if path is omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = os.Stdin
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}

		var in scanIngestInput
		if err := json.NewDecoder(r).Decode(&in); err != nil {
			return fmt.Errorf("parsing scan ingest input: %w", err)
		}

		findings := make([]storage.ScanIngestFinding, len(in.Findings))
		for i, f := range in.Findings {
			findings[i] = storage.ScanIngestFinding{
				Path:       f.Path,
				RuleID:     f.RuleID,
				Severity:   f.Severity,
				Message:    f.Message,
				Suggestion: f.Suggestion,
				LineStart:  f.LineStart,
				LineEnd:    f.LineEnd,
				Metadata:   f.Metadata,
			}
		}

		result, err := store.IngestScan(ctx, storage.ScanIngestRequest{
			ScanSource: in.ScanSource,
			ScanRunID:  in.ScanRunID,
			Findings:   findings,
			MarkUnseen: in.MarkUnseen,
		})
		if err != nil {
			return err
		}
		printJSON(result)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanIngestCmd)
}
