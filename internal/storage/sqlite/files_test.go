package sqlite

import (
	"context"
	"testing"

	"github.com/tachyon-beep/filigree/internal/storage"
)

func TestIngestScanDedupsAndBumpsSeenCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	req := storage.ScanIngestRequest{
		ScanSource: "bandit",
		ScanRunID:  "run-1",
		Findings: []storage.ScanIngestFinding{
			{Path: "pkg/auth/login.go", RuleID: "B101", Severity: "high", Message: "hardcoded secret"},
		},
	}
	result, err := s.IngestScan(ctx, req)
	if err != nil {
		t.Fatalf("IngestScan: %v", err)
	}
	if result.FindingsNew != 1 || result.FilesSeen != 1 {
		t.Fatalf("unexpected first ingest result: %+v", result)
	}

	req.ScanRunID = "run-2"
	result, err = s.IngestScan(ctx, req)
	if err != nil {
		t.Fatalf("second IngestScan: %v", err)
	}
	if result.FindingsNew != 0 || result.FindingsUpdated != 1 {
		t.Fatalf("expected the repeat finding to update, not insert: %+v", result)
	}
}

func TestIngestScanMarksUnseen(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := storage.ScanIngestRequest{
		ScanSource: "bandit",
		ScanRunID:  "run-1",
		Findings: []storage.ScanIngestFinding{
			{Path: "a.go", RuleID: "R1", Severity: "low", Message: "m1"},
			{Path: "b.go", RuleID: "R2", Severity: "low", Message: "m2"},
		},
		MarkUnseen: true,
	}
	if _, err := s.IngestScan(ctx, first); err != nil {
		t.Fatalf("first IngestScan: %v", err)
	}

	second := storage.ScanIngestRequest{
		ScanSource: "bandit",
		ScanRunID:  "run-2",
		Findings: []storage.ScanIngestFinding{
			{Path: "a.go", RuleID: "R1", Severity: "low", Message: "m1"},
		},
		MarkUnseen: true,
	}
	result, err := s.IngestScan(ctx, second)
	if err != nil {
		t.Fatalf("second IngestScan: %v", err)
	}
	if result.FindingsMarkedUnseen != 1 {
		t.Fatalf("expected exactly 1 finding swept to unseen_in_latest, got %d", result.FindingsMarkedUnseen)
	}
}

func TestFileHotspotsRanksBySeverity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	req := storage.ScanIngestRequest{
		ScanSource: "bandit",
		ScanRunID:  "run-1",
		Findings: []storage.ScanIngestFinding{
			{Path: "noisy.go", RuleID: "R1", Severity: "critical", Message: "m"},
			{Path: "noisy.go", RuleID: "R2", Severity: "high", Message: "m"},
			{Path: "quiet.go", RuleID: "R3", Severity: "low", Message: "m"},
		},
	}
	if _, err := s.IngestScan(ctx, req); err != nil {
		t.Fatalf("IngestScan: %v", err)
	}

	hotspots, err := s.GetFileHotspots(ctx, 10)
	if err != nil {
		t.Fatalf("GetFileHotspots: %v", err)
	}
	if len(hotspots) == 0 || hotspots[0].Path != "noisy.go" {
		t.Fatalf("expected noisy.go to rank first, got %+v", hotspots)
	}
}
