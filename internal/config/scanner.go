package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// safeNameRe matches the allowed characters in a scanner name, rejecting
// anything that could traverse out of the scanners directory.
var safeNameRe = regexp.MustCompile(`^[\w-]+$`)

// ScannerConfig is one .filigree/scanners/<name>.toml definition. This
// package only parses and lists scanner definitions; invoking the scanner
// as a subprocess is external orchestration and out of scope here.
type ScannerConfig struct {
	Name        string   `toml:"name"`
	Command     []string `toml:"command"`
	Description string   `toml:"description"`
}

type scannerFile struct {
	Scanner ScannerConfig `toml:"scanner"`
}

// BuildCommand substitutes the template variables {file}, {api_url},
// {project_root}, and {scan_run_id} into each command token.
func (s ScannerConfig) BuildCommand(file, apiURL, projectRoot, scanRunID string) []string {
	replacer := strings.NewReplacer(
		"{file}", file,
		"{api_url}", apiURL,
		"{project_root}", projectRoot,
		"{scan_run_id}", scanRunID,
	)
	out := make([]string, len(s.Command))
	for i, tok := range s.Command {
		out[i] = replacer.Replace(tok)
	}
	return out
}

// ListScanners returns the scanner definitions found under scannersDir,
// skipping "*.toml.example" files and anything not ending in ".toml". A
// missing directory yields an empty (not error) result.
func ListScanners(scannersDir string) ([]ScannerConfig, error) {
	entries, err := os.ReadDir(scannersDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []ScannerConfig
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, ".toml.example") || !strings.HasSuffix(name, ".toml") {
			continue
		}
		cfg, err := parseScannerFile(filepath.Join(scannersDir, name))
		if err != nil {
			continue // malformed scanner definitions are skipped, not fatal
		}
		out = append(out, cfg)
	}
	return out, nil
}

// LoadScanner loads a single named scanner definition, rejecting names
// that aren't safe path components (no traversal).
func LoadScanner(scannersDir, name string) (ScannerConfig, error) {
	if !safeNameRe.MatchString(name) {
		return ScannerConfig{}, fmt.Errorf("invalid scanner name %q", name)
	}
	return parseScannerFile(filepath.Join(scannersDir, name+".toml"))
}

func parseScannerFile(path string) (ScannerConfig, error) {
	var f scannerFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return ScannerConfig{}, err
	}
	if f.Scanner.Name == "" || len(f.Scanner.Command) == 0 {
		return ScannerConfig{}, fmt.Errorf("%s: missing [scanner] name or command", path)
	}
	return f.Scanner, nil
}
