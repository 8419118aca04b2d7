package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nugget/envoy/examples"
)

// runInit initializes an Envoy working directory with default files.
// It creates the persona directory and writes the example config and
// summary. Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Envoy workspace in %s\n", dir)

	meDir := filepath.Join(dir, "me")
	if err := os.MkdirAll(meDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", meDir, err)
	}

	// The config may hold API keys and SMTP credentials.
	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, examples.ConfigYAML, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	summaryPath := filepath.Join(meDir, "summary.txt")
	if err := writeIfMissing(summaryPath, examples.SummaryTXT, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", summaryPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml and me/summary.txt, then add your resume as me/linkedin.pdf")
	fmt.Fprintln(w, "(or point persona.profile_file at an .html, .md or .txt profile).")
	return nil
}

// writeIfMissing writes content to path only if the file does not already
// exist. This ensures init never overwrites user customizations.
func writeIfMissing(path string, content []byte, perm os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
