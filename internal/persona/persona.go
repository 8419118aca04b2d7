// Package persona loads the grounding documents for the person Envoy
// speaks for: a short summary and a resume or profile document.
//
// Either document may be a local file or an http(s) URL. Loading never
// fails. A missing or unreadable document is logged and contributes an
// empty string, and the prompt builder substitutes a placeholder for it.
package persona

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/nugget/envoy/internal/config"
	"github.com/nugget/envoy/internal/httpkit"
)

// Context is the persona grounding text. It is loaded once at startup
// and read-only afterwards.
type Context struct {
	Name    string
	Summary string
	Profile string
}

// Load reads the summary and profile named in cfg.
func Load(ctx context.Context, cfg config.PersonaConfig, logger *slog.Logger) Context {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "persona")

	client := httpkit.NewClient()
	pc := Context{Name: cfg.Name}

	if cfg.SummaryFile != "" {
		text, err := readDocument(ctx, client, cfg.SummaryFile)
		if err != nil {
			logger.Warn("summary not loaded", "path", cfg.SummaryFile, "error", err)
		} else {
			pc.Summary = text
		}
	}

	if cfg.ProfileFile != "" {
		text, err := readDocument(ctx, client, cfg.ProfileFile)
		if err != nil {
			logger.Warn("profile not loaded", "path", cfg.ProfileFile, "error", err)
		} else {
			pc.Profile = text
		}
	}

	if chars := utf8.RuneCountInString(pc.Profile); cfg.MaxChars > 0 && chars > cfg.MaxChars {
		logger.Info("profile truncated", "chars", chars, "max_chars", cfg.MaxChars)
		pc.Profile = truncate(pc.Profile, cfg.MaxChars)
	}

	logger.Info("persona loaded",
		"name", pc.Name,
		"summary_chars", len(pc.Summary),
		"profile_chars", len(pc.Profile),
	)
	return pc
}

func readDocument(ctx context.Context, client *http.Client, src string) (string, error) {
	if isURL(src) {
		return fetchDocument(ctx, client, src)
	}
	return ExtractFile(src)
}

// ExtractFile returns the plain text of a document, choosing the
// extractor by file extension.
func ExtractFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return extract(data, formatForExt(filepath.Ext(path)))
}

// Document formats with their own extractor.
const (
	formatText     = "text"
	formatPDF      = "pdf"
	formatHTML     = "html"
	formatMarkdown = "markdown"
)

func formatForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return formatPDF
	case ".html", ".htm":
		return formatHTML
	case ".md", ".markdown":
		return formatMarkdown
	default:
		return formatText
	}
}

func extract(data []byte, format string) (string, error) {
	switch format {
	case formatPDF:
		return extractPDF(data)
	case formatHTML:
		return extractHTML(data)
	case formatMarkdown:
		return extractMarkdown(data), nil
	default:
		return strings.TrimSpace(string(data)), nil
	}
}

// truncate cuts s to at most n characters (runes).
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
