package persona

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/nugget/envoy/internal/httpkit"
)

// maxFetchBytes bounds a downloaded persona document.
const maxFetchBytes int64 = 5 * 1024 * 1024

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// fetchDocument downloads rawURL and extracts its text. The format
// comes from the Content-Type, falling back to the URL path extension.
func fetchDocument(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf,text/markdown,text/plain;q=0.9,*/*;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d: %s", rawURL, resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	format := formatForContentType(resp.Header.Get("Content-Type"))
	if format == "" {
		format = formatForExt(urlExt(rawURL))
	}
	if format == formatText && !utf8.Valid(body) {
		return "", fmt.Errorf("fetch %s: binary content (%s)", rawURL, resp.Header.Get("Content-Type"))
	}
	return extract(body, format)
}

// formatForContentType maps a media type to a format, or "" when the
// type says nothing useful.
func formatForContentType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	switch mt {
	case "application/pdf":
		return formatPDF
	case "text/html", "application/xhtml+xml":
		return formatHTML
	case "text/markdown", "text/x-markdown":
		return formatMarkdown
	case "text/plain":
		return formatText
	}
	return ""
}

func urlExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return path.Ext(u.Path)
}
