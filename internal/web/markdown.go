package web

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// md renders replies. Raw HTML in model output is dropped by the
// default renderer.
var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderMarkdown converts a reply to an HTML fragment.
func RenderMarkdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
