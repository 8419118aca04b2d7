package web

import (
	"net/http"

	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// handleQR serves a PNG QR code pointing at the chat page. Without a
// configured public URL the request's own scheme and host are used.
func (s *WebServer) handleQR(w http.ResponseWriter, r *http.Request) {
	target := s.publicURL
	if target == "" {
		target = requestURL(r)
	}

	png, err := qrcode.Encode(target, qrcode.Medium, qrSize)
	if err != nil {
		s.logger.Error("qr encode failed", "url", target, "error", err)
		http.Error(w, "qr code unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := w.Write(png); err != nil {
		s.logger.Debug("qr write failed", "error", err)
	}
}

// requestURL reconstructs the site root the client used.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "https" || p == "http" {
		scheme = p
	}
	return scheme + "://" + r.Host + "/"
}
