package web

import "net/http"

// PageData is shared by every page rendered in the layout.
type PageData struct {
	Title   string
	Persona string
	Tagline string
}

// ChatData is the template context for the chat page.
type ChatData struct {
	PageData
	Examples []string
}

// handleChat renders the chat page wrapped in the shared layout.
func (s *WebServer) handleChat(w http.ResponseWriter, r *http.Request) {
	data := ChatData{
		PageData: PageData{
			Title:   s.title,
			Persona: s.persona,
			Tagline: s.tagline,
		},
		Examples: s.examples,
	}
	s.render(w, r, "chat.html", data)
}
