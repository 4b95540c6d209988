package api

import (
	"errors"
	"html"
	"io"
	"net/http"
)

const successPage = `<html>
  <head><title>Success</title></head>
  <body><p>The operation completed successfully.</p></body>
</html>
`

// htmlContent makes every response on the route UTF-8 HTML, including
// ones written by middleware.
func htmlContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeHTMLError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeHTMLError(w, http.StatusBadRequest, "request too large")
			return
		}
		writeHTMLError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	res := s.ingest.Process(r.Context(), body)
	if res.OK() {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, successPage)
		return
	}
	writeHTMLError(w, res.Status, res.Reason)
}

func statusPrefix(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Bad request"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusInternalServerError:
		return "Internal server error"
	default:
		return http.StatusText(status)
	}
}

func writeHTMLError(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	w.WriteHeader(status)
	msg := html.EscapeString(statusPrefix(status) + " (" + reason + ")")
	_, _ = io.WriteString(w, "<html>\n  <head><title>Error</title></head>\n  <body><p>"+msg+"</p></body>\n</html>\n")
}
