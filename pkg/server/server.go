// Package server exposes the post store over a small HTTP API: filters in,
// rendered rows out. It is the request/response rendition of the dashboard.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/mgriffin/stacktracker/internal/store"
)

// Server provides the HTTP API.
type Server struct {
	store store.Store
	port  int
}

// New creates a new HTTP server.
func New(s store.Store, port int) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{store: s, port: port}
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/posts", s.handlePosts)
	mux.HandleFunc("/api/v1/newsletters", s.handleNewsletters)
	mux.HandleFunc("/api/v1/export.csv", s.handleExport)
	return mux
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.port)
	fmt.Printf("stacktracker server listening on %s\n", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// queryOpts maps request query parameters onto store filters.
func queryOpts(r *http.Request) store.QueryOpts {
	opts := store.QueryOpts{Limit: 200}
	q := r.URL.Query()

	opts.Newsletter = q.Get("newsletter")
	opts.Author = q.Get("author")
	opts.Search = q.Get("q")
	if since := q.Get("since"); since != "" {
		if t, err := parseDateParam(since); err == nil {
			opts.Since = t
		}
	}
	if until := q.Get("until"); until != "" {
		if t, err := parseDateParam(until); err == nil {
			opts.Until = t
		}
	}
	if limit := q.Get("limit"); limit != "" {
		var n int
		if _, err := fmt.Sscanf(limit, "%d", &n); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	return opts
}

func parseDateParam(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	posts, err := s.store.QueryPosts(r.Context(), queryOpts(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  posts,
		"count": len(posts),
	})
}

func (s *Server) handleNewsletters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	counts, err := s.store.CountByNewsletter(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	type newsletterInfo struct {
		Name  string `json:"name"`
		Posts int    `json:"posts"`
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	infos := make([]newsletterInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, newsletterInfo{Name: name, Posts: counts[name]})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  infos,
		"count": len(infos),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	opts := queryOpts(r)
	opts.Limit = 0 // export everything that matches

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="posts.csv"`)
	if _, err := s.store.ExportCSV(r.Context(), w, opts); err != nil {
		// Headers are already out; all we can do is log.
		fmt.Printf("export error: %v\n", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
