package web

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bouncesift/bouncesift/internal/history"
)

// Server is a small localhost dashboard over the detection history.
type Server struct {
	historyStore *history.Store
	port         int
}

func NewServer(store *history.Store, port int) *Server {
	return &Server{historyStore: store, port: port}
}

func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/api/results", s.handleResults)
	r.Get("/api/stats", s.handleStats)

	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	log.Printf("Dashboard listening on http://%s", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	detections, err := s.historyStore.GetRecent(100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, detections)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	total, hard, soft, err := s.historyStore.GetStats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	reasons, err := s.historyStore.GetReasonStats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	agents, err := s.historyStore.GetAgentStats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"total":   total,
		"hard":    hard,
		"soft":    soft,
		"reasons": reasons,
		"agents":  agents,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: failed to encode response: %v", err)
	}
}

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<title>bouncesift</title>
<style>
body { font-family: sans-serif; margin: 2rem; max-width: 60rem; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 0.3rem 0.6rem; border-bottom: 1px solid #ddd; }
.reason { font-weight: bold; }
.muted { color: #777; }
</style>
</head>
<body>
<h1>bouncesift</h1>
<p>{{.Total}} detections ({{.Hard}} hard, {{.Soft}} soft)</p>
<table>
<tr><th>When</th><th>Agent</th><th>Reason</th><th>Recipient</th><th>Diagnosis</th></tr>
{{range .Recent}}
<tr>
<td class="muted">{{.CreatedAt.Format "2006-01-02 15:04"}}</td>
<td>{{.Agent}}</td>
<td class="reason">{{.Reason}}</td>
<td>{{.Recipient}}</td>
<td>{{.Diagnosis}}</td>
</tr>
{{end}}
</table>
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	total, hard, soft, err := s.historyStore.GetStats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	recent, err := s.historyStore.GetRecent(50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := struct {
		Total, Hard, Soft int
		Recent            []history.Detection
	}{total, hard, soft, recent}

	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("Warning: failed to render index: %v", err)
	}
}
