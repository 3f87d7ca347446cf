package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/onehippo-forge/servlet-filter-decorators/internal/version"
	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoration"
)

func (s *Server) newAdminRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, version.Get())
	}).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	admin.HandleFunc("/reload", s.handleReload).Methods(http.MethodPost)
	admin.HandleFunc("/resolve/{host}", s.handleResolve).Methods(http.MethodGet)

	// preview runs the net/http form of the decoration middleware so a
	// forwarded host can be checked without touching the application.
	preview := admin.PathPrefix("/preview").Subrouter()
	preview.Use(decoration.Middleware(s.resolver, s.decorationOptions()))
	preview.PathPrefix("/").HandlerFunc(s.handlePreview)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type configView struct {
	Source      string    `json:"source"`
	Initialized bool      `json:"initialized"`
	Generation  uint64    `json:"generation"`
	LoadedAt    time.Time `json:"loaded_at"`
	LastLoad    time.Time `json:"last_load"`
	Entries     any       `json:"entries"`
	CachedHosts []string  `json:"cached_hosts"`
	StartedAt   time.Time `json:"started_at"`
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	set := s.resolver.Current()
	st := s.resolver.Stats()
	writeJSON(w, http.StatusOK, configView{
		Source:      s.cfg.Source.Name,
		Initialized: st.Initialized,
		Generation:  set.Generation(),
		LoadedAt:    set.LoadedAt(),
		LastLoad:    s.loader.LastLoad(),
		Entries:     set.Entries(),
		CachedHosts: s.resolver.CachedHosts(),
		StartedAt:   s.startedAt,
	})
}

func (s *Server) handleReload(w http.ResponseWriter, _ *http.Request) {
	before := s.resolver.Current().Generation()
	s.Reload()
	after := s.resolver.Current()
	s.logger.Info("reload requested via admin", "generation_before", before, "generation", after.Generation())
	writeJSON(w, http.StatusOK, map[string]any{
		"generation": after.Generation(),
		"entries":    after.Len(),
		"reloaded":   after.Generation() != before,
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	host := mux.Vars(r)["host"]
	e := s.resolver.ResolveHost(host)
	writeJSON(w, http.StatusOK, map[string]any{
		"host":         host,
		"matched":      e.Valid(),
		"enabled":      e.Enabled(),
		"context_path": e.ContextPath(),
		"pattern":      e.Pattern(),
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req := decoration.FromRequest(r, s.cfg.Server.ContextPath)
	_, decorated := req.(*decoration.Decorated)
	writeJSON(w, http.StatusOK, map[string]any{
		"decorated":    decorated,
		"context_path": req.ContextPath(),
	})
}
