package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crev/internal/client"
	"crev/internal/logging"
	"crev/internal/review"
	"crev/internal/session"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/review", s.handleReview)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/sessions/", s.handleSessionByName)
	mux.HandleFunc("/index", s.handleIndex)
	mux.HandleFunc("/index/refresh", s.handleIndexRefresh)

	return s.withRecovery(s.withLogging(mux))
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start).Round(time.Millisecond).String(),
		)
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.Error("handler panic", "path", r.URL.Path, "panic", rec)
				s.writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime"`
	ProjectRoot string `json:"project_root"`
	IndexFiles  int    `json:"index_files"`
	IndexSyms   int    `json:"index_symbols"`
	Sessions    int    `json:"sessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	idx := s.Index()
	sessions, _ := s.store.List(s.root, session.ListOptions{})
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Version:     s.version,
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
		ProjectRoot: s.root,
		IndexFiles:  idx.Stats.TotalFiles,
		IndexSyms:   idx.Stats.TotalSymbols,
		Sessions:    len(sessions),
	})
}

type reviewRequest struct {
	ProjectRoot  string `json:"project_root,omitempty"`
	Session      string `json:"session"`
	Diff         string `json:"diff"`
	Instructions string `json:"instructions,omitempty"`
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Session == "" {
		req.Session = "default"
	}
	// The service indexes exactly one project; reviews against another
	// root need their own service instance.
	if req.ProjectRoot != "" && req.ProjectRoot != s.root {
		s.writeError(w, http.StatusBadRequest, "service is bound to project root "+s.root)
		return
	}

	result, err := s.runner.Run(r.Context(), &review.Request{
		ProjectRoot:  s.root,
		SessionName:  req.Session,
		Diff:         req.Diff,
		Instructions: req.Instructions,
	}, s.Index())
	if err != nil {
		switch {
		case busyReview(err):
			s.writeError(w, http.StatusConflict, "session is busy with another review")
		case errors.Is(err, client.ErrEngineUnreachable):
			s.writeError(w, http.StatusBadGateway, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	opt := session.ListOptions{
		Name:   r.URL.Query().Get("name"),
		SortBy: r.URL.Query().Get("sort_by"),
	}
	switch opt.SortBy {
	case "", "last_active", "name", "created":
	default:
		s.writeError(w, http.StatusBadRequest, "invalid sort_by")
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opt.Limit = limit
	}

	infos, err := s.store.List(s.root, opt)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": infos})
}

func (s *Server) handleSessionByName(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if name == "" || strings.Contains(name, "/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		sess, err := s.store.Load(s.root, name)
		if err != nil {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.writeJSON(w, http.StatusOK, sess.Info())
	case http.MethodDelete:
		if err := s.store.Delete(s.root, name); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"deleted": name})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.Index().Stats)
}

func (s *Server) handleIndexRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.Rebuild(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.Index().Stats)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Warn("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}
