// Package web serves the browser front-end. Each browser gets its own
// session holding a workflow shell; tab-open and alert requests raised by
// that shell are emitted into the next page the browser renders.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/a3tai/pdf-playground/internal/backend"
	"github.com/a3tai/pdf-playground/internal/config"
	"github.com/a3tai/pdf-playground/internal/workflow"
)

//go:embed templates/*.html
var templateFS embed.FS

const shutdownTimeout = 10 * time.Second

// Backend is what the front-end needs from the PDF service.
type Backend interface {
	workflow.API
	backend.Downloader
}

// Server is the browser front-end.
type Server struct {
	config   *config.Config
	api      Backend
	logger   *logrus.Logger
	sessions *sessionStore
	tmpl     *template.Template
	router   *mux.Router
}

type pageData struct {
	Title    string
	Snapshot workflow.Snapshot
	Events   []workflow.Event
}

// NewServer creates the front-end for cfg talking to api.
func NewServer(cfg *config.Config, api Backend, logger *logrus.Logger) (*Server, error) {
	if api == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"proxyLink": proxyLink,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	s := &Server{
		config:   cfg,
		api:      api,
		logger:   logger,
		sessions: newSessionStore(api, DefaultSessionTTL, logger),
		tmpl:     tmpl,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := mux.NewRouter().UseEncodedPath()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/clear", s.handleClear).Methods(http.MethodPost)
	r.HandleFunc("/fill", s.handleFill).Methods(http.MethodPost)
	r.HandleFunc("/fields/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/download/{id}", s.handleDownload).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.router = r
}

// Handler returns the front-end's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.WithFields(logrus.Fields{
			"address": ln.Addr().String(),
			"backend": s.config.BackendURL,
		}).Info("Web front-end listening")
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Error("HTTP server shutdown failed")
			return err
		}
		s.logger.Info("Web front-end stopped")
		return nil
	})
	return g.Wait()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)
	data := pageData{
		Title:    s.config.ServerName,
		Snapshot: sess.shell.Snapshot(),
		Events:   sess.events.Drain(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.WithError(err).Error("Rendering page failed")
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadSize)

	file, header, err := r.FormFile(backend.UploadField)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// Nothing picked: no request is made.
		redirectHome(w, r)
		return
	case err != nil:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid upload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	outcome := sess.shell.Upload(r.Context(), workflow.LocalFile{Name: header.Filename, Content: file})
	if outcome.OK() {
		// Render the listing on the page that follows instead of a loading state.
		ctx, cancel := context.WithTimeout(r.Context(), s.waitTimeout())
		_, _ = sess.shell.WaitForFields(ctx)
		cancel()
	}
	redirectHome(w, r)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)
	sess.shell.Clear()
	redirectHome(w, r)
}

func (s *Server) handleFill(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)
	form, err := sess.shell.FillForm()
	if err != nil {
		redirectHome(w, r)
		return
	}

	form.SetName(r.FormValue("name"))
	form.SetValue(r.FormValue("value"))
	// Success and failure both reach the browser through the session's events.
	_, _ = form.Submit(r.Context())
	redirectHome(w, r)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)
	if viewer, err := sess.shell.Viewer(); err == nil {
		_ = viewer.Load(r.Context())
	}
	redirectHome(w, r)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if unescaped, err := url.PathUnescape(id); err == nil {
		id = unescaped
	}

	dl, err := s.api.Download(r.Context(), id)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			http.Error(w, apiErr.Body, apiErr.StatusCode)
			return
		}
		s.logger.WithError(err).WithField("file", id).Warn("Download failed")
		http.Error(w, "backend unavailable", http.StatusBadGateway)
		return
	}
	defer dl.Close()

	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", id))
	if dl.Size >= 0 {
		w.Header().Set("Content-Length", fmt.Sprint(dl.Size))
	}
	if _, err := io.Copy(w, dl); err != nil {
		s.logger.WithError(err).WithField("file", id).Debug("Download interrupted")
	}
}

func (s *Server) waitTimeout() time.Duration {
	if s.config.RequestTimeout > 0 {
		return s.config.RequestTimeout
	}
	return config.DefaultRequestTimeout
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
