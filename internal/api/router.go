// Package api serves the package service over HTTP/JSON.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/glorpus-work/plugd/internal/logger"
	"github.com/glorpus-work/plugd/pkg/errors"
	"github.com/glorpus-work/plugd/pkg/metrics"
	"github.com/glorpus-work/plugd/pkg/model"
	"github.com/glorpus-work/plugd/pkg/packages"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Backend is the package service used by the router.
type Backend interface {
	Repositories() []model.RepositoryInfo
	SetRepositories(repos []model.RepositoryInfo) error
	AvailablePackages(ctx context.Context) ([]model.PackageDescriptor, error)
	GetPackage(ctx context.Context, name, assemblyGUID string) (model.PackageDescriptor, error)
	Install(ctx context.Context, req packages.InstallRequest) (string, error)
	Cancel(taskID string)
	Status(taskID string) (model.InstallationTask, error)
	Tasks() []model.InstallationTask
	Installed(filter string) []model.InstalledPackage
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// InstallResponse is returned when an installation was accepted.
type InstallResponse struct {
	ID string `json:"id"`
}

type server struct {
	backend Backend
}

// NewRouter returns the HTTP handler for backend.
func NewRouter(backend Backend) http.Handler {
	if backend == nil {
		panic("backend dependency is required")
	}
	s := &server{backend: backend}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /Repositories", s.handleGetRepositories)
	mux.HandleFunc("POST /Repositories", s.handleSetRepositories)
	mux.HandleFunc("GET /Packages", s.handleListPackages)
	mux.HandleFunc("GET /Packages/Installed", s.handleListInstalled)
	mux.HandleFunc("POST /Packages/Installed/{name}", s.handleInstall)
	mux.HandleFunc("GET /Packages/Installing", s.handleListTasks)
	mux.HandleFunc("GET /Packages/Installing/{id}", s.handleGetTask)
	mux.HandleFunc("DELETE /Packages/Installing/{id}", s.handleCancel)
	mux.HandleFunc("GET /Packages/{name}", s.handleGetPackage)
	mux.Handle("GET /metrics", metrics.Handler())
	return withLogging(mux)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(rec, r)
		logger.Debug("HTTP request", logger.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *server) handleGetRepositories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Repositories())
}

func (s *server) handleSetRepositories(w http.ResponseWriter, r *http.Request) {
	var repos []model.RepositoryInfo
	if err := decodeJSON(r, &repos); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.backend.SetRepositories(repos); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	pkgs, err := s.backend.AvailablePackages(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pkgs)
}

func (s *server) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	pkg, err := s.backend.GetPackage(r.Context(), r.PathValue("name"), r.URL.Query().Get("assemblyGuid"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

func (s *server) handleInstall(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, err := s.backend.Install(r.Context(), packages.InstallRequest{
		Name:          r.PathValue("name"),
		AssemblyGUID:  q.Get("assemblyGuid"),
		Version:       q.Get("version"),
		RepositoryURL: q.Get("repositoryUrl"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, InstallResponse{ID: id})
}

func (s *server) handleListInstalled(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Installed(r.URL.Query().Get("name")))
}

func (s *server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Tasks())
}

func (s *server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.backend.Status(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.backend.Cancel(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case stderrors.Is(err, errors.ErrInvalidGUID),
		stderrors.Is(err, errors.ErrInvalidVersion),
		stderrors.Is(err, errors.ErrValidation),
		stderrors.Is(err, errors.ErrRepositoryURL),
		stderrors.Is(err, errors.ErrRepositoryDup):
		return http.StatusBadRequest
	case stderrors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, errors.ErrConflict):
		return http.StatusConflict
	case stderrors.Is(err, errors.ErrAggregateFetch):
		return http.StatusBadGateway
	case stderrors.Is(err, errors.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", logger.Fields{"error": err.Error()})
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	if dec.More() {
		return stderrors.New("invalid request body: expected a single JSON value")
	}
	return nil
}

// Server runs the router until its context is cancelled.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a server listening on addr.
func NewServer(addr string, backend Backend) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(backend),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shut down server")
	}
	return nil
}
