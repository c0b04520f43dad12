// Package server exposes the tamper detector over HTTP: an upload form,
// a JSON API and the generated images.
package server

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"tamperdetect/config"
	"tamperdetect/database"
	"tamperdetect/detector"
	"tamperdetect/imageprocessor"
	"tamperdetect/logging"
	"tamperdetect/report"
	"tamperdetect/storage"
	"tamperdetect/types"
	"tamperdetect/utils"
)

//go:embed templates/*.html
var templateFS embed.FS

// uploadField is the multipart field holding the image.
const uploadField = "file"

// historyLimit is the number of past comparisons shown on the index page.
const historyLimit = 10

const (
	originalOutput  = imageprocessor.OriginalAnnotatedImageName
	tamperedOutput  = imageprocessor.TamperedAnnotatedImageName
	diffOutput      = imageprocessor.DiffImageName
	thresholdOutput = imageprocessor.ThresholdImageName
)

// Server serves the web form and the API.
type Server struct {
	det   *detector.Detector
	store storage.Store
	db    *sql.DB
	tmpl  *template.Template

	maxUploadBytes int64
	timeout        time.Duration
}

// New builds a Server. db may be nil, which disables the history table.
func New(cfg *config.Config, det *detector.Detector, store storage.Store, db *sql.DB) (*Server, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return &Server{
		det:            det,
		store:          store,
		db:             db,
		tmpl:           tmpl,
		maxUploadBytes: cfg.MaxUploadBytes,
		timeout:        cfg.RequestTimeout,
	}, nil
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /{$}", s.handleUpload)
	mux.HandleFunc("POST /api/compare", s.handleAPICompare)
	mux.HandleFunc("GET /api/reference", s.handleAPIGetReference)
	mux.HandleFunc("PUT /api/reference", s.handleAPIPutReference)
	mux.HandleFunc("GET /api/history", s.handleAPIHistory)
	mux.HandleFunc("GET /uploads/{name}", s.handleOutput)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, "ok\n")
	})
	return logRequests(mux)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.LogInfo("Listening on http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.timeout+5*time.Second)
	defer cancel()
	logging.LogInfo("Shutting down server")
	return srv.Shutdown(shutdownCtx)
}

type indexPage struct {
	Error     string
	Reference *types.ReferenceInfo
	History   []types.ComparisonRecord
}

type resultsPage struct {
	Report    *report.Report
	Original  string
	Tampered  string
	Diff      string
	Threshold string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderIndex(w, r, http.StatusOK, "")
}

func (s *Server) renderIndex(w http.ResponseWriter, r *http.Request, status int, msg string) {
	page := indexPage{Error: msg}

	if ref, err := s.det.CurrentReference(r.Context()); err == nil {
		page.Reference = ref
	}
	if s.db != nil {
		if records, err := database.RecentComparisons(s.db, historyLimit); err == nil {
			page.History = records
		} else {
			logging.LogWarning("Failed to load history: %v", err)
		}
	}

	s.render(w, status, "index.html", page)
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		logging.LogError("Failed to render %s: %v", name, err)
	}
}

// readUpload reads the uploaded file, enforcing the size limit
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		if isTooLarge(err) {
			return "", nil, errTooLarge
		}
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return "", nil, errNoFile
		}
		return "", nil, fmt.Errorf("%w: %v", errBadUpload, err)
	}
	defer file.Close()

	if header.Filename == "" {
		return "", nil, errNoFile
	}

	data, err := io.ReadAll(file)
	if err != nil {
		if isTooLarge(err) {
			return "", nil, errTooLarge
		}
		return "", nil, fmt.Errorf("%w: %v", errBadUpload, err)
	}
	if len(data) == 0 {
		return "", nil, errNoFile
	}

	return header.Filename, data, nil
}

// isTooLarge reports whether err came from the MaxBytesReader. The multipart
// parser does not wrap every read error, so the message is checked too.
func isTooLarge(err error) bool {
	var tooBig *http.MaxBytesError
	return errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name, data, err := s.readUpload(w, r)
	if err != nil {
		status, msg := classify(err)
		s.renderIndex(w, r, status, msg)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	rep, err := s.det.Check(ctx, name, data)
	if err != nil {
		status, msg := classify(err)
		s.renderIndex(w, r, status, msg)
		return
	}

	s.render(w, http.StatusOK, "results.html", resultsPage{
		Report:    rep,
		Original:  rep.OutputURL(originalOutput),
		Tampered:  rep.OutputURL(tamperedOutput),
		Diff:      rep.OutputURL(diffOutput),
		Threshold: rep.OutputURL(thresholdOutput),
	})
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	rc, err := s.store.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			http.NotFound(w, r)
			return
		}
		logging.LogError("Failed to open output %s: %v", name, err)
		http.Error(w, "failed to read output", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", utils.ContentType(name))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, rc); err != nil {
		logging.DebugLog("Failed to stream %s: %v", name, err)
	}
}

// statusRecorder captures the response status for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.LogRequest(r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
