package server

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

var (
	// ErrNoData is returned when the aggregated export has not been built.
	ErrNoData = errors.New("aggregated data not found")
	// ErrNoFreePort is returned when every port in the scanned range is taken.
	ErrNoFreePort = errors.New("no free port")
)

// Options locates the pipeline outputs.
type Options struct {
	DataDir        string
	AggregatedFile string
	ReportFile     string
}

// Server serves the pipeline outputs and the viewer.
type Server struct {
	opts   Options
	report *template.Template
	mux    *http.ServeMux
}

// New creates a new Server. It fails with ErrNoData when the aggregated
// export is missing from the data directory.
func New(opts Options) (*Server, error) {
	aggregated := filepath.Join(opts.DataDir, opts.AggregatedFile)
	if _, err := os.Stat(aggregated); err != nil {
		return nil, fmt.Errorf("%w: %s (run `fidestats run` first)", ErrNoData, aggregated)
	}

	tmpl, err := template.ParseFS(templateFS, "templates/report.html")
	if err != nil {
		return nil, fmt.Errorf("parsing report template: %w", err)
	}

	s := &Server{opts: opts, report: tmpl, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/viz/", http.StripPrefix("/viz/", http.FileServer(http.FS(staticSub))))
	s.mux.Handle("/data/", http.StripPrefix("/data/", http.FileServer(http.Dir(s.opts.DataDir))))

	s.mux.HandleFunc("/aggregated.json", s.handleAggregated)
	s.mux.HandleFunc("/report", s.handleReport)
	s.mux.HandleFunc("/", s.handleIndex)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/viz/", http.StatusFound)
}

// handleAggregated serves the configured aggregated export under a fixed
// name for the viewer.
func (s *Server) handleAggregated(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.opts.DataDir, s.opts.AggregatedFile))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.opts.ReportFile == "" {
		http.NotFound(w, r)
		return
	}
	text, err := os.ReadFile(filepath.Join(s.opts.DataDir, s.opts.ReportFile))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.report.Execute(w, map[string]any{"Body": renderMarkdown(string(text))}); err != nil {
		log.Printf("Error rendering report: %v", err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Listen binds localhost on the first free port in [base, base+span).
func Listen(base, span int) (net.Listener, error) {
	if span < 1 {
		return nil, fmt.Errorf("%w: port span %d must be positive", ErrNoFreePort, span)
	}
	for port := base; port < base+span; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
	}
	return nil, fmt.Errorf("%w in %d-%d", ErrNoFreePort, base, base+span-1)
}

// Serve starts the HTTP server on the first free port from base.
func Serve(opts Options, base, span int) error {
	srv, err := New(opts)
	if err != nil {
		return err
	}

	ln, err := Listen(base, span)
	if err != nil {
		return err
	}
	log.Printf("Server listening on http://%s/viz/", ln.Addr())
	return http.Serve(ln, srv.Handler())
}
