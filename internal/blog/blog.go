// Package blog serves a small markdown blog: an index of articles, each
// article rendered to HTML, and the images and extra files next to them.
package blog

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/yalue/merged_fs"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	freezeyt_fs "github.com/freezeyt/freezeyt/internal/fs"
	"github.com/freezeyt/freezeyt/internal/fs/mountfs"
	"github.com/freezeyt/freezeyt/internal/fs/tracefs"
	"github.com/freezeyt/freezeyt/internal/logging"
	"github.com/freezeyt/freezeyt/internal/metrics"
)

//go:embed templates
var templates embed.FS

const defaultCacheSize = 128

// Server serves the blog found in a content directory:
//
//	<content>/articles/<slug>.md
//	<content>/images/...
type Server struct {
	content   string
	static    fs.FS
	cacheSize int
	log       *logging.Logger

	router *http.ServeMux
	files  fs.FS
	index  *template.Template
	md     goldmark.Markdown
	cache  *lru.Cache
}

func New(contentDir string) *Server {
	return &Server{content: contentDir, cacheSize: defaultCacheSize}
}

func (s *Server) WithLogger(l *logging.Logger) *Server {
	s.log = l
	return s
}

// WithStatic sets files served for paths that name no article, for
// example the extra files of a configuration.
func (s *Server) WithStatic(fsys fs.FS) *Server {
	s.static = fsys
	return s
}

// WithCacheSize sets the number of rendered articles kept in memory.
func (s *Server) WithCacheSize(n int) *Server {
	if n > 0 {
		s.cacheSize = n
	}
	return s
}

func (s *Server) Init() (*Server, error) {
	var err error

	s.index, err = template.ParseFS(templates, "templates/index.html")
	if err != nil {
		return nil, err
	}

	s.cache, err = lru.New(s.cacheSize)
	if err != nil {
		return nil, err
	}

	s.md = goldmark.New(goldmark.WithExtensions(extension.GFM))

	images := mountfs.New(map[string]fs.FS{"images": os.DirFS(filepath.Join(s.content, "images"))})
	if s.static != nil {
		s.files = tracefs.New(merged_fs.MergeMultiple(images, s.static), s.log)
	} else {
		s.files = tracefs.New(images, s.log)
	}

	if ok, err := freezeyt_fs.ContainsFiles(s.files); err == nil && !ok {
		s.log.Warnf("no images or extra files to serve")
	}

	files := http.FileServerFS(s.files)

	s.router = http.NewServeMux()
	s.router.Handle("GET /{$}", s.instrument("index", http.HandlerFunc(s.v1Index)))
	s.router.Handle("GET /{slug}", s.instrument("post", http.HandlerFunc(s.v1Post)))
	s.router.Handle("GET /images/", s.instrument("images", files))
	s.router.Handle("GET /", s.instrument("static", files))

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) articles() string {
	return filepath.Join(s.content, "articles")
}

func (s *Server) v1Index(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.articles())
	if err != nil {
		s.log.Errorf("failed to list articles: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// ReadDir returns the entries sorted by name.
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}

	var buf bytes.Buffer
	if err := s.index.Execute(&buf, struct{ PostNames []string }{names}); err != nil {
		s.log.Errorf("failed to render index: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// validSlug rejects slugs that could name a file outside the articles
// directory.
func validSlug(slug string) bool {
	return slug != "" && !strings.ContainsAny(slug, `/\`) && !strings.Contains(slug, "..")
}

func (s *Server) v1Post(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if !validSlug(slug) {
		http.NotFound(w, r)
		return
	}

	html, err := s.render(slug)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.serveStatic(w, r, slug)
		return
	case err != nil:
		s.log.Errorf("failed to render article %q: %v", slug, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(html)
}

func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request, name string) {
	fi, err := fs.Stat(s.files, name)
	if err != nil || fi.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFileFS(w, r, s.files, name)
}

type cacheKey struct {
	slug    string
	modTime int64
}

// render returns the HTML of an article. Rendered articles are cached
// until the markdown file changes.
func (s *Server) render(slug string) ([]byte, error) {
	p := filepath.Join(s.articles(), slug+".md")

	fi, err := os.Stat(p)
	if err != nil {
		return nil, err
	}

	key := cacheKey{slug: slug, modTime: fi.ModTime().UnixNano()}
	if v, ok := s.cache.Get(key); ok {
		metrics.BlogRenderCache(true)
		return v.([]byte), nil
	}
	metrics.BlogRenderCache(false)

	src, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := s.md.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}

	s.cache.Add(key, buf.Bytes())
	s.log.Debugf("rendered article %s", slug)
	return buf.Bytes(), nil
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.BlogRequest(route, rec.code, startTime)
	})
}
