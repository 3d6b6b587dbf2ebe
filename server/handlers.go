package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"mdtransclude/directive"
	"mdtransclude/transclude"
)

var markdownExts = map[string]bool{
	".md":       true,
	".mmd":      true,
	".markdown": true,
}

func isMarkdown(path string) bool {
	return markdownExts[strings.ToLower(filepath.Ext(path))]
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

type pageData struct {
	Title       string
	Content     template.HTML
	Diagnostics []string
	LiveReload  bool
}

// handleMarkdown expands a document, renders it and registers its
// manifest with live reload.
func (s *Server) handleMarkdown(w http.ResponseWriter, r *http.Request, filePath string) {
	res, ok := s.expand(w, filePath, directive.FormatHTML)
	if !ok {
		return
	}
	if s.liveReload != nil {
		s.liveReload.Track(filePath, res.Manifest.Paths())
	}

	htmlContent, err := s.renderer.Render([]byte(res.Text))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to render markdown: %v", err), http.StatusInternalServerError)
		return
	}

	tmpl, err := loadTemplate()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load template: %v", err), http.StatusInternalServerError)
		return
	}

	data := pageData{
		Title:       s.renderer.Title([]byte(res.Text), strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))),
		Content:     template.HTML(htmlContent),
		Diagnostics: s.describe(res.Diagnostics),
		LiveReload:  s.liveReload != nil,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.Error("template execution", "path", s.relPath(filePath), "error", err)
	}
}

// handleRaw returns the expanded Markdown source. The format query
// parameter selects wildcard extensions.
func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	filePath, ok := s.documentParam(w, r)
	if !ok {
		return
	}
	format, ok := s.requestFormat(w, r)
	if !ok {
		return
	}

	res, ok := s.expand(w, filePath, format)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Transclude-Diagnostics", strconv.Itoa(len(res.Diagnostics)))
	w.Write([]byte(res.Text))
}

type manifestResponse struct {
	Document    string                   `json:"document"`
	Manifest    []string                 `json:"manifest"`
	Diagnostics []*transclude.Diagnostic `json:"diagnostics"`
}

// handleManifest reports which files a document pulls in.
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	filePath, ok := s.documentParam(w, r)
	if !ok {
		return
	}
	format, ok := s.requestFormat(w, r)
	if !ok {
		return
	}

	res, ok := s.expand(w, filePath, format)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(manifestResponse{
		Document:    s.relPath(filePath),
		Manifest:    res.Manifest.Relative(s.config.RootDir),
		Diagnostics: res.Diagnostics,
	})
}

// documentParam maps the wildcard route segment to a Markdown file under
// the root.
func (s *Server) documentParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	rel := chi.URLParam(r, "*")
	filePath := filepath.Join(s.config.RootDir, filepath.FromSlash(rel))
	if !s.isValidPath(filePath) {
		http.Error(w, "Invalid path", http.StatusForbidden)
		return "", false
	}
	if !isMarkdown(filePath) || !isFile(filePath) {
		http.NotFound(w, r)
		return "", false
	}
	return filePath, true
}

// requestFormat reads the format query parameter, defaulting to the
// configured output format.
func (s *Server) requestFormat(w http.ResponseWriter, r *http.Request) (directive.Format, bool) {
	name := r.URL.Query().Get("format")
	if name == "" {
		return s.config.OutputFormat(), true
	}
	format, err := directive.ParseFormat(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return format, true
}

// expand runs the resolver and writes an error response on failure.
func (s *Server) expand(w http.ResponseWriter, filePath string, format directive.Format) (*transclude.Result, bool) {
	res, err := s.resolver.ExpandFile(filePath, format)
	if err == nil {
		return res, true
	}

	var diag *transclude.Diagnostic
	if errors.As(err, &diag) {
		s.logger.Warn("transclusion aborted", "path", s.relPath(filePath), "error", diag)
		http.Error(w, fmt.Sprintf("Transclusion failed: %s", s.describe([]*transclude.Diagnostic{diag})[0]), http.StatusUnprocessableEntity)
		return nil, false
	}
	http.Error(w, fmt.Sprintf("Failed to read file: %v", err), http.StatusNotFound)
	return nil, false
}

// describe formats diagnostics with root-relative paths.
func (s *Server) describe(diags []*transclude.Diagnostic) []string {
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		msg := fmt.Sprintf("%s:%d: %s {{%s}}", s.relPath(d.Source), d.Line, d.Kind, d.Target)
		// Path errors would leak absolute paths into the page.
		if d.Err != nil && !errors.Is(d.Err, fs.ErrNotExist) {
			msg += ": " + d.Err.Error()
		}
		out = append(out, msg)
	}
	return out
}

type indexEntry struct {
	Name string
	Href string
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title>
<link rel="stylesheet" href="/assets/style.css">
</head><body><div class="container"><h1>{{.Title}}</h1><ul>
{{- range .Entries}}
<li><a href="{{.Href}}">{{.Name}}</a></li>
{{- else}}
<li>No markdown files found</li>
{{- end}}
</ul></div></body></html>
`))

// handleIndex lists subdirectories and Markdown files of dir.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read directory: %v", err), http.StatusInternalServerError)
		return
	}

	base := "/"
	if dir != s.config.RootDir {
		base = "/" + s.relPath(dir) + "/"
	}

	var dirs, files []indexEntry
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		switch {
		case entry.IsDir():
			dirs = append(dirs, indexEntry{Name: name + "/", Href: base + name + "/"})
		case isMarkdown(name):
			files = append(files, indexEntry{Name: name, Href: base + name})
		}
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	title := "Markdown Files"
	if base != "/" {
		title = strings.TrimSuffix(base, "/")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, struct {
		Title   string
		Entries []indexEntry
	}{title, append(dirs, files...)}); err != nil {
		s.logger.Error("index template", "dir", s.relPath(dir), "error", err)
	}
}

// handleAssets serves the stylesheet and any file under the root's
// assets path.
func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	requestPath := chi.URLParam(r, "*")
	if requestPath == "style.css" {
		s.serveCSS(w, r)
		return
	}
	if requestPath == "" {
		http.NotFound(w, r)
		return
	}
	s.handleStaticFile(w, r, filepath.Join(s.config.RootDir, "assets", filepath.FromSlash(requestPath)))
}

// handleStaticFile serves a static file from the root directory
func (s *Server) handleStaticFile(w http.ResponseWriter, r *http.Request, filePath string) {
	if !s.isValidPath(filePath) {
		http.Error(w, "Invalid path", http.StatusForbidden)
		return
	}
	if !isFile(filePath) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filePath)
}

// serveCSS serves template/style.css when present, otherwise the built-in
// stylesheet.
func (s *Server) serveCSS(w http.ResponseWriter, r *http.Request) {
	if cssPath := templateFile("style.css"); cssPath != "" {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		http.ServeFile(w, r, cssPath)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Write([]byte(defaultCSS))
}

// templateFile finds name in a template directory next to the executable
// or in the working directory.
func templateFile(name string) string {
	var candidates []string
	if exePath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exePath), "template", name))
	}
	candidates = append(candidates, filepath.Join("template", name))

	for _, c := range candidates {
		if isFile(c) {
			return c
		}
	}
	return ""
}

// loadTemplate loads template/page.html, falling back to the built-in page.
func loadTemplate() (*template.Template, error) {
	if path := templateFile("page.html"); path != "" {
		content, err := os.ReadFile(path)
		if err == nil {
			return template.New("page").Parse(string(content))
		}
	}
	return template.New("page").Parse(defaultPage)
}

const defaultPage = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<title>{{.Title}}</title>
	<link rel="stylesheet" href="/assets/style.css">
</head>
<body>
	<div class="container">
		{{.Content}}
		{{- if .Diagnostics}}
		<aside class="transclusion-diagnostics">
			<h2>Transclusion problems</h2>
			<ul>{{range .Diagnostics}}<li><code>{{.}}</code></li>{{end}}</ul>
		</aside>
		{{- end}}
	</div>
	{{- if .LiveReload}}
	<script>
	(function () {
		var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/livereload");
		ws.onmessage = function (e) { if (e.data === "reload") { location.reload(); } };
	})();
	</script>
	{{- end}}
</body>
</html>`

const defaultCSS = `/* Default CSS - template/style.css not found */
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; max-width: 900px; margin: 0 auto; padding: 20px; line-height: 1.6; }
code { background: #f5f5f5; padding: 2px 6px; border-radius: 3px; }
pre { background: #f5f5f5; padding: 16px; border-radius: 5px; overflow-x: auto; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ddd; padding: 8px 12px; }
th { background: #f8f8f8; }
.transclusion-diagnostics { margin-top: 2em; padding: 12px 16px; border-left: 4px solid #d9822b; background: #fff8f0; }`
