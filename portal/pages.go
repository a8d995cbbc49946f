package portal

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"sync"

	"github.com/shazow/wifiportal/wifi"
)

//go:embed static/*
var staticFS embed.FS

var indexTmpl = template.Must(template.ParseFS(staticFS, "static/index.html"))

// DefaultTitle heads the sign-in page.
const DefaultTitle = "WiFi Setup"

type indexData struct {
	Title    string
	Networks []wifi.ScanRecord
}

// Pages serves the sign-in page and its stylesheet. The page lists the
// networks from the last scan handed to SetNetworks.
type Pages struct {
	Title  string
	Logger *slog.Logger

	mu       sync.Mutex
	networks []wifi.ScanRecord
}

// SetNetworks replaces the cached scan results shown on the page.
func (p *Pages) SetNetworks(records []wifi.ScanRecord) {
	cp := make([]wifi.ScanRecord, len(records))
	copy(cp, records)
	p.mu.Lock()
	p.networks = cp
	p.mu.Unlock()
}

// Networks returns the cached scan results.
func (p *Pages) Networks() []wifi.ScanRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]wifi.ScanRecord, len(p.networks))
	copy(cp, p.networks)
	return cp
}

func (p *Pages) ServeIndex(w http.ResponseWriter, r *http.Request) {
	title := p.Title
	if title == "" {
		title = DefaultTitle
	}
	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, indexData{Title: title, Networks: p.Networks()}); err != nil {
		p.logger().Error("rendering sign-in page", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (p *Pages) ServeStyles(w http.ResponseWriter, r *http.Request) {
	css, err := staticFS.ReadFile("static/styles.css")
	if err != nil {
		p.logger().Error("reading stylesheet", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Write(css)
}

func (p *Pages) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
