package blog

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed templates/*.html
var templateFS embed.FS

// Post bodies are markdown. goldmark drops raw HTML unless told otherwise,
// so rendered bodies are safe to mark as template.HTML.
var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

func renderMarkdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", errors.Wrap(err, "render markdown")
	}
	return template.HTML(buf.String()), nil
}

func parseTemplates() (*template.Template, error) {
	tpl, err := template.New("").Funcs(template.FuncMap{
		"markdown": renderMarkdown,
	}).ParseFS(templateFS, "templates/*.html")
	return tpl, errors.Wrap(err, "parse templates")
}

func (h *Handlers) commonData(r *http.Request, payload map[string]interface{}) map[string]interface{} {
	actor := ActorFrom(r.Context())
	data := map[string]interface{}{
		"actor":        actor,
		"is_admin":     h.gate.IsAdmin(actor),
		"flash":        h.Session.PopFlash(r.Context()),
		"current_year": time.Now().Year(),
		"title":        "",
	}
	for k, v := range payload {
		data[k] = v
	}
	return data
}

// render buffers the page so a template error can still become a 500.
func (h *Handlers) render(w http.ResponseWriter, r *http.Request, status int, name string, payload map[string]interface{}) {
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, name, h.commonData(r, payload)); err != nil {
		logFrom(r).WithError(err).WithField("template", name).Error("template execution failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (h *Handlers) renderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	log := logFrom(r).WithField("error", err)
	if code >= http.StatusInternalServerError {
		log.Error("request error")
	} else {
		log.Debug("request denied")
	}
	msg := http.StatusText(code)
	if code < http.StatusInternalServerError && err != nil {
		msg = err.Error()
	}
	h.render(w, r, code, "error.html", map[string]interface{}{
		"error":       msg,
		"status_code": code,
		"status":      http.StatusText(code),
		"title":       http.StatusText(code),
	})
}
