package admin

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/jacksonlee411/mandi-console/internal/resource"
	"github.com/jacksonlee411/mandi-console/pkg/authz"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

var pageNames = []string{"login", "dashboard", "list", "form", "view", "upload", "extract"}

type pages struct {
	byName map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	"labelSingular":  resource.LabelSingular,
	"labelPlural":    resource.LabelPlural,
	"formatLabel":    resource.FormatLabel,
	"formatDateTime": resource.FormatDateTime,
	"nested":         resource.NestedValue,
	"priceNote":      resource.PriceRangeNote,
	"formValue":      resource.FormValue,
	"cell":           cellText,
	"hasKeys":        hasKeys,
}

// loadPages parses each page together with the shared layout.
func loadPages() (*pages, error) {
	out := &pages{byName: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templatesFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("admin: parse %s: %w", name, err)
		}
		out.byName[name] = t
	}
	return out, nil
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/admin/static/", http.FileServer(http.FS(sub)))
}

type navItem struct {
	Name   string
	Label  string
	Href   string
	Active bool
}

// layoutData is what every page template receives; Body is page specific.
type layoutData struct {
	Title     string
	User      *principal
	Nav       []navItem
	Dashboard bool
	Flash     string
	RequestID string
	Body      any
}

func (h *handler) nav(p principal, current string) []navItem {
	var out []navItem
	for _, name := range h.registry.Names() {
		if !h.registry.Permissions(name).Read || !h.can(p, authz.ObjectForResource(name), authz.ActionRead) {
			continue
		}
		out = append(out, navItem{
			Name:   name,
			Label:  resource.LabelPlural(name),
			Href:   "/admin/resource/" + name,
			Active: name == current,
		})
	}
	return out
}

// render executes page into a buffer first so a template error still yields
// a clean 500.
func (h *handler) render(w http.ResponseWriter, r *http.Request, status int, page string, title string, body any) {
	t, ok := h.pages.byName[page]
	if !ok {
		h.fail(w, r, http.StatusInternalServerError, "render_error", "render error", fmt.Errorf("admin: unknown page %q", page))
		return
	}

	data := layoutData{Title: title, RequestID: requestID(r), Body: body, Flash: popFlash(w, r)}
	if p, ok := principalFromContext(r.Context()); ok {
		data.User = &p
		data.Nav = h.nav(p, r.PathValue("resource_type"))
		data.Dashboard = h.can(p, authz.ObjectConsoleDashboard, authz.ActionRead)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		h.logger.Error("render failed", zap.String("page", page), zap.Error(err), zap.String("request_id", requestID(r)))
		h.fail(w, r, http.StatusInternalServerError, "render_error", "render error", nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// cellText renders a list or detail value.
func cellText(row map[string]any, key string) string {
	return displayValue(resource.NestedValue(row, key))
}

func displayValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return resource.FormatDateTime(resource.RoundDateTime(t), time.DateTime)
	}
	if s := resource.FormatDateTime(resource.RoundDateTime(v), time.DateTime); s != fmt.Sprint(v) {
		return s
	}
	return resource.FormValue(resource.Attribute{}, v)
}

func hasKeys(row map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := row[k]; !ok {
			return false
		}
	}
	return true
}
