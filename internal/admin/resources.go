package admin

import (
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/jacksonlee411/mandi-console/internal/correction"
	"github.com/jacksonlee411/mandi-console/internal/pagination"
	"github.com/jacksonlee411/mandi-console/internal/resource"
	"github.com/jacksonlee411/mandi-console/internal/store"
	"github.com/jacksonlee411/mandi-console/pkg/authz"
	"github.com/jacksonlee411/mandi-console/pkg/httperr"
)

type pager struct {
	Page     pagination.Page
	Links    []pagination.Link
	PrevHref string
	NextHref string
}

func newPager(pg pagination.Page, path string, q url.Values) pager {
	out := pager{Page: pg, Links: pg.Links(path, q)}
	if pg.HasPrev() {
		out.PrevHref = pagination.Href(path, q, pg.PrevNum())
	}
	if pg.HasNext() {
		out.NextHref = pagination.Href(path, q, pg.NextNum())
	}
	return out
}

type listBody struct {
	pager
	Type           string
	PK             string
	Columns        []string
	Search         string
	FromDate       string
	ToDate         string
	HideSearch     bool
	HideDateFilter bool
	Perms          map[string]bool
	DownloadHref   string
	XLSXHref       string
	ApprovalPath   string
}

type fieldView struct {
	resource.Widget
	Value string
}

type formBody struct {
	Type    string
	ID      string
	Editing bool
	Action  string
	Fields  []fieldView
	Error   string
}

type viewField struct {
	Label string
	Value string
}

type viewBody struct {
	Type   string
	ID     string
	Fields []viewField
	Row    map[string]any
	Perms  map[string]bool
}

// resourceFromPath resolves {resource_type} and its primary key. It writes
// the error response itself and returns ok=false on failure.
func (h *handler) resourceFromPath(w http.ResponseWriter, r *http.Request) (resource.Resource, bool) {
	res, ok := h.registry.Get(r.PathValue("resource_type"))
	if !ok {
		h.fail(w, r, http.StatusNotFound, "not_found", "not found", nil)
		return resource.Resource{}, false
	}
	res, err := h.store.ResolvePK(r.Context(), res)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "db_error", "db error", err)
		return resource.Resource{}, false
	}
	return res, true
}

func (h *handler) columns(w http.ResponseWriter, r *http.Request, res resource.Resource) ([]resource.Attribute, bool) {
	cols, err := h.store.Columns(r.Context(), res.Table)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "db_error", "db error", err)
		return nil, false
	}
	return cols, true
}

func listPath(resourceType string) string {
	return "/admin/resource/" + resourceType
}

func filterQuery(q url.Values) url.Values {
	out := url.Values{}
	for _, k := range []string{"search", "from_date", "to_date"} {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			out.Set(k, v)
		}
	}
	return out
}

func (h *handler) handleList(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r)
	if !ok {
		return
	}
	if res.Controller == resource.ControllerDataExtract {
		h.handleExtract(w, r, res)
		return
	}

	q := r.URL.Query()
	number := pagination.ParseNumber(q)
	result, err := h.store.List(r.Context(), store.ListQuery{
		Resource: res,
		Search:   strings.TrimSpace(q.Get("search")),
		FromDate: strings.TrimSpace(q.Get("from_date")),
		ToDate:   strings.TrimSpace(q.Get("to_date")),
		Page:     number,
		PerPage:  pagination.DefaultPerPage,
	})
	if err != nil {
		if httperr.IsBadRequest(err) {
			h.fail(w, r, http.StatusBadRequest, "bad_request", httperr.Message(err), nil)
			return
		}
		h.fail(w, r, http.StatusInternalServerError, "db_error", "db error", err)
		return
	}

	columns := res.ListDisplay
	if len(columns) == 0 {
		cols, ok := h.columns(w, r, res)
		if !ok {
			return
		}
		for _, c := range cols {
			columns = append(columns, c.Name)
		}
	}

	path := listPath(res.Name)
	filters := filterQuery(q)
	xlsx := filterQuery(q)
	xlsx.Set("format", "xlsx")
	p, _ := principalFromContext(r.Context())
	body := listBody{
		pager:          newPager(pagination.Page{Number: number, PerPage: pagination.DefaultPerPage, Total: result.Total, Items: result.Rows}, path, filters),
		Type:           res.Name,
		PK:             res.PrimaryKey(),
		Columns:        columns,
		Search:         filters.Get("search"),
		FromDate:       filters.Get("from_date"),
		ToDate:         filters.Get("to_date"),
		HideSearch:     res.HideSearch,
		HideDateFilter: res.HideDateFilter,
		Perms:          h.permissionsFor(p, res.Name),
		DownloadHref:   path + "/download?" + filters.Encode(),
		XLSXHref:       path + "/download?" + xlsx.Encode(),
	}
	if res.Name == approvalResource && slices.Contains(columns, "is_approved") && body.Perms[authz.ActionUpdate] {
		body.ApprovalPath = correction.ApprovalPath
	}
	h.render(w, r, http.StatusOK, "list", resource.LabelPlural(res.Name), body)
}

// formFields builds the widgets of the create/edit form. Editable
// relations are rendered as selects over the related table.
func (h *handler) formFields(r *http.Request, res resource.Resource, attrs []resource.Attribute, row map[string]any) ([]fieldView, error) {
	secret := h.registry.User().Secret
	if res.Table != h.registry.User().Table {
		secret = ""
	}
	out := make([]fieldView, 0, len(attrs))
	for _, a := range attrs {
		var (
			options []resource.Option
			label   string
		)
		if rel, ok := res.RelationFor(a.Name); ok {
			opts, err := h.store.RelationOptions(r.Context(), rel)
			if err != nil {
				return nil, err
			}
			options = append([]resource.Option{}, opts...)
			label = rel.Label
		}
		fv := fieldView{Widget: resource.WidgetFor(a, secret, label, options)}
		if row != nil {
			fv.Value = resource.FormValue(a, row[a.Name])
		}
		out = append(out, fv)
	}
	return out, nil
}

// formValues coerces the submitted form. On edit a blank secret keeps the
// stored hash; attributes absent from the form are left untouched.
func (h *handler) formValues(r *http.Request, res resource.Resource, attrs []resource.Attribute, editing bool) (map[string]any, error) {
	secret := ""
	if res.Table == h.registry.User().Table {
		secret = h.registry.User().Secret
	}
	values := make(map[string]any, len(attrs))
	for _, a := range attrs {
		raw, present := r.PostForm[a.Name]
		if editing && !present {
			continue
		}
		v := ""
		if len(raw) > 0 {
			v = raw[0]
		}
		if secret != "" && a.Name == secret {
			if v == "" {
				if editing {
					continue
				}
				values[a.Name] = nil
				continue
			}
			hash, err := hashSecret(v)
			if err != nil {
				return nil, err
			}
			values[a.Name] = hash
			continue
		}
		coerced, err := resource.Coerce(a, v)
		if err != nil {
			return nil, err
		}
		values[a.Name] = coerced
	}
	return values, nil
}

func (h *handler) renderForm(w http.ResponseWriter, r *http.Request, status int, res resource.Resource, id string, row map[string]any, errMsg string) {
	cols, ok := h.columns(w, r, res)
	if !ok {
		return
	}
	fields, err := h.formFields(r, res, resource.EditableAttributes(cols, res), row)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "db_error", "db error", err)
		return
	}
	body := formBody{Type: res.Name, ID: id, Editing: id != "", Fields: fields, Error: errMsg}
	title := "New " + resource.LabelSingular(res.Name)
	if body.Editing {
		body.Action = listPath(res.Name) + "/" + url.PathEscape(id) + "/edit"
		title = "Edit " + resource.LabelSingular(res.Name)
	} else {
		body.Action = listPath(res.Name) + "/create"
	}
	h.render(w, r, status, "form", title, body)
}

func (h *handler) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r)
	if !ok {
		return
	}
	h.renderForm(w, r, http.StatusOK, res, "", nil, "")
}

func (h *handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, http.StatusBadRequest, "bad_request", "bad request", nil)
		return
	}
	cols, ok := h.columns(w, r, res)
	if !ok {
		return
	}
	values, err := h.formValues(r, res, resource.EditableAttributes(cols, res), false)
	if err != nil {
		h.formError(w, r, res, "", err)
		return
	}
	if _, err := h.store.Insert(r.Context(), res, values, auditFor(r)); err != nil {
		h.formError(w, r, res, "", err)
		return
	}
	setFlash(w, resource.LabelSingular(res.Name)+" created")
	http.Redirect(w, r, listPath(res.Name), http.StatusFound)
}

func (h *handler) formError(w http.ResponseWriter, r *http.Request, res resource.Resource, id string, err error) {
	if httperr.IsBadRequest(err) {
		h.renderForm(w, r, http.StatusUnprocessableEntity, res, id, formRow(r), httperr.Message(err))
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		h.fail(w, r, http.StatusNotFound, "not_found", "not found", nil)
		return
	}
	h.fail(w, r, http.StatusInternalServerError, "db_error", "db error", err)
}

// formRow echoes the submitted values back into a re-rendered form.
func formRow(r *http.Request) map[string]any {
	out := make(map[string]any, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func (h *handler) loadRecord(w http.ResponseWriter, r *http.Request, res resource.Resource) (string, map[string]any, bool) {
	id := r.PathValue("resource_id")
	row, err := h.store.Get(r.Context(), res, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.fail(w, r, http.StatusNotFound, "not_found", "not found", nil)
			return "", nil, false
		}
		h.fail(w, r, http.StatusInternalServerError, "db_error", "db error", err)
		return "", nil, false
	}
	return id, row, true
}

func (h *handler) handleView(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r)
	if !ok {
		return
	}
	id, row, ok := h.loadRecord(w, r, res)
	if !ok {
		return
	}
	cols, ok := h.columns(w, r, res)
	if !ok {
		return
	}

	secret := ""
	if res.Table == h.registry.User().Table {
		secret = h.registry.User().Secret
	}
	attrs := resource.ReadableAttributes(cols, res)
	fields := make([]viewField, 0, len(attrs))
	for _, a := range attrs {
		if secret != "" && a.Name == secret {
			continue
		}
		fields = append(fields, viewField{Label: resource.FormatLabel(a.Name), Value: displayValue(row[a.Name])})
	}
	p, _ := principalFromContext(r.Context())
	body := viewBody{Type: res.Name, ID: id, Fields: fields, Row: row, Perms: h.permissionsFor(p, res.Name)}
	h.render(w, r, http.StatusOK, "view", resource.LabelSingular(res.Name), body)
}

func (h *handler) handleEditForm(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r)
	if !ok {
		return
	}
	id, row, ok := h.loadRecord(w, r, res)
	if !ok {
		return
	}
	h.renderForm(w, r, http.StatusOK, res, id, row, "")
}

func (h *handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, http.StatusBadRequest, "bad_request", "bad request", nil)
		return
	}
	id := r.PathValue("resource_id")
	cols, ok := h.columns(w, r, res)
	if !ok {
		return
	}
	values, err := h.formValues(r, res, resource.EditableAttributes(cols, res), true)
	if err != nil {
		h.formError(w, r, res, id, err)
		return
	}

	p, _ := principalFromContext(r.Context())
	if err := h.store.Update(r.Context(), res, id, values, p.ID, auditFor(r)); err != nil {
		h.formError(w, r, res, id, err)
		return
	}
	setFlash(w, resource.LabelSingular(res.Name)+" updated")
	http.Redirect(w, r, backTo(r, listPath(res.Name)), http.StatusFound)
}

func (h *handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r)
	if !ok {
		return
	}
	id := r.PathValue("resource_id")
	err := h.store.Delete(r.Context(), res, id, auditFor(r))
	switch {
	case err == nil:
		setFlash(w, resource.LabelSingular(res.Name)+" deleted")
	case errors.Is(err, store.ErrNotFound):
		setFlash(w, resource.LabelSingular(res.Name)+" not found")
	default:
		h.fail(w, r, http.StatusInternalServerError, "db_error", "db error", err)
		return
	}
	http.Redirect(w, r, backTo(r, listPath(res.Name)), http.StatusFound)
}

// backTo returns the same-origin referring console page, or fallback.
func backTo(r *http.Request, fallback string) string {
	ref := r.Referer()
	if ref == "" {
		return fallback
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Host != "" && u.Host != r.Host) || !strings.HasPrefix(u.Path, "/admin/") {
		return fallback
	}
	for _, suffix := range []string{"/edit", "/create", "/view"} {
		if strings.HasSuffix(u.Path, suffix) {
			return fallback
		}
	}
	return u.RequestURI()
}
