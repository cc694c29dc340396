package admin

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jacksonlee411/mandi-console/internal/resource"
	"github.com/jacksonlee411/mandi-console/internal/store"
	"github.com/jacksonlee411/mandi-console/pkg/httperr"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const maxUploadBytes = 32 << 20

type uploadBody struct {
	Type    string
	Columns []string
	Error   string
}

// exportValue renders a stored value for a CSV or XLSX cell in a form the
// upload path accepts back.
func exportValue(a resource.Attribute, v any) string {
	if v == nil {
		return ""
	}
	if resource.KindOf(a.Type) == resource.KindDateTime {
		return resource.FormatDateTime(resource.RoundDateTime(v), time.DateTime)
	}
	return resource.FormValue(a, v)
}

func attachment(w http.ResponseWriter, contentType string, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}

func (h *handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r)
	if !ok {
		return
	}
	cols, ok := h.columns(w, r, res)
	if !ok {
		return
	}
	q := r.URL.Query()
	result, err := h.store.List(r.Context(), store.ListQuery{
		Resource: res,
		Search:   strings.TrimSpace(q.Get("search")),
		FromDate: strings.TrimSpace(q.Get("from_date")),
		ToDate:   strings.TrimSpace(q.Get("to_date")),
		PerPage:  -1,
	})
	if err != nil {
		if httperr.IsBadRequest(err) {
			h.fail(w, r, http.StatusBadRequest, "bad_request", httperr.Message(err), nil)
			return
		}
		h.fail(w, r, http.StatusInternalServerError, "db_error", "db error", err)
		return
	}

	header := make([]string, 0, len(cols))
	for _, c := range cols {
		header = append(header, c.Name)
	}
	records := make([][]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		rec := make([]string, 0, len(cols))
		for _, c := range cols {
			rec = append(rec, exportValue(c, row[c.Name]))
		}
		records = append(records, rec)
	}

	name := resource.LabelPlural(res.Name)
	if strings.EqualFold(q.Get("format"), "xlsx") {
		var buf bytes.Buffer
		if err := writeXLSX(&buf, header, records); err != nil {
			h.fail(w, r, http.StatusInternalServerError, "export_error", "export error", err)
			return
		}
		attachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", name+".xlsx")
		_, _ = buf.WriteTo(w)
		return
	}

	var buf bytes.Buffer
	if err := writeCSV(&buf, header, records); err != nil {
		h.fail(w, r, http.StatusInternalServerError, "export_error", "export error", err)
		return
	}
	attachment(w, "text/csv; charset=utf-8", name+".csv")
	_, _ = buf.WriteTo(w)
}

func writeCSV(w io.Writer, header []string, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return cw.Error()
}

func writeXLSX(w io.Writer, header []string, records [][]string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	write := func(rowNum int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = v
		}
		return f.SetSheetRow(sheet, cell, &row)
	}
	if err := write(1, header); err != nil {
		return err
	}
	for i, rec := range records {
		if err := write(i+2, rec); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func (h *handler) handleDownloadSample(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r)
	if !ok {
		return
	}
	cols, ok := h.columns(w, r, res)
	if !ok {
		return
	}
	var header []string
	for _, a := range resource.EditableAttributes(cols, res) {
		header = append(header, a.Name)
	}

	var buf bytes.Buffer
	if err := writeCSV(&buf, header, [][]string{make([]string, len(header))}); err != nil {
		h.fail(w, r, http.StatusInternalServerError, "export_error", "export error", err)
		return
	}
	attachment(w, "text/csv; charset=utf-8", resource.LabelPlural(res.Name)+"-sample.csv")
	_, _ = buf.WriteTo(w)
}

func (h *handler) renderUpload(w http.ResponseWriter, r *http.Request, status int, res resource.Resource, errMsg string) {
	cols, ok := h.columns(w, r, res)
	if !ok {
		return
	}
	body := uploadBody{Type: res.Name, Error: errMsg}
	for _, a := range resource.EditableAttributes(cols, res) {
		body.Columns = append(body.Columns, a.Name)
	}
	h.render(w, r, status, "upload", "Upload "+resource.LabelPlural(res.Name), body)
}

func (h *handler) handleUploadForm(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r)
	if !ok {
		return
	}
	h.renderUpload(w, r, http.StatusOK, res, "")
}

func (h *handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.renderUpload(w, r, http.StatusBadRequest, res, "could not read upload")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		h.renderUpload(w, r, http.StatusBadRequest, res, "file is required")
		return
	}
	defer file.Close()

	cols, ok := h.columns(w, r, res)
	if !ok {
		return
	}
	rows, err := h.parseUpload(file, res, resource.EditableAttributes(cols, res))
	if err != nil {
		if httperr.IsBadRequest(err) {
			h.renderUpload(w, r, http.StatusBadRequest, res, httperr.Message(err))
			return
		}
		h.fail(w, r, http.StatusInternalServerError, "upload_error", "upload error", err)
		return
	}

	n, err := h.store.InsertMany(r.Context(), res, rows, auditFor(r))
	if err != nil {
		if httperr.IsBadRequest(err) {
			h.renderUpload(w, r, http.StatusUnprocessableEntity, res, httperr.Message(err))
			return
		}
		h.fail(w, r, http.StatusInternalServerError, "db_error", "db error", err)
		return
	}
	h.logger.Info("resource upload",
		zap.String("resource_type", res.Name),
		zap.Int("rows", n),
		zap.String("request_id", requestID(r)),
	)
	setFlash(w, "All "+capitalize(res.Name)+" uploaded!")
	http.Redirect(w, r, listPath(res.Name), http.StatusFound)
}

// parseUpload reads a CSV whose header must name every editable attribute.
// Extra columns are ignored; all-blank lines are skipped.
func (h *handler) parseUpload(src io.Reader, res resource.Resource, attrs []resource.Attribute) ([]map[string]any, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, httperr.NewBadRequest("file is empty")
		}
		return nil, httperr.BadRequestf("invalid CSV: %v", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, a := range attrs {
		if _, ok := index[a.Name]; !ok {
			return nil, httperr.BadRequestf("missing column %q", a.Name)
		}
	}

	secret := ""
	if res.Table == h.registry.User().Table {
		secret = h.registry.User().Secret
	}

	var out []map[string]any
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, httperr.BadRequestf("invalid CSV: %v", err)
		}
		if blankRecord(rec) {
			continue
		}
		values := make(map[string]any, len(attrs))
		for _, a := range attrs {
			raw := ""
			if i := index[a.Name]; i < len(rec) {
				raw = rec[i]
			}
			if secret != "" && a.Name == secret && strings.TrimSpace(raw) != "" {
				hash, err := hashSecret(raw)
				if err != nil {
					return nil, err
				}
				values[a.Name] = hash
				continue
			}
			v, err := resource.Coerce(a, raw)
			if err != nil {
				return nil, httperr.BadRequestf("line %d: %s", line, httperr.Message(err))
			}
			values[a.Name] = v
		}
		out = append(out, values)
	}
	if len(out) == 0 {
		return nil, httperr.NewBadRequest("file has no rows")
	}
	return out, nil
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
