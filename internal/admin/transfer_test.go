package admin

import (
	"bytes"
	"encoding/csv"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jacksonlee411/mandi-console/pkg/authz"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"
)

func uploadRequest(t *testing.T, path string, filename string, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestDownload_CSV(t *testing.T) {
	env := newTestEnv(t)
	cs := env.login(t, "2", authz.RoleCSUser)
	seedMandis(env)
	env.store.rows["mandis"][0]["created_at"] = time.Date(2024, 1, 2, 3, 4, 5, 600, time.UTC)

	rec := env.get("/admin/resource/mandi/download?search=a&page=3", cs)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Fatalf("content-type=%q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="Mandis.csv"` {
		t.Fatalf("content-disposition=%q", cd)
	}
	if q := env.store.lastList; q.PerPage != -1 || q.Search != "a" {
		t.Fatalf("query=%+v", q)
	}

	records, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d", len(records))
	}
	if got := strings.Join(records[0], ","); got != "id,mandi_name,mandi_name_hi,state,min_price,max_price,created_at" {
		t.Fatalf("header=%q", got)
	}
	if got := strings.Join(records[1], ","); got != "1,Azadpur,,Delhi,1200.5,1800,2024-01-02 03:04:05" {
		t.Fatalf("row=%q", got)
	}
}

func TestDownload_XLSX(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "1", authz.RoleAdmin)
	seedMandis(env)

	rec := env.get("/admin/resource/mandi/download?format=xlsx", admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="Mandis.xlsx"` {
		t.Fatalf("content-disposition=%q", cd)
	}

	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows=%d", len(rows))
	}
	if rows[0][1] != "mandi_name" || rows[1][0] != "1" || rows[1][1] != "Azadpur" || rows[2][1] != "Vashi" {
		t.Fatalf("rows=%v", rows)
	}
}

func TestDownload_DeclaredPermissionOff(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "1", authz.RoleAdmin)

	if rec := env.get("/admin/resource/user/download", admin); rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestDownloadSample(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "1", authz.RoleAdmin)
	cs := env.login(t, "2", authz.RoleCSUser)

	rec := env.get("/admin/resource/mandi/download-sample", admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="Mandis-sample.csv"` {
		t.Fatalf("content-disposition=%q", cd)
	}
	if got := rec.Body.String(); got != "mandi_name,mandi_name_hi,state,min_price,max_price\n,,,,\n" {
		t.Fatalf("body=%q", got)
	}

	if rec := env.get("/admin/resource/mandi/download-sample", cs); rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestUploadForm(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "1", authz.RoleAdmin)

	rec := env.get("/admin/resource/crop/upload", admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	doc := docOf(t, rec.Body.String())
	if doc.Find(`form[enctype="multipart/form-data"] input[type="file"][name="file"]`).Length() != 1 {
		t.Fatal("missing file input")
	}
	if doc.Find(`a[href="/admin/resource/crop/download-sample"]`).Length() != 1 {
		t.Fatal("missing sample link")
	}
}

func TestUpload_Success(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "1", authz.RoleAdmin)

	csvBody := "\ufeffmandi_name,mandi_name_hi,state,min_price,max_price,extra\n" +
		"Azadpur,,Delhi,1200,1800,x\n" +
		",,,,,\n" +
		"Vashi,,MH,,\n"
	rec := env.serve(uploadRequest(t, "/admin/resource/mandi/upload", "mandis.csv", csvBody), admin)
	if rec.Code != http.StatusFound {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/admin/resource/mandi" {
		t.Fatalf("location=%q", loc)
	}
	if v, _ := cookieValue(rec, flashCookieName); v != url.QueryEscape("All Mandi uploaded!") {
		t.Fatalf("flash=%q", v)
	}

	rows := env.store.insertedMany
	if len(rows) != 2 {
		t.Fatalf("rows=%d", len(rows))
	}
	if rows[0]["mandi_name"] != "Azadpur" || rows[0]["min_price"] != 1200.0 || rows[0]["mandi_name_hi"] != nil {
		t.Fatalf("row0=%v", rows[0])
	}
	if _, ok := rows[0]["extra"]; ok {
		t.Fatal("extra column must be ignored")
	}
	if rows[1]["mandi_name"] != "Vashi" || rows[1]["max_price"] != nil {
		t.Fatalf("row1=%v", rows[1])
	}
}

func TestUpload_UserPasswordsHashed(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "1", authz.RoleAdmin)

	// Users have import switched off, so the parser is exercised directly.
	rec := env.serve(uploadRequest(t, "/admin/resource/user/upload", "users.csv", "phone_number,email,password,roles\n9876543210,,pw,admin\n"), admin)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d", rec.Code)
	}

	h := &handler{registry: mustRegistry(t)}
	res, _ := h.registry.Get("user")
	rows, err := h.parseUpload(strings.NewReader("phone_number,email,password,roles\n9876543210,,pw,admin\n"), res, userColumns[1:5])
	if err != nil {
		t.Fatal(err)
	}
	hash, _ := rows[0]["password"].(string)
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("pw")); err != nil {
		t.Fatalf("password not hashed: %v", err)
	}
}

func TestUpload_Errors(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "1", authz.RoleAdmin)

	cases := []struct {
		name     string
		filename string
		content  string
		want     string
	}{
		{"no file", "", "", "file is required"},
		{"empty file", "mandis.csv", "", "file is empty"},
		{"missing column", "mandis.csv", "mandi_name,state\nA,B\n", `missing column "mandi_name_hi"`},
		{"bad value", "mandis.csv", "mandi_name,mandi_name_hi,state,min_price,max_price\nA,,B,abc,\n", "line 2:"},
		{"only blank rows", "mandis.csv", "mandi_name,mandi_name_hi,state,min_price,max_price\n,,,,\n", "file has no rows"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.serve(uploadRequest(t, "/admin/resource/mandi/upload", tc.filename, tc.content), admin)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status=%d", rec.Code)
			}
			doc := docOf(t, rec.Body.String())
			if got := doc.Find("p.error").Text(); !strings.Contains(got, tc.want) {
				t.Fatalf("error=%q want %q", got, tc.want)
			}
		})
	}
	if len(env.store.insertedMany) != 0 {
		t.Fatal("unexpected insert")
	}
}
