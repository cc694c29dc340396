package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jacksonlee411/mandi-console/internal/config"
	"github.com/jacksonlee411/mandi-console/internal/correction"
	"github.com/jacksonlee411/mandi-console/internal/resource"
	"github.com/jacksonlee411/mandi-console/internal/store"
	"github.com/jacksonlee411/mandi-console/pkg/authz"
)

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("read error") }

var (
	mandiColumns = []resource.Attribute{
		{Name: "id", Type: "INTEGER"},
		{Name: "mandi_name", Type: "CHARACTER VARYING", Nullable: true},
		{Name: "mandi_name_hi", Type: "CHARACTER VARYING", Nullable: true},
		{Name: "state", Type: "CHARACTER VARYING", Nullable: true},
		{Name: "min_price", Type: "NUMERIC", Nullable: true},
		{Name: "max_price", Type: "NUMERIC", Nullable: true},
		{Name: "created_at", Type: "TIMESTAMP WITH TIME ZONE"},
	}
	userColumns = []resource.Attribute{
		{Name: "id", Type: "INTEGER"},
		{Name: "phone_number", Type: "CHARACTER VARYING"},
		{Name: "email", Type: "CHARACTER VARYING", Nullable: true},
		{Name: "password", Type: "CHARACTER VARYING", Nullable: true},
		{Name: "roles", Type: "CHARACTER VARYING", Nullable: true},
		{Name: "created_at", Type: "TIMESTAMP WITH TIME ZONE"},
	}
	traderColumns = []resource.Attribute{
		{Name: "id", Type: "INTEGER"},
		{Name: "code", Type: "CHARACTER VARYING"},
		{Name: "name", Type: "CHARACTER VARYING"},
		{Name: "mandi_id", Type: "INTEGER"},
	}
)

// fakeStore keeps rows per table in insertion order.
type fakeStore struct {
	mu sync.Mutex

	columns map[string][]resource.Attribute
	rows    map[string][]map[string]any
	options []resource.Option

	listErr    error
	columnsErr error
	insertErr  error
	updateErr  error
	deleteErr  error

	lastList     store.ListQuery
	inserted     []map[string]any
	insertedMany []map[string]any
	updatedID    string
	updated      map[string]any
	editedBy     any
	deleted      []string
	audits       []store.Audit
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		columns: map[string][]resource.Attribute{
			"mandis":  mandiColumns,
			"users":   userColumns,
			"traders": traderColumns,
		},
		rows: map[string][]map[string]any{},
	}
}

func (s *fakeStore) ResolvePK(_ context.Context, r resource.Resource) (resource.Resource, error) {
	if r.PK == "" {
		r.PK = "id"
	}
	return r, nil
}

func (s *fakeStore) Columns(_ context.Context, table string) ([]resource.Attribute, error) {
	if s.columnsErr != nil {
		return nil, s.columnsErr
	}
	return s.columns[table], nil
}

func (s *fakeStore) List(_ context.Context, q store.ListQuery) (store.ListResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastList = q
	if s.listErr != nil {
		return store.ListResult{}, s.listErr
	}
	rows := s.rows[q.Resource.Table]
	return store.ListResult{Rows: rows, Total: int64(len(rows))}, nil
}

func (s *fakeStore) find(table string, id string) (int, bool) {
	for i, row := range s.rows[table] {
		if fmt.Sprint(row["id"]) == id {
			return i, true
		}
	}
	return 0, false
}

func (s *fakeStore) Get(_ context.Context, r resource.Resource, id string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.find(r.Table, id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.rows[r.Table][i], nil
}

func (s *fakeStore) Insert(_ context.Context, _ resource.Resource, values map[string]any, a store.Audit) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insertErr != nil {
		return "", s.insertErr
	}
	s.inserted = append(s.inserted, values)
	s.audits = append(s.audits, a)
	return fmt.Sprint(len(s.inserted)), nil
}

func (s *fakeStore) InsertMany(_ context.Context, _ resource.Resource, rows []map[string]any, a store.Audit) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.insertedMany = append(s.insertedMany, rows...)
	s.audits = append(s.audits, a)
	return len(rows), nil
}

func (s *fakeStore) Update(_ context.Context, r resource.Resource, id string, values map[string]any, editedBy any, a store.Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateErr != nil {
		return s.updateErr
	}
	if _, ok := s.find(r.Table, id); !ok {
		return store.ErrNotFound
	}
	s.updatedID = id
	s.updated = values
	s.editedBy = editedBy
	s.audits = append(s.audits, a)
	return nil
}

func (s *fakeStore) Delete(_ context.Context, r resource.Resource, id string, a store.Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleteErr != nil {
		return s.deleteErr
	}
	i, ok := s.find(r.Table, id)
	if !ok {
		return store.ErrNotFound
	}
	s.rows[r.Table] = append(s.rows[r.Table][:i], s.rows[r.Table][i+1:]...)
	s.deleted = append(s.deleted, id)
	s.audits = append(s.audits, a)
	return nil
}

func (s *fakeStore) RelationOptions(context.Context, resource.EditableRelation) ([]resource.Option, error) {
	return s.options, nil
}

type fakeReceipts struct {
	mu sync.Mutex

	pending     []map[string]any
	traders     []correction.Trader
	pendingErr  error
	updateErr   error
	approvalErr error

	askedMandis []int64
	updates     []correction.Update
	approvals   []correction.Approval
	actor       string
}

func (f *fakeReceipts) Pending(_ context.Context, _ int, _ int) ([]map[string]any, int64, error) {
	if f.pendingErr != nil {
		return nil, 0, f.pendingErr
	}
	return f.pending, int64(len(f.pending)), nil
}

func (f *fakeReceipts) Traders(_ context.Context, mandiIDs []int64) ([]correction.Trader, error) {
	f.askedMandis = mandiIDs
	return f.traders, nil
}

func (f *fakeReceipts) UpdateReceiptCorrection(_ context.Context, u correction.Update, actor string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, u)
	f.actor = actor
	return nil
}

func (f *fakeReceipts) UpdateApprovalStatus(_ context.Context, a correction.Approval, actor string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.approvalErr != nil {
		return f.approvalErr
	}
	f.approvals = append(f.approvals, a)
	f.actor = actor
	return nil
}

type fakeUsers struct {
	mu   sync.Mutex
	byID map[string]store.User
	err  error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[string]store.User{}}
}

func (f *fakeUsers) put(u store.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[u.ID] = u
}

func (f *fakeUsers) ByIdentifier(_ context.Context, identifier string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return store.User{}, f.err
	}
	for _, u := range f.byID {
		if u.Identifier == identifier {
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeUsers) ByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return store.User{}, f.err
	}
	u, ok := f.byID[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

type stubIdentityProvider struct {
	ident authenticatedIdentity
	err   error
}

func (s stubIdentityProvider) AuthenticatePassword(context.Context, string, string) (authenticatedIdentity, error) {
	return s.ident, s.err
}

type stubAuthorizer struct {
	allowed  bool
	enforced bool
	err      error
}

func (s stubAuthorizer) AuthorizeAny([]string, string, string, string) (bool, bool, error) {
	return s.allowed, s.enforced, s.err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	find := func(rel string) string {
		t.Helper()
		p, err := config.FindUp(rel)
		if err != nil {
			t.Fatal(err)
		}
		return p
	}
	return &config.Config{
		Addr:          ":0",
		AllowlistPath: find("config/routing/allowlist.yaml"),
		ResourcesPath: find("config/admin/resources.yaml"),
		AuthzModel:    find("config/access/model.conf"),
		AuthzPolicy:   find("config/access/policy.csv"),
		SessionTTL:    time.Hour,
	}
}

func mustRegistry(t *testing.T) *resource.Registry {
	t.Helper()
	reg, err := resource.Load(testConfig(t).ResourcesPath)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func mustRegistryFromYAML(t *testing.T, src string) *resource.Registry {
	t.Helper()
	reg, err := resource.Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func mustAuthorizer(t *testing.T, mode authz.Mode) *authz.Authorizer {
	t.Helper()
	cfg := testConfig(t)
	a, err := authz.NewAuthorizer(cfg.AuthzModel, cfg.AuthzPolicy, mode)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

type testEnv struct {
	h        http.Handler
	sessions *memorySessionStore
	store    *fakeStore
	receipts *fakeReceipts
	users    *fakeUsers
}

// newTestEnv builds the console over in-memory fakes with the repo's
// allowlist, resource registry and casbin policy in enforce mode.
func newTestEnv(t *testing.T, mutate ...func(*HandlerOptions)) *testEnv {
	t.Helper()
	t.Setenv("AUTHZ_MODE", "enforce")

	env := &testEnv{
		sessions: newMemorySessionStore(),
		store:    newFakeStore(),
		receipts: &fakeReceipts{},
		users:    newFakeUsers(),
	}
	opts := HandlerOptions{
		Config:   testConfig(t),
		Store:    env.store,
		Receipts: env.receipts,
		Users:    env.users,
		Sessions: env.sessions,
	}
	for _, m := range mutate {
		m(&opts)
	}
	h, err := NewHandlerWithOptions(opts)
	if err != nil {
		t.Fatal(err)
	}
	env.h = h
	return env
}

// login registers a user with roles and returns a live session cookie.
func (e *testEnv) login(t *testing.T, id string, roles ...string) *http.Cookie {
	t.Helper()
	e.users.put(store.User{ID: id, Identifier: "99999" + id, Roles: roles})
	sid, err := e.sessions.Create(context.Background(), id, time.Now().Add(time.Hour), "", "")
	if err != nil {
		t.Fatal(err)
	}
	return &http.Cookie{Name: sidCookieName, Value: sid}
}

func (e *testEnv) serve(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func newRequest(method string, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func (e *testEnv) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return e.serve(httptest.NewRequest(http.MethodGet, path, nil), cookies...)
}

func (e *testEnv) postForm(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.serve(req, cookies...)
}

func (e *testEnv) postFormWithReferer(path string, form url.Values, referer string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", referer)
	return e.serve(req, cookies...)
}

func (e *testEnv) postJSON(path string, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return e.serve(req, cookies...)
}

func cookieValue(rec *httptest.ResponseRecorder, name string) (string, bool) {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}
