package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jacksonlee411/mandi-console/internal/config"
	"github.com/jacksonlee411/mandi-console/internal/correction"
	"github.com/jacksonlee411/mandi-console/internal/resource"
	"github.com/jacksonlee411/mandi-console/internal/routing"
	"github.com/jacksonlee411/mandi-console/internal/store"
	"github.com/jacksonlee411/mandi-console/pkg/authz"
	"go.uber.org/zap"
)

// Entrypoint is the allowlist entrypoint served by the console.
const Entrypoint = "console"

type resourceStore interface {
	ResolvePK(ctx context.Context, r resource.Resource) (resource.Resource, error)
	Columns(ctx context.Context, table string) ([]resource.Attribute, error)
	List(ctx context.Context, q store.ListQuery) (store.ListResult, error)
	Get(ctx context.Context, r resource.Resource, id string) (map[string]any, error)
	Insert(ctx context.Context, r resource.Resource, values map[string]any, a store.Audit) (string, error)
	InsertMany(ctx context.Context, r resource.Resource, rows []map[string]any, a store.Audit) (int, error)
	Update(ctx context.Context, r resource.Resource, id string, values map[string]any, editedBy any, a store.Audit) error
	Delete(ctx context.Context, r resource.Resource, id string, a store.Audit) error
	RelationOptions(ctx context.Context, rel resource.EditableRelation) ([]resource.Option, error)
}

type receiptStore interface {
	Pending(ctx context.Context, page int, perPage int) ([]map[string]any, int64, error)
	Traders(ctx context.Context, mandiIDs []int64) ([]correction.Trader, error)
	UpdateReceiptCorrection(ctx context.Context, u correction.Update, actor string, requestID string) error
	UpdateApprovalStatus(ctx context.Context, a correction.Approval, actor string, requestID string) error
}

type HandlerOptions struct {
	Config           *config.Config
	Logger           *zap.Logger
	Pool             store.DB
	Registry         *resource.Registry
	Authorizer       authorizer
	Store            resourceStore
	Receipts         receiptStore
	Users            userStore
	IdentityProvider identityProvider
	Sessions         sessionStore
	Principals       principalStore
}

type handler struct {
	cfg         *config.Config
	logger      *zap.Logger
	registry    *resource.Registry
	authorizer  authorizer
	store       resourceStore
	receipts    receiptStore
	validator   *correction.Validator
	corrections *correction.Service
	idp         identityProvider
	sessions    sessionStore
	pages       *pages
}

func NewHandler() (http.Handler, error) {
	return NewHandlerWithOptions(HandlerOptions{})
}

func MustNewHandler() http.Handler {
	h, err := NewHandler()
	if err != nil {
		panic(errors.New("admin: failed to build handler: " + err.Error()))
	}
	return h
}

func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	cfg := opts.Config
	if cfg == nil {
		c, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	a, err := routing.LoadAllowlist(cfg.AllowlistPath)
	if err != nil {
		return nil, err
	}
	classifier, err := routing.NewClassifier(a, Entrypoint)
	if err != nil {
		return nil, err
	}
	router := routing.NewRouter(classifier, logger)

	registry := opts.Registry
	if registry == nil {
		reg, err := resource.Load(cfg.ResourcesPath)
		if err != nil {
			return nil, err
		}
		registry = reg
	}

	az := opts.Authorizer
	if az == nil {
		loaded, err := loadAuthorizer(cfg)
		if err != nil {
			return nil, err
		}
		az = loaded
	}

	pool := opts.Pool
	if pool == nil && (opts.Store == nil || opts.Receipts == nil || opts.Users == nil) {
		p, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pool = p
	}

	var st *store.Store
	if pool != nil {
		st = store.New(pool)
	}
	resources := opts.Store
	if resources == nil {
		resources = st
	}
	receipts := opts.Receipts
	if receipts == nil {
		table := ""
		if r, ok := registry.DataExtractResource(); ok {
			table = r.Table
		}
		receipts = st.Receipts(table)
	}
	users := opts.Users
	if users == nil {
		users = st.Users(registry.User())
	}

	validator := correction.MustDefaultValidator()

	idp := opts.IdentityProvider
	if idp == nil {
		idp = newPasswordIdentityProvider(users)
	}
	principals := opts.Principals
	if principals == nil {
		principals = newPrincipalStore(users)
	}
	sessions := opts.Sessions
	if sessions == nil {
		var db queryExecer
		if pool != nil {
			db = pool
		}
		sessions = newSessionStoreFromDB(db)
	}

	pg, err := loadPages()
	if err != nil {
		return nil, err
	}

	h := &handler{
		cfg:         cfg,
		logger:      logger,
		registry:    registry,
		authorizer:  az,
		store:       resources,
		receipts:    receipts,
		validator:   validator,
		corrections: correction.NewService(receipts, validator, logger),
		idp:         idp,
		sessions:    sessions,
		pages:       pg,
	}
	h.routes(router)

	guarded := withBasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass,
		withRequestID(
			withSession(classifier, sessions, principals, logger,
				withAuthz(classifier, az, registry, logger, router))))

	mux := http.NewServeMux()
	mux.Handle("/", guarded)
	return mux, nil
}

func (h *handler) routes(router *routing.Router) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	router.Handle(routing.RouteClassOps, http.MethodGet, "/health", ok)
	router.Handle(routing.RouteClassOps, http.MethodGet, "/healthz", ok)
	router.Handle(routing.RouteClassStatic, http.MethodGet, "/admin/static/{file}", staticHandler())

	router.Handle(routing.RouteClassUI, http.MethodGet, "/", http.RedirectHandler("/admin/", http.StatusFound))
	router.Handle(routing.RouteClassUI, http.MethodGet, "/admin/", http.HandlerFunc(h.handleIndex))
	router.Handle(routing.RouteClassUI, http.MethodGet, "/admin/dashboard", http.HandlerFunc(h.handleDashboard))

	router.Handle(routing.RouteClassAuthn, http.MethodGet, "/admin/login", http.HandlerFunc(h.handleLoginForm))
	router.Handle(routing.RouteClassAuthn, http.MethodPost, "/admin/login", http.HandlerFunc(h.handleLogin))
	router.Handle(routing.RouteClassAuthn, http.MethodGet, "/admin/logout", http.HandlerFunc(h.handleLogout))
	router.Handle(routing.RouteClassAuthn, http.MethodPost, "/admin/logout", http.HandlerFunc(h.handleLogout))

	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, correction.UpdatePath, http.HandlerFunc(h.handleUpdateReceiptData))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, correction.ApprovalPath, http.HandlerFunc(h.handleUpdateApprovalStatus))

	router.Handle(routing.RouteClassUI, http.MethodGet, "/admin/resource/{resource_type}", http.HandlerFunc(h.handleList))
	router.Handle(routing.RouteClassUI, http.MethodGet, "/admin/resource/{resource_type}/create", http.HandlerFunc(h.handleCreateForm))
	router.Handle(routing.RouteClassUI, http.MethodPost, "/admin/resource/{resource_type}/create", http.HandlerFunc(h.handleCreate))
	router.Handle(routing.RouteClassDownload, http.MethodGet, "/admin/resource/{resource_type}/download", http.HandlerFunc(h.handleDownload))
	router.Handle(routing.RouteClassDownload, http.MethodGet, "/admin/resource/{resource_type}/download-sample", http.HandlerFunc(h.handleDownloadSample))
	router.Handle(routing.RouteClassUI, http.MethodGet, "/admin/resource/{resource_type}/upload", http.HandlerFunc(h.handleUploadForm))
	router.Handle(routing.RouteClassUI, http.MethodPost, "/admin/resource/{resource_type}/upload", http.HandlerFunc(h.handleUpload))
	router.Handle(routing.RouteClassUI, http.MethodGet, "/admin/resource/{resource_type}/{resource_id}/view", http.HandlerFunc(h.handleView))
	router.Handle(routing.RouteClassUI, http.MethodGet, "/admin/resource/{resource_type}/{resource_id}/edit", http.HandlerFunc(h.handleEditForm))
	router.Handle(routing.RouteClassUI, http.MethodPost, "/admin/resource/{resource_type}/{resource_id}/edit", http.HandlerFunc(h.handleEdit))
	router.Handle(routing.RouteClassUI, http.MethodPost, "/admin/resource/{resource_type}/{resource_id}/delete", http.HandlerFunc(h.handleDelete))
}

// withRequestID makes sure every request carries an X-Request-Id, echoed on
// the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if id == "" {
			if v, err := uuid.NewV7(); err == nil {
				id = v.String()
			} else {
				id = uuid.NewString()
			}
			r.Header.Set("X-Request-Id", id)
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func requestID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-Id"))
}

// landingPath is where a user goes after login or when opening /admin/.
func (h *handler) landingPath(p principal) string {
	if p.HasRole(authz.RoleDataExtractorIntern) {
		if r, ok := h.registry.DataExtractResource(); ok {
			return "/admin/resource/" + r.Name
		}
		return "/admin/resource/extract-data"
	}
	if def := h.registry.DefaultRouteResource(); def != "" {
		return "/admin/resource/" + def
	}
	return "/admin/dashboard"
}

func (h *handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	http.Redirect(w, r, h.landingPath(p), http.StatusFound)
}

func (h *handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "dashboard", "Dashboard", nil)
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, status int, code string, msg string, err error) {
	if err != nil {
		h.logger.Error(msg,
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID(r)),
		)
	}
	routing.WriteError(w, r, routing.RouteClassUI, status, code, msg)
}

func auditFor(r *http.Request) store.Audit {
	p, _ := principalFromContext(r.Context())
	return store.Audit{Actor: p.ID, RequestID: requestID(r)}
}
