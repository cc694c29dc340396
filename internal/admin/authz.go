package admin

import (
	"net/http"
	"strings"

	"github.com/jacksonlee411/mandi-console/internal/config"
	"github.com/jacksonlee411/mandi-console/internal/correction"
	"github.com/jacksonlee411/mandi-console/internal/resource"
	"github.com/jacksonlee411/mandi-console/internal/routing"
	"github.com/jacksonlee411/mandi-console/pkg/authz"
	"go.uber.org/zap"
)

type authorizer interface {
	AuthorizeAny(subjects []string, domain string, object string, action string) (allowed bool, enforced bool, err error)
}

func loadAuthorizer(cfg *config.Config) (*authz.Authorizer, error) {
	mode, err := authz.ModeFromEnv()
	if err != nil {
		return nil, err
	}
	return authz.NewAuthorizer(cfg.AuthzModel, cfg.AuthzPolicy, mode)
}

func withAuthz(classifier *routing.Classifier, a authorizer, registry *resource.Registry, logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if isPublicPath(path) {
			next.ServeHTTP(w, r)
			return
		}

		rc := routing.RouteClassUI
		if classifier != nil {
			rc = classifier.Classify(path)
		}

		object, action, shouldCheck := authzRequirementForRoute(r.Method, path)
		if !shouldCheck {
			next.ServeHTTP(w, r)
			return
		}

		if resourceType, ok := strings.CutPrefix(object, "resource."); ok {
			if _, declared := registry.Get(resourceType); !declared {
				routing.WriteError(w, r, rc, http.StatusNotFound, "not_found", "not found")
				return
			}
			if !registry.Permissions(resourceType).Allows(action) {
				routing.WriteError(w, r, rc, http.StatusForbidden, "forbidden", "forbidden")
				return
			}
		}

		p, _ := principalFromContext(r.Context())
		allowed, enforced, err := a.AuthorizeAny(authz.SubjectsForRoles(p.Roles), authz.DomainGlobal, object, action)
		if err != nil {
			logger.Error("authz failed", zap.Error(err), zap.String("object", object), zap.String("action", action))
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "authz_error", "authz error")
			return
		}
		if !allowed {
			if enforced {
				routing.WriteError(w, r, rc, http.StatusForbidden, "forbidden", "forbidden")
				return
			}
			logger.Warn("authz shadow deny",
				zap.String("principal", p.ID),
				zap.String("object", object),
				zap.String("action", action),
			)
		}

		next.ServeHTTP(w, r)
	})
}

// authzRequirementForRoute maps a console route to its policy object and
// action. Routes with no requirement return ok=false.
func authzRequirementForRoute(method string, path string) (object string, action string, ok bool) {
	switch path {
	case "/admin/dashboard":
		if method == http.MethodGet {
			return authz.ObjectConsoleDashboard, authz.ActionRead, true
		}
		return "", "", false
	case correction.UpdatePath:
		if method == http.MethodPost {
			return authz.ObjectReceiptCorrection, authz.ActionUpdate, true
		}
		return "", "", false
	case correction.ApprovalPath:
		if method == http.MethodPost {
			return authz.ObjectForResource(approvalResource), authz.ActionUpdate, true
		}
		return "", "", false
	}

	rest, found := strings.CutPrefix(path, "/admin/resource/")
	if !found || rest == "" {
		return "", "", false
	}
	parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
	object = authz.ObjectForResource(parts[0])

	switch len(parts) {
	case 1:
		if method == http.MethodGet {
			return object, authz.ActionRead, true
		}
	case 2:
		switch parts[1] {
		case "create":
			return object, authz.ActionCreate, true
		case "download":
			if method == http.MethodGet {
				return object, authz.ActionExport, true
			}
		case "download-sample", "upload":
			return object, authz.ActionImport, true
		}
	case 3:
		switch parts[2] {
		case "view":
			if method == http.MethodGet {
				return object, authz.ActionRead, true
			}
		case "edit":
			return object, authz.ActionUpdate, true
		case "delete":
			if method == http.MethodPost {
				return object, authz.ActionDelete, true
			}
		}
	}
	return "", "", false
}

// can reports whether p may perform action on object, for hiding controls.
// Shadow mode shows everything, mirroring what the middleware lets through.
func (h *handler) can(p principal, object string, action string) bool {
	allowed, enforced, err := h.authorizer.AuthorizeAny(authz.SubjectsForRoles(p.Roles), authz.DomainGlobal, object, action)
	if err != nil {
		return false
	}
	return allowed || !enforced
}

// permissionsFor merges the resource's declared flags with the policy.
func (h *handler) permissionsFor(p principal, resourceType string) map[string]bool {
	declared := h.registry.Permissions(resourceType)
	out := make(map[string]bool, len(authz.Actions))
	object := authz.ObjectForResource(resourceType)
	for _, action := range authz.Actions {
		out[action] = declared.Allows(action) && h.can(p, object, action)
	}
	return out
}
