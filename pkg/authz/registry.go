package authz

import "strings"

const (
	RoleSuperadmin          = "superadmin"
	RoleAdmin               = "admin"
	RoleCSUser              = "cs_user"
	RoleDataExtractorIntern = "data_extractor_intern"
	RoleUser                = "user"
	RoleAnonymous           = "anonymous"
)

const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionExport = "export"
	ActionImport = "import"
)

const DomainGlobal = "global"

const (
	ObjectConsoleSession    = "console.session"
	ObjectConsoleDashboard  = "console.dashboard"
	ObjectReceiptCorrection = "correction.receipts"
)

// Actions lists every per-resource action in display order.
var Actions = []string{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExport, ActionImport}

// ObjectForResource maps a resource slug to its policy object.
func ObjectForResource(resourceType string) string {
	return "resource." + strings.ToLower(strings.TrimSpace(resourceType))
}

// Roles lists the assignable role slugs. Anonymous is never stored on a user.
func Roles() []string {
	return []string{RoleSuperadmin, RoleAdmin, RoleCSUser, RoleDataExtractorIntern, RoleUser}
}
