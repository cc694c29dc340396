package resource

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jacksonlee411/mandi-console/pkg/authz"
	"gopkg.in/yaml.v3"
)

// ControllerDataExtract swaps a resource's list view for the receipt
// correction page.
const ControllerDataExtract = "data_extract"

type Config struct {
	Version              int        `yaml:"version"`
	DefaultRouteResource string     `yaml:"default_route_resource"`
	User                 UserConfig `yaml:"user"`
	Resources            []Resource `yaml:"resources"`
}

type UserConfig struct {
	Table      string `yaml:"table"`
	Identifier string `yaml:"identifier"`
	Secret     string `yaml:"secret"`
	RoleColumn string `yaml:"role_column"`
}

type Resource struct {
	Name                string             `yaml:"name"`
	Table               string             `yaml:"table"`
	PK                  string             `yaml:"pk"`
	ListDisplay         []string           `yaml:"list_display"`
	Joins               []Join             `yaml:"joins"`
	Sort                []SortCriterion    `yaml:"sort"`
	SearchableDateField string             `yaml:"searchable_date_field"`
	HideSearch          bool               `yaml:"hide_search"`
	HideDateFilter      bool               `yaml:"hide_date_filter"`
	ProtectedAttributes []string           `yaml:"protected_attributes"`
	EditableRelations   []EditableRelation `yaml:"editable_relations_dropdown"`
	Permissions         *Permissions       `yaml:"permissions"`
	Revisions           bool               `yaml:"revisions"`
	RevisionTable       string             `yaml:"revision_table"`
	RevisionPK          string             `yaml:"revision_pk"`
	Controller          string             `yaml:"controller"`
	DuplicateCheck      *DuplicateCheck    `yaml:"duplicate_check"`
}

// DuplicateCheck clears Flag on an edited row when another row with the
// same Columns, the same calendar day in DateColumn and Flag set exists.
type DuplicateCheck struct {
	Columns    []string `yaml:"columns"`
	DateColumn string   `yaml:"date_column"`
	Flag       string   `yaml:"flag"`
}

// Join resolves the "relation" prefix of a dotted list_display entry.
type Join struct {
	Relation   string `yaml:"relation"`
	Table      string `yaml:"table"`
	LocalKey   string `yaml:"local_key"`
	ForeignKey string `yaml:"foreign_key"`
}

type SortCriterion struct {
	SortBy    string `yaml:"sort_by"`
	SortOrder string `yaml:"sort_order"`
}

type EditableRelation struct {
	Key          string `yaml:"key"`
	Label        string `yaml:"label"`
	RelatedTable string `yaml:"related_table"`
	RelatedLabel string `yaml:"related_label"`
	RelatedKey   string `yaml:"related_key"`
}

type Permissions struct {
	Create bool `yaml:"create"`
	Read   bool `yaml:"read"`
	Update bool `yaml:"update"`
	Delete bool `yaml:"delete"`
	Export bool `yaml:"export"`
	Import bool `yaml:"import"`
}

// DefaultPermissions is applied to resources that declare none.
var DefaultPermissions = Permissions{Read: true}

func (p Permissions) Allows(action string) bool {
	switch action {
	case authz.ActionCreate:
		return p.Create
	case authz.ActionRead:
		return p.Read
	case authz.ActionUpdate:
		return p.Update
	case authz.ActionDelete:
		return p.Delete
	case authz.ActionExport:
		return p.Export
	case authz.ActionImport:
		return p.Import
	default:
		return false
	}
}

// Map renders the flags keyed by action, for templates.
func (p Permissions) Map() map[string]bool {
	out := make(map[string]bool, len(authz.Actions))
	for _, a := range authz.Actions {
		out[a] = p.Allows(a)
	}
	return out
}

func (r Resource) PrimaryKey() string {
	if r.PK == "" {
		return "id"
	}
	return r.PK
}

func (r Resource) DateField() string {
	if r.SearchableDateField == "" {
		return "created_at"
	}
	return r.SearchableDateField
}

func (r Resource) EffectivePermissions() Permissions {
	if r.Permissions == nil {
		return DefaultPermissions
	}
	return *r.Permissions
}

func (r Resource) JoinFor(relation string) (Join, bool) {
	for _, j := range r.Joins {
		if j.Relation == relation {
			return j, true
		}
	}
	return Join{}, false
}

func (r Resource) IsProtected(column string) bool {
	for _, p := range r.ProtectedAttributes {
		if p == column {
			return true
		}
	}
	return false
}

func (r Resource) RelationFor(column string) (EditableRelation, bool) {
	for _, rel := range r.EditableRelations {
		if rel.Key == column {
			return rel, true
		}
	}
	return EditableRelation{}, false
}

// Registry is the parsed, validated resource configuration. It is
// immutable after Parse and safe for concurrent use.
type Registry struct {
	cfg    Config
	byName map[string]Resource
}

func Load(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	reg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

func Parse(b []byte) (*Registry, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	if cfg.Version != 1 {
		return nil, errors.New("resources: unsupported version")
	}
	if cfg.User.Table == "" {
		cfg.User.Table = "users"
	}
	if cfg.User.Identifier == "" {
		cfg.User.Identifier = "phone_number"
	}
	if cfg.User.Secret == "" {
		cfg.User.Secret = "password"
	}
	if cfg.User.RoleColumn == "" {
		cfg.User.RoleColumn = "roles"
	}

	byName := make(map[string]Resource, len(cfg.Resources))
	for i, r := range cfg.Resources {
		if err := validateResource(r); err != nil {
			return nil, err
		}
		if _, dup := byName[r.Name]; dup {
			return nil, fmt.Errorf("resources: duplicate name %q", r.Name)
		}
		if r.Revisions && r.RevisionPK == "" {
			r.RevisionPK = "resource_id"
		}
		for k := range r.Joins {
			if r.Joins[k].ForeignKey == "" {
				r.Joins[k].ForeignKey = "id"
			}
		}
		cfg.Resources[i] = r
		byName[r.Name] = r
	}
	if cfg.DefaultRouteResource != "" {
		if _, ok := byName[cfg.DefaultRouteResource]; !ok {
			return nil, fmt.Errorf("resources: default_route_resource %q is not declared", cfg.DefaultRouteResource)
		}
	}
	return &Registry{cfg: cfg, byName: byName}, nil
}

func validateResource(r Resource) error {
	if r.Name == "" || r.Table == "" {
		return errors.New("resources: resource requires name and table")
	}
	if strings.ContainsAny(r.Name, "/ ") {
		return fmt.Errorf("resources: invalid name %q", r.Name)
	}
	for _, s := range r.Sort {
		switch strings.ToLower(s.SortOrder) {
		case "", "asc", "desc":
		default:
			return fmt.Errorf("resources: %s: invalid sort_order %q", r.Name, s.SortOrder)
		}
		if s.SortBy == "" {
			return fmt.Errorf("resources: %s: sort_by required", r.Name)
		}
	}
	for _, col := range r.ListDisplay {
		relation, _, dotted := strings.Cut(col, ".")
		if !dotted {
			continue
		}
		j, ok := r.JoinFor(relation)
		if !ok {
			return fmt.Errorf("resources: %s: list_display %q has no join for %q", r.Name, col, relation)
		}
		if j.Table == "" || j.LocalKey == "" {
			return fmt.Errorf("resources: %s: join %q requires table and local_key", r.Name, relation)
		}
	}
	for _, rel := range r.EditableRelations {
		if rel.Key == "" || rel.RelatedTable == "" || rel.RelatedLabel == "" || rel.RelatedKey == "" {
			return fmt.Errorf("resources: %s: editable relation requires key, related_table, related_label, related_key", r.Name)
		}
	}
	if r.Revisions && r.RevisionTable == "" {
		return fmt.Errorf("resources: %s: revisions require revision_table", r.Name)
	}
	if d := r.DuplicateCheck; d != nil && (len(d.Columns) == 0 || d.Flag == "") {
		return fmt.Errorf("resources: %s: duplicate_check requires columns and flag", r.Name)
	}
	switch r.Controller {
	case "", ControllerDataExtract:
	default:
		return fmt.Errorf("resources: %s: unknown controller %q", r.Name, r.Controller)
	}
	return nil
}

func (g *Registry) Get(name string) (Resource, bool) {
	r, ok := g.byName[name]
	return r, ok
}

// Names returns the declared resource names in file order.
func (g *Registry) Names() []string {
	out := make([]string, 0, len(g.cfg.Resources))
	for _, r := range g.cfg.Resources {
		out = append(out, r.Name)
	}
	return out
}

func (g *Registry) Permissions(name string) Permissions {
	r, ok := g.byName[name]
	if !ok {
		return Permissions{}
	}
	return r.EffectivePermissions()
}

func (g *Registry) DefaultRouteResource() string { return g.cfg.DefaultRouteResource }

func (g *Registry) User() UserConfig { return g.cfg.User }

// DataExtractResource returns the first resource wired to the receipt
// correction controller.
func (g *Registry) DataExtractResource() (Resource, bool) {
	for _, r := range g.cfg.Resources {
		if r.Controller == ControllerDataExtract {
			return r, true
		}
	}
	return Resource{}, false
}
