package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jacksonlee411/mandi-console/internal/resource"
)

// User is a console login.
type User struct {
	ID           string
	Identifier   string
	PasswordHash string
	Roles        []string
}

func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Users reads logins from the table described by the registry's user block.
type Users struct {
	db  DB
	cfg resource.UserConfig
}

func (s *Store) Users(cfg resource.UserConfig) *Users {
	return &Users{db: s.db, cfg: cfg}
}

func (u *Users) selectSQL(where string) string {
	return fmt.Sprintf(`SELECT CAST(id AS TEXT), CAST(%s AS TEXT), COALESCE(CAST(%s AS TEXT), ''), COALESCE(CAST(%s AS TEXT), '')
FROM %s
WHERE %s = $1`,
		pgx.Identifier{u.cfg.Identifier}.Sanitize(),
		pgx.Identifier{u.cfg.Secret}.Sanitize(),
		pgx.Identifier{u.cfg.RoleColumn}.Sanitize(),
		ident(u.cfg.Table),
		where,
	)
}

func (u *Users) scan(row pgx.Row) (User, error) {
	var out User
	var roles string
	if err := row.Scan(&out.ID, &out.Identifier, &out.PasswordHash, &roles); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	out.Roles = splitRoles(roles)
	return out, nil
}

func (u *Users) ByIdentifier(ctx context.Context, identifier string) (User, error) {
	where := "CAST(" + pgx.Identifier{u.cfg.Identifier}.Sanitize() + " AS TEXT)"
	out, err := u.scan(u.db.QueryRow(ctx, u.selectSQL(where), strings.TrimSpace(identifier)))
	if err != nil {
		return User{}, fmt.Errorf("store: user by identifier: %w", err)
	}
	return out, nil
}

func (u *Users) ByID(ctx context.Context, id string) (User, error) {
	out, err := u.scan(u.db.QueryRow(ctx, u.selectSQL("CAST(id AS TEXT)"), id))
	if err != nil {
		return User{}, fmt.Errorf("store: user %s: %w", id, err)
	}
	return out, nil
}

// Create inserts a login with an already hashed secret.
func (u *Users) Create(ctx context.Context, identifier string, passwordHash string, role string) (string, error) {
	var id string
	err := u.db.QueryRow(ctx, fmt.Sprintf(`INSERT INTO %s (%s, %s, %s)
VALUES ($1, $2, $3)
RETURNING CAST(id AS TEXT)`,
		ident(u.cfg.Table),
		pgx.Identifier{u.cfg.Identifier}.Sanitize(),
		pgx.Identifier{u.cfg.Secret}.Sanitize(),
		pgx.Identifier{u.cfg.RoleColumn}.Sanitize(),
	), identifier, passwordHash, role).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("store: create user: %w", err)
	}
	return id, nil
}

func splitRoles(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
