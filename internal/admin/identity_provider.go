package admin

import (
	"context"
	"errors"
	"strings"

	"github.com/jacksonlee411/mandi-console/internal/store"
	"golang.org/x/crypto/bcrypt"
)

var errInvalidCredentials = errors.New("admin: invalid credentials")

type authenticatedIdentity struct {
	UserID     string
	Identifier string
	Roles      []string
}

type identityProvider interface {
	AuthenticatePassword(ctx context.Context, identifier string, password string) (authenticatedIdentity, error)
}

// passwordIdentityProvider checks a bcrypt hash stored in the user table.
type passwordIdentityProvider struct {
	users userStore
}

func newPasswordIdentityProvider(users userStore) identityProvider {
	return &passwordIdentityProvider{users: users}
}

func (p *passwordIdentityProvider) AuthenticatePassword(ctx context.Context, identifier string, password string) (authenticatedIdentity, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return authenticatedIdentity{}, errInvalidCredentials
	}

	u, err := p.users.ByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return authenticatedIdentity{}, errInvalidCredentials
		}
		return authenticatedIdentity{}, err
	}
	if u.PasswordHash == "" {
		return authenticatedIdentity{}, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return authenticatedIdentity{}, errInvalidCredentials
		}
		return authenticatedIdentity{}, err
	}
	return authenticatedIdentity{UserID: u.ID, Identifier: u.Identifier, Roles: u.Roles}, nil
}

// hashSecret hashes a password for storage. Cost 10 matches hashes created
// by earlier tooling.
func hashSecret(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), 10)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
