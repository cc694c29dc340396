package admin

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const sidCookieName = "admin_sid"

var sidRandReader io.Reader = rand.Reader

type consoleSession struct {
	UserID    string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

type sessionStore interface {
	Create(ctx context.Context, userID string, expiresAt time.Time, ip string, userAgent string) (sid string, err error)
	Lookup(ctx context.Context, sid string) (consoleSession, bool, error)
	Revoke(ctx context.Context, sid string) error
}

type queryExecer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func newSID() (sid string, tokenSha256 []byte, err error) {
	var b [32]byte
	if _, err := sidRandReader.Read(b[:]); err != nil {
		return "", nil, err
	}
	sid = base64.RawURLEncoding.EncodeToString(b[:])
	sum := sha256.Sum256([]byte(sid))
	return sid, sum[:], nil
}

func readSID(r *http.Request) (string, bool) {
	c, err := r.Cookie(sidCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func setSIDCookie(w http.ResponseWriter, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sidCookieName,
		Value:    sid,
		Path:     "/admin",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSIDCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sidCookieName,
		Value:    "",
		Path:     "/admin",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

type memorySessionStore struct {
	mu    sync.Mutex
	bySID map[string]consoleSession
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{bySID: map[string]consoleSession{}}
}

func (s *memorySessionStore) Create(_ context.Context, userID string, expiresAt time.Time, _ string, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sid, _, err := newSID()
	if err != nil {
		return "", err
	}
	s.bySID[sid] = consoleSession{UserID: userID, ExpiresAt: expiresAt}
	return sid, nil
}

func (s *memorySessionStore) Lookup(_ context.Context, sid string) (consoleSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.bySID[sid]
	if !ok || v.RevokedAt != nil || time.Now().After(v.ExpiresAt) {
		return consoleSession{}, false, nil
	}
	return v, true, nil
}

func (s *memorySessionStore) Revoke(_ context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.bySID, sid)
	return nil
}

type pgSessionStore struct {
	q queryExecer
}

func newSessionStoreFromDB(db queryExecer) sessionStore {
	if db == nil {
		return newMemorySessionStore()
	}
	return &pgSessionStore{q: db}
}

func (s *pgSessionStore) Create(ctx context.Context, userID string, expiresAt time.Time, ip string, userAgent string) (string, error) {
	sid, tokenSha256, err := newSID()
	if err != nil {
		return "", err
	}
	_, err = s.q.Exec(ctx, `
INSERT INTO admin_sessions (token_sha256, user_id, expires_at, ip, user_agent)
VALUES ($1, $2, $3, $4, $5);
`, tokenSha256, userID, expiresAt, ip, userAgent)
	if err != nil {
		return "", err
	}
	return sid, nil
}

func (s *pgSessionStore) Lookup(ctx context.Context, sid string) (consoleSession, bool, error) {
	sum := sha256.Sum256([]byte(sid))
	var out consoleSession
	var revokedAt *time.Time
	err := s.q.QueryRow(ctx, `
SELECT user_id::text, expires_at, revoked_at
FROM admin_sessions
WHERE token_sha256 = $1;
`, sum[:]).Scan(&out.UserID, &out.ExpiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return consoleSession{}, false, nil
		}
		return consoleSession{}, false, err
	}
	if revokedAt != nil || time.Now().After(out.ExpiresAt) {
		return consoleSession{}, false, nil
	}
	return out, true, nil
}

func (s *pgSessionStore) Revoke(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(sid))
	_, err := s.q.Exec(ctx, `UPDATE admin_sessions SET revoked_at = now() WHERE token_sha256 = $1 AND revoked_at IS NULL;`, sum[:])
	return err
}
