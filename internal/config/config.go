package config

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-level settings read from the environment.
type Config struct {
	Addr          string
	DatabaseURL   string
	LogLevel      string
	AllowlistPath string
	ResourcesPath string
	AuthzModel    string
	AuthzPolicy   string
	SessionTTL    time.Duration
	BasicAuthUser string
	BasicAuthPass string
}

// Load reads .env (when present) and then the environment. Values already
// set in the environment win over .env.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:          getenvDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:   DatabaseURLFromEnv(),
		LogLevel:      strings.ToLower(getenvDefault("LOG_LEVEL", "info")),
		AllowlistPath: os.Getenv("ALLOWLIST_PATH"),
		ResourcesPath: os.Getenv("ADMIN_RESOURCES_PATH"),
		AuthzModel:    os.Getenv("AUTHZ_MODEL_PATH"),
		AuthzPolicy:   os.Getenv("AUTHZ_POLICY_PATH"),
		SessionTTL:    SessionTTLFromEnv(),
		BasicAuthUser: os.Getenv("ADMIN_BASIC_AUTH_USER"),
		BasicAuthPass: os.Getenv("ADMIN_BASIC_AUTH_PASS"),
	}

	var err error
	if cfg.AllowlistPath == "" {
		if cfg.AllowlistPath, err = FindUp("config/routing/allowlist.yaml"); err != nil {
			return nil, err
		}
	}
	if cfg.ResourcesPath == "" {
		if cfg.ResourcesPath, err = FindUp("config/admin/resources.yaml"); err != nil {
			return nil, err
		}
	}
	if cfg.AuthzModel == "" {
		if cfg.AuthzModel, err = FindUp("config/access/model.conf"); err != nil {
			return nil, err
		}
	}
	if cfg.AuthzPolicy == "" {
		if cfg.AuthzPolicy, err = FindUp("config/access/policy.csv"); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// DatabaseURLFromEnv prefers DATABASE_URL and otherwise assembles a DSN
// from the DB_* variables.
func DatabaseURLFromEnv() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}
	host := getenvDefault("DB_HOST", "127.0.0.1")
	port := getenvDefault("DB_PORT", "5432")
	user := getenvDefault("DB_USER", "app")
	pass := getenvDefault("DB_PASSWORD", "app")
	name := getenvDefault("DB_NAME", "mandi")
	sslmode := getenvDefault("DB_SSLMODE", "disable")

	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, pass),
		Host:   host + ":" + port,
		Path:   "/" + name,
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}

func SessionTTLFromEnv() time.Duration {
	raw := strings.TrimSpace(os.Getenv("ADMIN_SID_TTL_HOURS"))
	if raw == "" {
		return 8 * time.Hour
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 8 * time.Hour
	}
	return time.Duration(n) * time.Hour
}

// FindUp looks for rel in the working directory and up to eight parents.
func FindUp(rel string) (string, error) {
	path := rel
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("config: " + rel + " not found")
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
