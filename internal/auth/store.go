// Package auth keeps the signed-in user's credentials on disk and obtains
// them, either from the backend login or through Azure AD.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoCredentials is returned by Load when nobody is signed in.
var ErrNoCredentials = errors.New("not logged in")

// Credentials identify the signed-in user.
type Credentials struct {
	Token     string     `json:"token"`
	Email     string     `json:"email"`
	Role      string     `json:"role,omitempty"`
	Source    string     `json:"source"` // "password" | "sso"
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the token is past its expiry at now.
func (c *Credentials) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Store persists credentials as a private JSON file.
type Store struct {
	path string
	now  func() time.Time
}

// NewStore returns the store at ~/.config/contractdesk/credentials.json.
func NewStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}
	return NewStoreAt(filepath.Join(home, ".config", "contractdesk", "credentials.json")), nil
}

// NewStoreAt returns a store writing to path.
func NewStoreAt(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path returns the credentials file location.
func (s *Store) Path() string { return s.path }

// Save writes c atomically with mode 0600.
func (s *Store) Save(c *Credentials) error {
	if c.ExpiresAt == nil {
		if exp, ok := TokenExpiry(c.Token); ok {
			c.ExpiresAt = &exp
		}
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "credentials-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// Load reads the stored credentials. Expired credentials are removed and
// reported as ErrNoCredentials.
func (s *Store) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	if c.Token == "" {
		return nil, ErrNoCredentials
	}
	if c.Expired(s.now()) {
		_ = s.Clear()
		return nil, ErrNoCredentials
	}
	return &c, nil
}

// Clear removes the credentials file. Missing files are not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

// Token returns the current bearer token, or "" when signed out.
func (s *Store) Token() string {
	c, err := s.Load()
	if err != nil {
		return ""
	}
	return c.Token
}

// TokenExpiry reads the exp claim of a JWT. The signature is not checked:
// only the backend holds the key, this is just to drop stale tokens early.
func TokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// tokenEmail returns the first user-identifying claim of an unverified JWT.
func tokenEmail(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	for _, k := range []string{"email", "preferred_username", "upn"} {
		if s, ok := claims[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
