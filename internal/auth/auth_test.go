package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := NewStoreAt(filepath.Join(t.TempDir(), "cfg", "credentials.json"))

	_, err := s.Load()
	require.ErrorIs(t, err, ErrNoCredentials)
	assert.Equal(t, "", s.Token())

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := signed(t, jwt.MapClaims{"exp": exp.Unix(), "email": "a@b.c"})
	require.NoError(t, s.Save(&Credentials{Token: tok, Email: "a@b.c", Source: "password"}))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, tok, got.Token)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(exp))
	assert.Equal(t, tok, s.Token())

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())
	_, err = s.Load()
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestExpiredCredentialsAreDropped(t *testing.T) {
	s := NewStoreAt(filepath.Join(t.TempDir(), "credentials.json"))
	tok := signed(t, jwt.MapClaims{"exp": time.Now().Add(-time.Minute).Unix()})
	require.NoError(t, s.Save(&Credentials{Token: tok}))

	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNoCredentials)
	_, statErr := os.Stat(s.Path())
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "expired credentials should be removed")
}

func TestTokenExpiry(t *testing.T) {
	_, ok := TokenExpiry("not-a-jwt")
	assert.False(t, ok)
	_, ok = TokenExpiry(signed(t, jwt.MapClaims{"sub": "x"}))
	assert.False(t, ok)
	exp, ok := TokenExpiry(signed(t, jwt.MapClaims{"exp": int64(2000000000)}))
	assert.True(t, ok)
	assert.Equal(t, int64(2000000000), exp.Unix())
}

func TestWatchReportsLogout(t *testing.T) {
	dir := t.TempDir()
	s := NewStoreAt(filepath.Join(dir, "credentials.json"))
	require.NoError(t, s.Save(&Credentials{Token: "opaque"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cleared := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, s, func() {
			select {
			case cleared <- struct{}{}:
			default:
			}
		})
	}()

	// Give the watcher time to register before removing the file.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, s.Clear())

	select {
	case <-cleared:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report credential removal")
	}
	cancel()
	assert.NoError(t, <-done)
}

func TestDeviceLogin(t *testing.T) {
	idToken := signed(t, jwt.MapClaims{"preferred_username": "user@contoso.com"})
	mux := http.NewServeMux()
	mux.HandleFunc("/devicecode", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"device_code":      "dev",
			"user_code":        "ABCD-EFGH",
			"verification_uri": "https://microsoft.com/devicelogin",
			"expires_in":       60,
			"interval":         1,
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &oauth2.Config{
		ClientID: "client",
		Scopes:   Scopes,
		Endpoint: oauth2.Endpoint{DeviceAuthURL: srv.URL + "/devicecode", TokenURL: srv.URL + "/token"},
	}
	var shown string
	creds, err := DeviceLogin(context.Background(), cfg, func(da *oauth2.DeviceAuthResponse) { shown = da.UserCode })
	require.NoError(t, err)
	assert.Equal(t, "ABCD-EFGH", shown)
	assert.Equal(t, "access", creds.Token)
	assert.Equal(t, "sso", creds.Source)
	assert.Equal(t, "user@contoso.com", creds.Email)
	require.NotNil(t, creds.ExpiresAt)
}

func TestDeviceLoginNeedsClientID(t *testing.T) {
	_, err := DeviceLogin(context.Background(), DeviceConfig("", ""), func(*oauth2.DeviceAuthResponse) {})
	assert.ErrorIs(t, err, ErrSSONotConfigured)
	assert.Contains(t, DeviceConfig("id", "").Endpoint.TokenURL, "/common/")
}
