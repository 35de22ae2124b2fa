package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// Config holds all configurable contractdesk settings.
type Config struct {
	APIURL           string  `json:"api_url"`
	RelayURL         string  `json:"relay_url"`   // empty: upload straight to storage
	ChatPrefix       string  `json:"chat_prefix"` // object-name prefix for chat uploads
	TimestampUploads *bool   `json:"timestamp_uploads,omitempty"`
	RequestTimeout   string  `json:"request_timeout"`  // Go duration
	ProcessingDelay  string  `json:"processing_delay"` // simulated processing phase
	LogFile          string  `json:"log_file"`
	LogLevel         string  `json:"log_level"`
	AzureAD          AzureAD `json:"azure_ad"`
}

// AzureAD identifies the app registration used for single sign-on.
type AzureAD struct {
	ClientID    string `json:"client_id"`
	TenantID    string `json:"tenant_id"`
	RedirectURI string `json:"redirect_uri"`
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		APIURL:          "http://localhost:8080/api/vmp_agent",
		ChatPrefix:      "chat",
		RequestTimeout:  "180s",
		ProcessingDelay: "1.5s",
		LogLevel:        "info",
		AzureAD:         AzureAD{TenantID: "common"},
	}
}

// Timeout parses RequestTimeout, falling back to the default.
func (c Config) Timeout() time.Duration {
	return durationOr(c.RequestTimeout, 180*time.Second)
}

// Delay parses ProcessingDelay, falling back to the default.
func (c Config) Delay() time.Duration {
	return durationOr(c.ProcessingDelay, 1500*time.Millisecond)
}

// Timestamps reports whether uploaded object names get a time suffix.
func (c Config) Timestamps() bool {
	return c.TimestampUploads != nil && *c.TimestampUploads
}

func durationOr(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return def
}

// Dir returns ~/.config/contractdesk.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "contractdesk"), nil
}

// LoadGlobal reads ~/.config/contractdesk/config.json.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return loadFile(filepath.Join(dir, "config.json"), true)
}

// LoadProject reads .contractdesk in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".contractdesk", false)
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	overlay(&result, global)
	overlay(&result, project)
	return result
}

func overlay(dst, src *Config) {
	if src == nil {
		return
	}
	set := func(d *string, s string) {
		if s != "" {
			*d = s
		}
	}
	set(&dst.APIURL, src.APIURL)
	set(&dst.RelayURL, src.RelayURL)
	set(&dst.ChatPrefix, src.ChatPrefix)
	set(&dst.RequestTimeout, src.RequestTimeout)
	set(&dst.ProcessingDelay, src.ProcessingDelay)
	set(&dst.LogFile, src.LogFile)
	set(&dst.LogLevel, src.LogLevel)
	set(&dst.AzureAD.ClientID, src.AzureAD.ClientID)
	set(&dst.AzureAD.TenantID, src.AzureAD.TenantID)
	set(&dst.AzureAD.RedirectURI, src.AzureAD.RedirectURI)
	if src.TimestampUploads != nil {
		v := *src.TimestampUploads
		dst.TimestampUploads = &v
	}
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
