// Package settings provides storage for locsync user settings, currently
// the API keys of translation endpoints.
//
// All settings are stored in the XDG data directory:
//
//	$XDG_DATA_HOME/locsync/  (default: ~/.local/share/locsync/)
//
// auth.json is a JSON object keyed by profile: the host of the endpoint's
// base URL, or "default" when no base URL is configured. File permissions
// are 0600 (owner read/write only).
//
// Lookup order for API keys:
//  1. --api-key flag (highest priority)
//  2. LOCSYNC_API_KEY environment variable
//  3. provider.api_key in .locsync.yaml
//  4. This credential store
package settings

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
)

const (
	dataDirName = "locsync"
	fileName    = "auth.json"

	// EnvAPIKey overrides stored and configured keys.
	EnvAPIKey = "LOCSYNC_API_KEY"
	// DefaultProfile is used when the endpoint has no base URL.
	DefaultProfile = "default"
)

// Info is one stored credential.
type Info struct {
	// Type is always "api" for now.
	Type    string `json:"type"`
	Key     string `json:"key,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// Store holds credentials keyed by profile.
type Store map[string]*Info

// ---------------------------------------------------------------------------
// File path
// ---------------------------------------------------------------------------

// dataDir returns the XDG data directory for locsync.
// Respects $XDG_DATA_HOME (falls back to ~/.local/share).
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

func filePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// FilePath returns the auth.json file path for display purposes.
func FilePath() string {
	p, err := filePath()
	if err != nil {
		return ""
	}
	return p
}

// DataDir returns the locsync data directory path.
func DataDir() (string, error) {
	return dataDir()
}

// ProfileFor maps an endpoint base URL to its profile name.
func ProfileFor(baseURL string) string {
	if baseURL == "" {
		return DefaultProfile
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return DefaultProfile
	}
	return u.Host
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads the credential store from disk.
// Returns an empty store if the file doesn't exist or is invalid.
func Load() Store {
	path, err := filePath()
	if err != nil {
		return make(Store)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return make(Store)
	}
	var store Store
	if err := json.Unmarshal(data, &store); err != nil || store == nil {
		return make(Store)
	}
	return store
}

// Save writes the credential store to disk with 0600 permissions.
func Save(store Store) error {
	path, err := filePath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Get / Set / Remove
// ---------------------------------------------------------------------------

// Get returns the entry for a profile, or nil if not found.
func Get(profile string) *Info {
	return Load()[profile]
}

// Remove deletes the credentials of a profile.
func Remove(profile string) error {
	store := Load()
	if _, ok := store[profile]; !ok {
		return nil // Nothing to delete
	}
	delete(store, profile)
	return Save(store)
}

// SetAPIKey stores the key for the endpoint at baseURL and returns the
// profile it was filed under.
func SetAPIKey(baseURL, key string) (string, error) {
	profile := ProfileFor(baseURL)
	store := Load()
	store[profile] = &Info{Type: "api", Key: key, BaseURL: baseURL}
	return profile, Save(store)
}

// GetAPIKey retrieves the stored key for the endpoint at baseURL.
func GetAPIKey(baseURL string) string {
	info := Get(ProfileFor(baseURL))
	if info == nil || info.Type != "api" {
		return ""
	}
	return info.Key
}

// Profiles returns the stored profile names, sorted.
func Profiles() []string {
	store := Load()
	names := make([]string, 0, len(store))
	for name := range store {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveAPIKey applies the lookup order documented on the package.
func ResolveAPIKey(flagKey, configKey, baseURL string) string {
	if flagKey != "" {
		return flagKey
	}
	if env := os.Getenv(EnvAPIKey); env != "" {
		return env
	}
	if configKey != "" {
		return configKey
	}
	return GetAPIKey(baseURL)
}

// ---------------------------------------------------------------------------
// Display helpers
// ---------------------------------------------------------------------------

// MaskKey returns a masked version of a key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// RemoveAll removes all stored credentials.
func RemoveAll() error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing auth file: %w", err)
	}
	return nil
}
