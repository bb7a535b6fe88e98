// Package auth persists the CLI's credentials in ~/.ptracker/auth.json.
package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// StoredAuth holds either a bearer token or, for services that trust an
// upstream identity header, just the user id.
type StoredAuth struct {
	AccessToken string    `json:"access_token,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	UserID      string    `json:"user_id"`
}

// Expired reports whether a stored token has passed its expiry. Header-only
// credentials never expire.
func (a *StoredAuth) Expired(now time.Time) bool {
	return a.AccessToken != "" && now.After(a.ExpiresAt)
}

// Dir is the CLI's state directory. Tests point it elsewhere.
var Dir = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ptracker"), nil
}

func getAuthFilePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "auth.json"), nil
}

func Save(auth *StoredAuth) error {
	path, err := getAuthFilePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(auth, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Load returns nil, nil when nothing has been saved.
func Load() (*StoredAuth, error) {
	path, err := getAuthFilePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var auth StoredAuth
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, err
	}

	return &auth, nil
}

func Clear() error {
	path, err := getAuthFilePath()
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func IsLoggedIn() bool {
	auth, err := Load()
	if err != nil || auth == nil || auth.UserID == "" {
		return false
	}
	return !auth.Expired(time.Now())
}
