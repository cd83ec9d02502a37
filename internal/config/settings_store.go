package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// Settings is the saved connection profile written by `runitdb configure`.
type Settings struct {
	Endpoint  string `json:"endpoint"`
	APIKey    string `json:"api_key"`
	ProjectID string `json:"project_id"`
	Debug     bool   `json:"debug,omitempty"`
}

func SettingsPath() (string, error) {
	root, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "runitdb", "settings.json"), nil
}

// LoadSettings returns the saved profile. A missing file is not an error.
func LoadSettings() (Settings, error) {
	path, err := SettingsPath()
	if err != nil {
		return Settings{}, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("invalid settings file %s: %w", path, err)
	}
	return settings, nil
}

// SaveSettings writes the profile while holding an exclusive lock next to
// the settings file so concurrent CLI invocations do not interleave writes.
func SaveSettings(settings Settings) error {
	path, err := SettingsPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire settings lock: %w", err)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	payload, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s Settings) Connection() Connection {
	return Connection{
		Endpoint:  strings.TrimSpace(s.Endpoint),
		APIKey:    strings.TrimSpace(s.APIKey),
		ProjectID: strings.TrimSpace(s.ProjectID),
	}
}

// MergeOptionsWithSettings prefers values given on the command line or in
// the environment and falls back to the saved profile.
func MergeOptionsWithSettings(cli Options, saved Settings) Options {
	merged := cli.Connection().Merge(saved.Connection())
	cli.Endpoint = merged.Endpoint
	cli.APIKey = merged.APIKey
	cli.ProjectID = merged.ProjectID
	if !cli.Debug {
		cli.Debug = saved.Debug
	}
	return cli
}

func SettingsFromOptions(opts Options) Settings {
	conn := opts.Connection()
	return Settings{
		Endpoint:  conn.Endpoint,
		APIKey:    conn.APIKey,
		ProjectID: conn.ProjectID,
		Debug:     opts.Debug,
	}
}
