// Package config loads the application settings and the per-bank import
// settings files.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Default locations, expanded with ExpandPath.
const (
	DefaultConfigDir    = "~/.config/spice-ledger"
	DefaultDatabasePath = "~/.local/share/spice-ledger/ledger.db"
)

// ExpandPath expands a leading ~ and $VAR style environment variables.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}

// DatabasePath returns the expanded database path, or the default one when
// configured is empty.
func DatabasePath(configured string) string {
	if configured == "" {
		configured = DefaultDatabasePath
	}
	return ExpandPath(configured)
}

// SettingsPath finds the import settings file for a name. Names containing a
// path separator or an extension are used as given, others are looked up as
// <name>.yaml in the importers directory below dir.
func SettingsPath(dir, name string) string {
	if strings.ContainsRune(name, filepath.Separator) || filepath.Ext(name) != "" {
		return ExpandPath(name)
	}
	return filepath.Join(ExpandPath(dir), "importers", name+".yaml")
}
