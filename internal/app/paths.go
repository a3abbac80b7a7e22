package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Paths stores resolved runtime file locations.
type Paths struct {
	RootDir    string
	ConfigFile string
	LogFile    string
}

// ResolvePaths uses configFile when set, otherwise the per-user config directory.
func ResolvePaths(configFile string) (Paths, error) {
	if configFile = strings.TrimSpace(configFile); configFile != "" {
		abs, err := filepath.Abs(configFile)
		if err != nil {
			return Paths{}, fmt.Errorf("resolve config path: %w", err)
		}
		root := filepath.Dir(abs)

		return Paths{
			RootDir:    root,
			ConfigFile: abs,
			LogFile:    filepath.Join(root, LogFilename),
		}, nil
	}

	cfgRoot, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve config dir: %w", err)
	}
	root := filepath.Join(cfgRoot, Name)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return Paths{}, fmt.Errorf("create app config dir: %w", err)
	}

	return Paths{
		RootDir:    root,
		ConfigFile: filepath.Join(root, ConfigFilename),
		LogFile:    filepath.Join(root, LogFilename),
	}, nil
}

// Resolve makes a relative path relative to RootDir.
func (p Paths) Resolve(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) || path == ":memory:" {
		return path
	}

	return filepath.Join(p.RootDir, path)
}
