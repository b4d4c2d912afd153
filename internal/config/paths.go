package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".gaia"

// Paths holds resolved filesystem paths for GAIA data.
type Paths struct {
	Base     string // ~/.gaia
	Config   string // ~/.gaia/config.yaml
	Personas string // ~/.gaia/personas
	Logs     string // ~/.gaia/logs
	Data     string // ~/.gaia/data
}

// Database returns the SQLite file used by the sqlite session and cache stores.
func (p Paths) Database() string {
	return filepath.Join(p.Data, "gaia.db")
}

// ResolvePaths computes all standard paths from the home directory.
// If GAIA_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("GAIA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:     base,
		Config:   filepath.Join(base, "config.yaml"),
		Personas: filepath.Join(base, "personas"),
		Logs:     filepath.Join(base, "logs"),
		Data:     filepath.Join(base, "data"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.Base, p.Personas, p.Logs, p.Data}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}
