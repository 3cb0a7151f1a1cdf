package internal

import (
	"fmt"
	"path/filepath"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mickaelmarchal/exifstream/internal/api"
	"github.com/mickaelmarchal/exifstream/internal/database"
	"github.com/mickaelmarchal/exifstream/internal/ingest"
	"github.com/mitchellh/go-homedir"
)

const exifstreamUserDirSuffix = "/exifstream/"

// ExifstreamConfig is the struct used to contain the various user
// config supplied by file, or manually inside the code.
type ExifstreamConfig struct {
	IngestService ingest.Config           `yaml:"ingestion" env-required:"true"`
	Database      database.DatabaseConfig `yaml:"database" env-required:"true"`
	RestConfig    api.RestConfig          `yaml:"api"`
}

// LoadFromFile loads a YAML configuration file in to an
// ExifstreamConfig struct, applying env var overrides and defaults.
func (config *ExifstreamConfig) LoadFromFile(configPath string) error {
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration from %s - %v", configPath, err.Error())
	}

	return nil
}

// DefaultConfigPath returns the conventional location of the config
// file inside the users home directory.
func DefaultConfigPath() string {
	home, err := homedir.Dir()
	if err != nil {
		panic(fmt.Sprintf("FAILURE to derive user home dir %s", err))
	}

	return filepath.Join(home, ".config", exifstreamUserDirSuffix, "config.yaml")
}
