package cli

import (
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/denismitr/shift/internal/database"
	"github.com/denismitr/shift/internal/source"
	"github.com/denismitr/shift/migration"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

var (
	ErrConfigNotFound       = errors.New("configuration file not found")
	ErrInvalidVersionFormat = errors.New("invalid version format")
	ErrConfigExists         = errors.New("configuration file already exists")

	allowedVersionFormats = []migration.VersionFormat{
		migration.TimestampFormat,
		migration.DatetimeFormat,
		migration.AnyFormat,
	}
)

const configFileStub = `version: "1"
migrations:
  local_folder: ./migrations
  database_url: "%%DATABASE_URL%%"
  table: migrations
  version_format: datetime
`

type (
	// Settings are the resolved values every command works with
	Settings struct {
		DatabaseURL   string
		Folder        string
		Table         string
		VersionFormat migration.VersionFormat
	}

	migrationsSection struct {
		LocalFolder   string `yaml:"local_folder"`
		DatabaseURL   string `yaml:"database_url"`
		Table         string `yaml:"table"`
		VersionFormat string `yaml:"version_format"`
	}

	configFile struct {
		Version    string            `yaml:"version"`
		Migrations migrationsSection `yaml:"migrations"`
	}
)

func DefaultSettings() Settings {
	return Settings{
		Folder:        source.DefaultMigrationsFolder,
		Table:         database.DefaultMigrationsTable,
		VersionFormat: migration.AnyFormat,
	}
}

// LoadConfig reads the YAML configuration file at path
func LoadConfig(path string, getenv func(string) string) (Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Settings{}, errors.Wrapf(ErrConfigNotFound, "%s", path)
		}

		return Settings{}, errors.Wrap(err, "could not open shift configuration file")
	}

	defer func() { _ = f.Close() }()

	return ReadConfig(f, getenv)
}

// ReadConfig parses a configuration, values written as %%NAME%% are taken
// from the environment variable NAME
func ReadConfig(r io.Reader, getenv func(string) string) (Settings, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Settings{}, errors.Wrap(err, "could not read shift configuration file")
	}

	var cfgFile configFile
	if err := yaml.Unmarshal(b, &cfgFile); err != nil {
		return Settings{}, errors.Wrap(err, "could not parse shift configuration file")
	}

	s := DefaultSettings()
	s.DatabaseURL = expandEnv(cfgFile.Migrations.DatabaseURL, getenv)

	if folder := expandEnv(cfgFile.Migrations.LocalFolder, getenv); folder != "" {
		s.Folder = folder
	}

	if table := expandEnv(cfgFile.Migrations.Table, getenv); table != "" {
		s.Table = table
	}

	if vf := expandEnv(cfgFile.Migrations.VersionFormat, getenv); vf != "" {
		s.VersionFormat, err = parseVersionFormat(vf)
		if err != nil {
			return Settings{}, err
		}
	}

	return s, nil
}

// InitConfig writes the configuration stub to path, an existing file is kept
func InitConfig(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return errors.Wrapf(ErrConfigExists, "%s", path)
		}

		return errors.Wrap(err, "could not create config file")
	}

	if _, err := io.Copy(f, strings.NewReader(configFileStub)); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "could not write config file")
	}

	return errors.Wrap(f.Close(), "could not close config file")
}

func expandEnv(value string, getenv func(string) string) string {
	value = strings.TrimSpace(value)
	if len(value) > 4 && strings.HasPrefix(value, "%%") && strings.HasSuffix(value, "%%") {
		return getenv(strings.Trim(value, "%"))
	}

	return value
}

func parseVersionFormat(value string) (migration.VersionFormat, error) {
	for _, format := range allowedVersionFormats {
		if string(format) == value {
			return format, nil
		}
	}

	return "", errors.Wrapf(ErrInvalidVersionFormat, "%q", value)
}
