package source

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/denismitr/shift/internal/logger"
	"github.com/denismitr/shift/migration"
	"github.com/pkg/errors"
)

const DefaultMigrationsFolder = "./migrations"

const (
	defaultSqlExtension = "sql"

	migrateFileSuffix                = "migrate"
	rollbackFileSuffix               = "rollback"
	defaultMigrateFileFullExtension  = ".migrate.sql"
	defaultRollbackFileFullExtension = ".rollback.sql"

	timestampBasedVersionFormat = `^(?P<version>\d{9,11})(_\w+)?$`
	timestampBasedNameFormat    = `^\d{9,11}_(?P<name>\w+[\w_-]*)$`
	datetimeBasedVersionFormat  = `^(?P<version>\d{14})(_\w+)?$`
	datetimeBasedNameFormat     = `^\d{14}_(?P<name>\w+[\w_-]*)$`

	anyBasedVersionFormat = `^(?P<version>\d{9,14})(_[\w-]+)?$`
	anyBasedNameFormat    = `^\d{9,14}_(?P<name>\w+[\w_-]*)$`
)

// FSSource reads migration units from pairs of files in a file system:
// <key>.migrate.sql and an optional <key>.rollback.sql.
// Units are ordered by key, so zero padded versions keep their order.
type FSSource struct {
	fsys          fs.FS
	lg            logger.Logger
	versionRegexp *regexp.Regexp
	nameRegexp    *regexp.Regexp
}

// LocalFolderSource is an FSSource over a folder on disk that can also create new files
type LocalFolderSource struct {
	*FSSource
	folder string
}

var _ Selector = (*FSSource)(nil)
var _ Source = (*LocalFolderSource)(nil)

func NewFSSource(fsys fs.FS, lg logger.Logger, vf migration.VersionFormat) (*FSSource, error) {
	versionRegexp, nameRegexp, err := ParsingRules(vf)
	if err != nil {
		return nil, err
	}

	if lg == nil {
		lg = logger.NullLogger{}
	}

	return &FSSource{
		fsys:          fsys,
		lg:            lg,
		versionRegexp: versionRegexp,
		nameRegexp:    nameRegexp,
	}, nil
}

func NewLocalFolderSource(folder string, lg logger.Logger, vf migration.VersionFormat) (*LocalFolderSource, error) {
	if folder == "" {
		folder = DefaultMigrationsFolder
	}

	fss, err := NewFSSource(os.DirFS(folder), lg, vf)
	if err != nil {
		return nil, err
	}

	return &LocalFolderSource{FSSource: fss, folder: folder}, nil
}

// ParsingRules returns the regular expressions extracting the version and the name from a key
func ParsingRules(vf migration.VersionFormat) (*regexp.Regexp, *regexp.Regexp, error) {
	var versionRegexFormat string
	var nameRegexFormat string

	switch vf {
	case migration.TimestampFormat:
		versionRegexFormat = timestampBasedVersionFormat
		nameRegexFormat = timestampBasedNameFormat
	case migration.DatetimeFormat:
		versionRegexFormat = datetimeBasedVersionFormat
		nameRegexFormat = datetimeBasedNameFormat
	default:
		versionRegexFormat = anyBasedVersionFormat
		nameRegexFormat = anyBasedNameFormat
	}

	versionRegexp, err := regexp.Compile(versionRegexFormat)
	if err != nil {
		return nil, nil, err
	}

	nameRegexp, err := regexp.Compile(nameRegexFormat)
	if err != nil {
		return nil, nil, err
	}

	return versionRegexp, nameRegexp, nil
}

func (s *FSSource) Select(ctx context.Context) (migration.Migrations, error) {
	keys, err := s.readKeys()
	if err != nil {
		return nil, err
	}

	result := make(migration.Migrations, 0, len(keys))
	versions := make(map[string]string, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m, version, err := s.readOne(key)
		if err != nil {
			return nil, errors.Wrapf(err, "migration [%s]", key)
		}

		result = append(result, m)
		versions[m.Key] = version
	}

	// versions of different lengths are possible with the any format
	sort.SliceStable(result, func(i, j int) bool {
		vi, vj := versions[result[i].Key], versions[result[j].Key]
		if vi != vj {
			return versionLess(vi, vj)
		}
		return result[i].Key < result[j].Key
	})

	return result, nil
}

// versionLess compares two digit-only versions as numbers
func versionLess(a, b string) bool {
	a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func (s *FSSource) readKeys() ([]string, error) {
	files, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, errors.Wrap(err, "could not read migrations folder")
	}

	hasMigrate := make(map[string]bool)
	var keys []string

	for _, f := range files {
		if f.IsDir() {
			continue
		}

		key, suffix, err := convertFilePathToKey(f.Name())
		if err != nil {
			s.lg.Debugf("skipping file [%s]: %s", f.Name(), err.Error())
			continue
		}

		if _, seen := hasMigrate[key]; !seen {
			keys = append(keys, key)
			hasMigrate[key] = false
		}

		if suffix == migrateFileSuffix {
			hasMigrate[key] = true
		}
	}

	for _, key := range keys {
		if !hasMigrate[key] {
			return nil, errors.Wrapf(ErrMissingMigrateFile, "migration [%s]", key)
		}
	}

	return keys, nil
}

func (s *FSSource) readOne(key string) (*migration.Migration, string, error) {
	version, err := s.extractVersionFromKey(key)
	if err != nil {
		return nil, "", err
	}

	migrateContents, err := fs.ReadFile(s.fsys, key+defaultMigrateFileFullExtension)
	if err != nil {
		return nil, "", errors.Wrap(err, "could not read migrate file")
	}

	var rollback []string
	rollbackContents, err := fs.ReadFile(s.fsys, key+defaultRollbackFileFullExtension)
	switch {
	case err == nil:
		rollback = scripts(rollbackContents)
	case errors.Is(err, fs.ErrNotExist):
		s.lg.Debugf("migration [%s] has no rollback file", key)
	default:
		return nil, "", errors.Wrap(err, "could not read rollback file")
	}

	m, err := migration.New(key, s.extractNameFromKey(key), scripts(migrateContents), rollback)()
	if err != nil {
		return nil, "", err
	}

	return m, version, nil
}

func (s *FSSource) extractVersionFromKey(key string) (string, error) {
	matches := s.versionRegexp.FindStringSubmatch(key)
	if len(matches) < 2 {
		return "", errors.Wrapf(ErrInvalidVersion, "key %s", key)
	}

	return matches[1], nil
}

func (s *FSSource) extractNameFromKey(key string) string {
	matches := s.nameRegexp.FindStringSubmatch(key)
	if len(matches) < 2 {
		return ""
	}

	return humanize(matches[1])
}

func (lfs *LocalFolderSource) IsValid() bool {
	info, err := os.Stat(lfs.folder)
	if err != nil {
		return false
	}

	return info.IsDir()
}

func (lfs *LocalFolderSource) AlreadyExists(version, name string) bool {
	key := migration.CreateKeyFromVersionAndName(version, name)
	filename := filepath.Join(lfs.folder, key+defaultMigrateFileFullExtension)
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}

	return !info.IsDir()
}

// Create writes an empty migrate file and optionally an empty rollback file
// and returns the key of the new unit. Existing files are never overwritten.
func (lfs *LocalFolderSource) Create(version, name string, withRollback bool) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrEmptyMigrationName
	}

	if !lfs.IsValid() {
		return "", errors.Wrapf(ErrFolderDoesNotExist, "%s", lfs.folder)
	}

	key := migration.CreateKeyFromVersionAndName(version, name)
	if err := migration.ValidateKey(key); err != nil {
		return "", err
	}

	if err := createEmptyFile(filepath.Join(lfs.folder, key+defaultMigrateFileFullExtension)); err != nil {
		return "", err
	}

	if withRollback {
		if err := createEmptyFile(filepath.Join(lfs.folder, key+defaultRollbackFileFullExtension)); err != nil {
			return "", err
		}
	}

	return key, nil
}

func createEmptyFile(filename string) error {
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return errors.Wrapf(ErrMigrationExists, "%s", filename)
		}

		return errors.Wrapf(err, "could not create file [%s]", filename)
	}

	if cErr := f.Close(); cErr != nil {
		return errors.Wrapf(cErr, "could not close file %s", filename)
	}

	return nil
}

// scripts turns the file contents into a single script, blank files into none
func scripts(contents []byte) []string {
	script := strings.TrimSpace(string(contents))
	if script == "" {
		return nil
	}

	return []string{script}
}

func convertFilePathToKey(p string) (string, string, error) {
	base := path.Base(filepath.ToSlash(p))
	segments := strings.Split(base, ".")

	if len(segments) != 3 || segments[0] == "" {
		return "", "", ErrNotAMigrationFile
	}

	if segments[2] != defaultSqlExtension || !(segments[1] == migrateFileSuffix || segments[1] == rollbackFileSuffix) {
		return "", "", ErrNotAMigrationFile
	}

	return segments[0], segments[1], nil
}
