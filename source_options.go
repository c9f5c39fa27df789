package shift

import (
	"io/fs"

	"github.com/denismitr/shift/internal/logger"
	"github.com/denismitr/shift/internal/source"
	"github.com/denismitr/shift/migration"
)

type (
	sourceConfig struct {
		versionFormat migration.VersionFormat
	}

	SourceConfigurator func(sc *sourceConfig)
)

func newSourceConfig(configurators ...SourceConfigurator) sourceConfig {
	sc := sourceConfig{versionFormat: migration.AnyFormat}
	for _, c := range configurators {
		c(&sc)
	}
	return sc
}

// UseLocalFolderSource reads <key>.migrate.sql and <key>.rollback.sql files from a folder
func UseLocalFolderSource(folder string, configurators ...SourceConfigurator) OptionFunc {
	sc := newSourceConfig(configurators...)

	return func(m *Migrator) error {
		m.sourceFactory = func(lg logger.Logger) (source.Selector, error) {
			return source.NewLocalFolderSource(folder, lg, sc.versionFormat)
		}
		return nil
	}
}

// UseFSSource reads migration files from any file system, e.g. an embed.FS
func UseFSSource(fsys fs.FS, configurators ...SourceConfigurator) OptionFunc {
	sc := newSourceConfig(configurators...)

	return func(m *Migrator) error {
		m.sourceFactory = func(lg logger.Logger) (source.Selector, error) {
			return source.NewFSSource(fsys, lg, sc.versionFormat)
		}
		return nil
	}
}

// UseInMemorySource uses migrations defined in code, in the given order
func UseInMemorySource(factories ...migration.Factory) OptionFunc {
	return func(m *Migrator) error {
		m.sourceFactory = func(logger.Logger) (source.Selector, error) {
			return source.NewInMemorySource(factories...), nil
		}
		return nil
	}
}

func WithVersionFormat(vf migration.VersionFormat) SourceConfigurator {
	return func(sc *sourceConfig) {
		sc.versionFormat = vf
	}
}
