package db

import (
	"embed"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrations embed.FS

// gooseLogger routes goose output through zerolog.
type gooseLogger struct {
	log *zerolog.Logger
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.log.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.log.Fatal().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Migrate applies all pending migrations.
func (p *PortalDB) Migrate() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{log: p.Log})

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("error setting goose dialect: %w", err)
	}

	if err := goose.Up(p.DB, "migrations"); err != nil {
		return fmt.Errorf("error running migrations: %w", err)
	}

	version, err := goose.GetDBVersion(p.DB)
	if err != nil {
		return fmt.Errorf("error reading migration version: %w", err)
	}
	p.Log.Info().Int64("version", version).Msg("database schema is up to date")
	return nil
}
