// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// LatestSchemaVersion は同梱マイグレーションの最新バージョン。
// 1: accounts, 2: login_attempts
const LatestSchemaVersion uint = 2

// NewMigrator は同梱マイグレーションを読み込んだmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations はaccountsとlogin_attemptsのスキーマを最新まで適用する。
// dirty状態のデータベースには適用せずエラーを返す。
func RunMigrations(databaseURL string) error {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	from, err := schemaVersion(m)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("schema already up to date", slog.Uint64("version", uint64(from)))
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	to, err := schemaVersion(m)
	if err != nil {
		return err
	}
	slog.Info("schema migrated",
		slog.Uint64("from_version", uint64(from)),
		slog.Uint64("to_version", uint64(to)),
	)
	return nil
}

// schemaVersion は適用済みバージョンを返す。未適用の場合は0。
func schemaVersion(m *migrate.Migrate) (uint, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("schema version %d is dirty, fix it manually before migrating", version)
	}
	return version, nil
}
