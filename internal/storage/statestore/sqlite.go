package statestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // драйвер "sqlite" на чистом Go
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore — хранилище состояния в одной таблице kv файла SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenSQLite открывает (или создаёт) файл базы и применяет миграции.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("создание директории базы состояния: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("открытие SQLite %s: %w", path, err)
	}

	s := &SQLiteStore{
		db:     db,
		path:   path,
		logger: logger.With(slog.String("component", "statestore")),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// migrate применяет SQL-миграции из embedded FS.
// m.Close() не вызывается: он закрыл бы и переданный *sql.DB.
func (s *SQLiteStore) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("ошибка инициализации драйвера миграций: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, dirty, _ := m.Version()
	s.logger.Info("Миграции базы состояния применены",
		slog.String("path", s.path),
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// Get реализует Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("чтение ключа %s: %w", key, err)
	}
	return value, true, nil
}

// SetMany реализует Store. Все значения пишутся в одной транзакции.
func (s *SQLiteStore) SetMany(ctx context.Context, values map[string]string) error {
	return s.Replace(ctx, values, nil)
}

// Delete реализует Store.
func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	return s.Replace(ctx, nil, keys)
}

// Replace реализует Store. Запись и удаление выполняются в одной транзакции.
func (s *SQLiteStore) Replace(ctx context.Context, set map[string]string, del []string) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("начало транзакции: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC().Format(time.RFC3339)
	for k, v := range set {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv(key, value, updated_at) VALUES(?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			k, v, now,
		); err != nil {
			return fmt.Errorf("запись ключа %s: %w", k, err)
		}
	}
	for _, k := range del {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, k); err != nil {
			return fmt.Errorf("удаление ключа %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("фиксация транзакции: %w", err)
	}
	return nil
}

// Ping реализует Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Path возвращает путь к файлу базы.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close закрывает базу.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
