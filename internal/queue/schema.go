package queue

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion tracks the jobs table layout via SQLite's user_version
// pragma. Bump it whenever schema.sql changes; old databases must be
// cleared rather than migrated.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by an incompatible version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func (s *Store) initSchema(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	switch version {
	case 0:
		// Fresh database.
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		stmt := fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	case schemaVersion:
		return nil
	default:
		return fmt.Errorf("%w: database has version %d, expected %d (run 'quill queue clear' or delete the database)",
			ErrSchemaMismatch, version, schemaVersion)
	}
}
