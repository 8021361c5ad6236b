package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

const migrationsLockKey = "bookly:migrations"

type appliedMigration struct {
	bun.BaseModel `bun:"table:schema_migrations"`

	Name      string    `bun:"name,pk"`
	AppliedAt time.Time `bun:"applied_at,notnull"`
}

// Migrate applies the goose "Up" sections of every *.sql file in fsys that has
// not been applied yet, in file name order. Each file runs in its own
// transaction; concurrent callers serialise on an advisory lock.
func Migrate(ctx context.Context, db *bun.DB, fsys fs.FS, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}

	if _, err := db.NewCreateTable().Model((*appliedMigration)(nil)).IfNotExists().Exec(ctx); err != nil {
		return 0, fmt.Errorf("create migrations table: %w", err)
	}

	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return 0, err
	}
	sort.Strings(names)

	applied := 0
	for _, name := range names {
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return applied, err
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return applied, fmt.Errorf("%s: %w", name, err)
		}

		ran := false
		err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", migrationsLockKey).Exec(ctx); err != nil {
				return err
			}
			exists, err := tx.NewSelect().Model((*appliedMigration)(nil)).Where("name = ?", name).Exists(ctx)
			if err != nil || exists {
				return err
			}
			for _, stmt := range splitSQLStatements(upSQL) {
				if _, err := tx.NewRaw(stmt).Exec(ctx); err != nil {
					return err
				}
			}
			rec := appliedMigration{Name: name, AppliedAt: time.Now().UTC()}
			if _, err := tx.NewInsert().Model(&rec).Exec(ctx); err != nil {
				return err
			}
			ran = true
			return nil
		})
		if err != nil {
			return applied, fmt.Errorf("migrate %s: %w", name, err)
		}
		if ran {
			applied++
			log.Info("migration applied", slog.String("name", name))
		}
	}
	return applied, nil
}

func extractGooseUp(sql string) (string, error) {
	upMarker := "-- +goose Up"
	downMarker := "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := strings.TrimLeft(sql[upIdx+len(upMarker):], "\r\n")

	downIdx := strings.Index(afterUp, downMarker)
	if downIdx < 0 {
		return strings.TrimSpace(afterUp), nil
	}
	return strings.TrimSpace(afterUp[:downIdx]), nil
}

// splitSQLStatements splits on semicolons. Migrations must not use
// dollar-quoted bodies.
func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
