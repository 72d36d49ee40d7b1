package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

// documents holds every collection; the trigger announces the changed collection on
// the docstore_changes channel.
//
//go:embed 2024112202_create_documents.sql
var createDocumentsSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createDocumentsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
DROP TRIGGER IF EXISTS documents_changed ON documents;
DROP FUNCTION IF EXISTS documents_notify();
DROP TABLE IF EXISTS documents;`)
			return err
		},
	)
}
