package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/burenotti/go_course_backend/internal/adapter/storage"
)

//go:embed sql/*.sql
var files embed.FS

// Apply runs every embedded migration in file name order. The statements are
// idempotent, so Apply may run on every deploy.
func Apply(ctx context.Context, db storage.DBContext, logger *slog.Logger) error {
	names, err := fs.Glob(files, "sql/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := files.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		logger.Info("applied migration", "name", name)
	}
	return nil
}
