// Package migrations embeds the SQL schema into the binary and registers it
// with the database package on import.
package migrations

import (
	"embed"

	"github.com/nerrad567/accessguard-core/internal/infrastructure/database"
)

//go:embed *.sql
var FS embed.FS

func init() {
	database.MigrationsFS = FS
	database.MigrationsDir = "."
}
