// Package migrations embeds the SQL schema files into the binary so the
// gateway can migrate its database without files on the filesystem.
package migrations

import (
	"embed"

	"github.com/dicomiot/dhome-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // files are at the root of the embedded FS
}
