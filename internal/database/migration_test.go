package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	require := require.New(t)

	entries, err := fs.ReadDir(migrationFiles, "migrations")
	require.NoError(err)
	require.NotEmpty(entries)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.Equal(ups, downs)

	up, err := fs.ReadFile(migrationFiles, "migrations/000001_create_command_log.up.sql")
	require.NoError(err)
	require.Contains(string(up), "CREATE TABLE IF NOT EXISTS command_log")
}
