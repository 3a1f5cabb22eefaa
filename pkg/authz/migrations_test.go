package authz

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreSequential(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)

	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version, "migration versions must be contiguous from 1")
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, m.SQL)
	}
}

// Table-level UNIQUE constraints accept only column names; expression
// uniqueness has to go through CREATE UNIQUE INDEX. A constraint like
// UNIQUE(..., COALESCE(col, 0)) parses locally but fails on the server,
// aborting every later migration.
func TestMigrationUniqueConstraintsAreColumnLists(t *testing.T) {
	// matches a table constraint's column list; CREATE UNIQUE INDEX has
	// the word INDEX between UNIQUE and the open paren, so it never hits
	constraint := regexp.MustCompile(`(?i)\bUNIQUE\s*\(([^)]*)`)

	for _, m := range GetMigrations() {
		for _, match := range constraint.FindAllStringSubmatch(m.SQL, -1) {
			assert.NotContains(t, match[1], "(",
				"migration %d declares a UNIQUE table constraint over an expression: %s",
				m.Version, strings.TrimSpace(match[0]))
		}
	}
}
