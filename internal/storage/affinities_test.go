package storage

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vkuksa/trendwatch/migrations"
)

// The audit insert is plain SQL against a goose-managed table, so a column
// rename on either side only surfaces at runtime. This cross-checks the
// insert's column list against the embedded migration.
func TestAppendAuditMatchesSchema(t *testing.T) {
	table := auditTableDefinition(t)

	start := strings.Index(appendAuditSQL, "(")
	end := strings.Index(appendAuditSQL, ")")
	require.Greater(t, end, start, "insert statement has no column list")

	for _, column := range strings.Split(appendAuditSQL[start+1:end], ",") {
		column = strings.TrimSpace(column)

		require.Contains(t, table, "\n    "+column+" ",
			"column %q is not declared in the affinity_audit migration", column)
	}
}

func auditTableDefinition(t *testing.T) string {
	t.Helper()

	var table string

	err := fs.WalkDir(migrations.FS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		raw, err := fs.ReadFile(migrations.FS, path)
		if err != nil {
			return err
		}

		sql := string(raw)
		if i := strings.Index(sql, "CREATE TABLE affinity_audit ("); i >= 0 {
			table = sql[i:]
			if end := strings.Index(table, ");"); end >= 0 {
				table = table[:end]
			}
		}

		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, table, "no migration declares affinity_audit")

	return table
}
