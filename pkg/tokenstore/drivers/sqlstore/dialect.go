package sqlstore

import "fmt"

type queries struct {
	create []string
	load   string
	upsert string
	delete string
}

func buildQueries(d Dialect, table string) (queries, error) {
	var ts string
	var ph func(int) string

	switch d {
	case SQLite:
		ts = "TIMESTAMP"
		ph = func(int) string { return "?" }
	case Postgres:
		ts = "TIMESTAMPTZ"
		ph = func(n int) string { return fmt.Sprintf("$%d", n) }
	default:
		return queries{}, fmt.Errorf("%w: %q", ErrUnknownDialect, d)
	}

	return queries{
		create: []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	scope      TEXT NOT NULL,
	token      TEXT NOT NULL,
	updated_at %s NOT NULL
)`, table, ts),
			fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_scope_idx ON %s (scope)`, table, table),
		},
		load: fmt.Sprintf(`SELECT token FROM %s WHERE scope = %s`, table, ph(1)),
		upsert: fmt.Sprintf(`INSERT INTO %s (scope, token, updated_at) VALUES (%s, %s, %s)
ON CONFLICT (scope) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
			table, ph(1), ph(2), ph(3)),
		delete: fmt.Sprintf(`DELETE FROM %s WHERE scope = %s`, table, ph(1)),
	}, nil
}
