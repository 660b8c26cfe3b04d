package db

import "fmt"

// ColumnInfo describes one column of a table, as reported by SQLite.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableInfo describes one table: its columns and row count.
type TableInfo struct {
	Name     string       `json:"name"`
	Columns  []ColumnInfo `json:"columns"`
	RowCount int          `json:"row_count"`
}

// Tables lists the user tables in the database, in sqlite_master order,
// skipping SQLite's own bookkeeping tables.
func (db *DB) Tables() ([]string, error) {
	rows, err := db.Query(`
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return names, nil
}

// Inspect returns structure and row counts for every user table. This is a
// read-only survey of whatever schema the file carries; it works on both
// canonical working databases and published legacy snapshots.
func (db *DB) Inspect() ([]TableInfo, error) {
	names, err := db.Tables()
	if err != nil {
		return nil, err
	}

	var tables []TableInfo
	for _, name := range names {
		info := TableInfo{Name: name}

		cols, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%q)`, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read columns of %s: %w", name, err)
		}
		for cols.Next() {
			var (
				cid       int
				col       ColumnInfo
				notNull   int
				dfltValue interface{}
				pk        int
			)
			if err := cols.Scan(&cid, &col.Name, &col.Type, &notNull, &dfltValue, &pk); err != nil {
				cols.Close()
				return nil, fmt.Errorf("failed to scan column of %s: %w", name, err)
			}
			info.Columns = append(info.Columns, col)
		}
		if err := cols.Err(); err != nil {
			cols.Close()
			return nil, fmt.Errorf("error iterating columns of %s: %w", name, err)
		}
		cols.Close()

		if err := db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %q`, name)).Scan(&info.RowCount); err != nil {
			return nil, fmt.Errorf("failed to count rows of %s: %w", name, err)
		}

		tables = append(tables, info)
	}
	return tables, nil
}
