package database

import (
	"fmt"
	"strings"
)

// Dialect captures the SQL differences between the supported drivers.
type Dialect int

const (
	MySQL Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "mysql"
}

func (d Dialect) gooseName() string {
	if d == SQLite {
		return "sqlite3"
	}
	return "mysql"
}

// Upsert builds an INSERT that overwrites only updateCols when a row with
// the same key already exists. Columns outside updateCols keep their stored
// values, which gives merge (not replace) semantics.
func (d Dialect) Upsert(table string, keyCols, insertCols, updateCols []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(insertCols)), ", ")

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(insertCols, ", "), placeholders)

	sets := make([]string, 0, len(updateCols))
	switch d {
	case SQLite:
		for _, c := range updateCols {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
		if len(sets) == 0 {
			fmt.Fprintf(&b, " ON CONFLICT(%s) DO NOTHING", strings.Join(keyCols, ", "))
		} else {
			fmt.Fprintf(&b, " ON CONFLICT(%s) DO UPDATE SET %s", strings.Join(keyCols, ", "), strings.Join(sets, ", "))
		}
	default:
		for _, c := range updateCols {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
		}
		if len(sets) == 0 {
			// MySQL has no DO NOTHING; a self-assignment keeps the row unchanged.
			sets = append(sets, fmt.Sprintf("%s = %s", keyCols[0], keyCols[0]))
		}
		fmt.Fprintf(&b, " ON DUPLICATE KEY UPDATE %s", strings.Join(sets, ", "))
	}
	return b.String()
}
