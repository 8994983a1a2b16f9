package sqlitepool

import (
	"fmt"
	"strings"

	sqlite3 "github.com/weka-io/d2sqlite3"
)

// CopyAll copies the contents of one database to another.
//
// Traditionally this is done in sqlite by closing the database and copying
// the file. However it can be useful to do it online: a single exclusive
// transaction can cross multiple databases, and if multiple processes are
// using a file, this lets one replace the database without first
// communicating with the other processes, asking them to close the DB first.
//
// The dstSchemaName and srcSchemaName parameters follow the SQLite PRAGMA
// schema-name conventions: https://sqlite.org/pragma.html#syntax
func CopyAll(db *sqlite3.Database, dstSchemaName, srcSchemaName string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("sqlitepool.CopyAll: %w", err)
		}
	}()
	if dstSchemaName == "" {
		dstSchemaName = "main"
	}
	if srcSchemaName == "" {
		srcSchemaName = "main"
	}
	if dstSchemaName == srcSchemaName {
		return fmt.Errorf("source matches destination: %q", srcSchemaName)
	}
	// Filter on sql to avoid auto indexes.
	// See https://www.sqlite.org/schematab.html for sqlite_schema docs.
	stmt, err := db.Prepare(fmt.Sprintf("SELECT name, type, sql FROM %q.sqlite_schema WHERE sql != ''", srcSchemaName))
	if err != nil {
		return err
	}
	defer stmt.Finalize()
	rr, err := stmt.Execute()
	if err != nil {
		return err
	}
	type schemaEntry struct {
		name, sqlType, sqlText string
	}
	var entries []schemaEntry
	for !rr.Empty() {
		row, err := rr.Row()
		if err != nil {
			return err
		}
		var e schemaEntry
		if e.name, err = row.Text(0); err != nil {
			return err
		}
		if e.sqlType, err = row.Text(1); err != nil {
			return err
		}
		if e.sqlText, err = row.Text(2); err != nil {
			return err
		}
		entries = append(entries, e)
		if err := rr.Advance(); err != nil {
			return err
		}
	}
	for _, e := range entries {
		// Regardless of the case or whitespace used in the original
		// create statement (or whether or not "if not exists" is used),
		// the SQL text in the sqlite_schema table always reads:
		// 	"CREATE (TABLE|VIEW|INDEX|TRIGGER) name".
		// We take advantage of that here to rewrite the create
		// statement for a different schema.
		switch e.sqlType {
		case "index":
			sqlText := strings.TrimPrefix(e.sqlText, "CREATE INDEX ")
			if err := db.Execute(fmt.Sprintf("CREATE INDEX %q.%s", dstSchemaName, sqlText)); err != nil {
				return err
			}
		case "table":
			sqlText := strings.TrimPrefix(e.sqlText, "CREATE TABLE ")
			if err := db.Execute(fmt.Sprintf("CREATE TABLE %q.%s", dstSchemaName, sqlText)); err != nil {
				return err
			}
			if err := db.Execute(fmt.Sprintf("INSERT INTO %q.%q SELECT * FROM %q.%q;", dstSchemaName, e.name, srcSchemaName, e.name)); err != nil {
				return err
			}
		case "trigger":
			sqlText := strings.TrimPrefix(e.sqlText, "CREATE TRIGGER ")
			if err := db.Execute(fmt.Sprintf("CREATE TRIGGER %q.%s", dstSchemaName, sqlText)); err != nil {
				return err
			}
		case "view":
			sqlText := strings.TrimPrefix(e.sqlText, "CREATE VIEW ")
			if err := db.Execute(fmt.Sprintf("CREATE VIEW %q.%s", dstSchemaName, sqlText)); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown sqlite schema type %q for %q", e.sqlType, e.name)
		}
	}
	return nil
}
