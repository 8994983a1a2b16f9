// Copyright (c) 2024 The d2sqlite3 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlite3

import "fmt"

// DropAll deletes every index, trigger, view and table in a schema.
//
// The schemaName parameter follows the SQLite PRAGMA schema-name
// conventions: https://sqlite.org/pragma.html#syntax
func (db *Database) DropAll(schemaName string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("sqlite3.DropAll: %w", err)
		}
	}()

	if schemaName == "" {
		schemaName = "main"
	}

	var indexes, tables, triggers, views []string

	// Filter on sql to skip auto indexes and internal tables.
	// See https://www.sqlite.org/schematab.html for sqlite_schema docs.
	stmt, err := db.Prepare(fmt.Sprintf("SELECT name, type FROM %q.sqlite_schema WHERE sql != ''", schemaName))
	if err != nil {
		return err
	}
	defer stmt.Finalize()
	rr, err := stmt.Execute()
	if err != nil {
		return err
	}
	for !rr.Empty() {
		row, err := rr.Row()
		if err != nil {
			return err
		}
		name, err := row.Text(0)
		if err != nil {
			return err
		}
		sqlType, err := row.Text(1)
		if err != nil {
			return err
		}
		switch sqlType {
		case "index":
			indexes = append(indexes, name)
		case "table":
			tables = append(tables, name)
		case "trigger":
			triggers = append(triggers, name)
		case "view":
			views = append(views, name)
		default:
			return fmt.Errorf("unknown sqlite schema type %q for %q", sqlType, name)
		}
		if err := rr.Advance(); err != nil {
			return err
		}
	}

	// Indexes and triggers drop before the tables they hang off.
	for _, name := range indexes {
		if err := db.Execute(fmt.Sprintf("DROP INDEX %q.%q", schemaName, name)); err != nil {
			return err
		}
	}
	for _, name := range triggers {
		if err := db.Execute(fmt.Sprintf("DROP TRIGGER %q.%q", schemaName, name)); err != nil {
			return err
		}
	}
	for _, name := range views {
		if err := db.Execute(fmt.Sprintf("DROP VIEW %q.%q", schemaName, name)); err != nil {
			return err
		}
	}
	for _, name := range tables {
		if err := db.Execute(fmt.Sprintf("DROP TABLE %q.%q", schemaName, name)); err != nil {
			return err
		}
	}
	return nil
}
