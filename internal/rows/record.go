// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package rows

import (
	"database/sql"
	"fmt"
	"strings"
)

// Record is one row. Columns and Values are parallel slices.
type Record struct {
	Columns []string
	Values  []Value
}

// Get returns the value of column, matched case-insensitively.
func (r Record) Get(column string) (Value, bool) {
	for i, c := range r.Columns {
		if strings.EqualFold(c, column) {
			return r.Values[i], true
		}
	}
	return Value{}, false
}

// Without returns a copy of r lacking column.
func (r Record) Without(column string) Record {
	out := Record{
		Columns: make([]string, 0, len(r.Columns)),
		Values:  make([]Value, 0, len(r.Values)),
	}
	for i, c := range r.Columns {
		if strings.EqualFold(c, column) {
			continue
		}
		out.Columns = append(out.Columns, c)
		out.Values = append(out.Values, r.Values[i])
	}
	return out
}

// Args returns the values as database/sql arguments.
func (r Record) Args() []any {
	args := make([]any, len(r.Values))
	for i, v := range r.Values {
		args[i] = v.Any()
	}
	return args
}

func (r Record) String() string {
	parts := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		parts[i] = c + "=" + r.Values[i].String()
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// scanRecords drains rs into records.
func scanRecords(rs *sql.Rows) ([]Record, error) {
	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rs.ColumnTypes()
	if err != nil {
		return nil, err
	}
	var out []Record
	for rs.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec := Record{Columns: cols, Values: make([]Value, len(cols))}
		for i, x := range raw {
			rec.Values[i] = fromDriver(x, types[i].DatabaseTypeName())
		}
		out = append(out, rec)
	}
	return out, rs.Err()
}
