package metrics

import "github.com/sqreamdb/monitor-service/internal/database"

// Field is one named value of a normalized record.
type Field struct {
	Name  string
	Value any
}

// Record is one result row as an ordered column name to value mapping.
// Order follows the column order of the query result.
type Record []Field

// Get returns the value of the named field.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Normalize converts one raw query result into records, preserving column
// order. Values pass through unchanged, nulls included. Each row normalizes
// independently, so rows with differing column sets are fine; a row with
// fewer values than columns (or vice versa) keeps the pairs that exist.
func Normalize(result database.QueryResult) []Record {
	if len(result.Rows) == 0 {
		return nil
	}

	records := make([]Record, 0, len(result.Rows))
	for _, row := range result.Rows {
		n := len(row.Columns)
		if len(row.Values) < n {
			n = len(row.Values)
		}
		record := make(Record, 0, n)
		for i := 0; i < n; i++ {
			record = append(record, Field{Name: row.Columns[i], Value: row.Values[i]})
		}
		records = append(records, record)
	}
	return records
}
