// Package sink defines the store the pipeline loads raw and derived tables into. Every load is a
// full replace: the table's previous contents are discarded and the batch becomes its contents.
package sink

import (
	"context"
	"errors"
	"fmt"
)

var ErrUnknownTable = errors.New("unknown table")

type Sink interface {
	// Ensure creates missing tables. Existing tables are left untouched.
	Ensure(ctx context.Context, tables []Table) error
	// Replace swaps the contents of table for batch and returns the rows written.
	Replace(ctx context.Context, table Table, batch Batch) (int, error)
	Close() error
}

type ColumnType string

const (
	TypeString    ColumnType = "string"
	TypeInt64     ColumnType = "int64"
	TypeFloat64   ColumnType = "float64"
	TypeBool      ColumnType = "bool"
	TypeTimestamp ColumnType = "timestamp"
	TypeDate      ColumnType = "date"
	TypeJSON      ColumnType = "json"
)

type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Table describes one destination table. Partition names the time column stores may partition
// by month; Cluster lists the columns rows are commonly filtered on.
type Table struct {
	Name      string
	Columns   []Column
	Key       []string
	Partition string
	Cluster   []string
	// Model is a pointer to the row type, for stores that derive their schema from it.
	Model any
}

// SortKey is Cluster followed by the Key columns not already in it.
func (t Table) SortKey() []string {
	out := append([]string{}, t.Cluster...)
	seen := map[string]bool{}
	for _, c := range out {
		seen[c] = true
	}
	for _, k := range t.Key {
		if !seen[k] {
			out = append(out, k)
		}
	}
	return out
}

// ColumnNames lists the table's columns in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Batch is the set of rows one Replace writes. Rows keeps the typed slice for stores that insert
// slices; Items holds a pointer per row for stores that append row by row.
type Batch struct {
	rows  any
	items []any
}

func NewBatch[R any](rows []R) Batch {
	items := make([]any, len(rows))
	for i := range rows {
		items[i] = &rows[i]
	}
	return Batch{rows: rows, items: items}
}

func (b Batch) Len() int { return len(b.items) }

func (b Batch) Rows() any { return b.rows }

func (b Batch) Items() []any { return b.items }

// Lookup returns the table registered under name.
func Lookup(name string) (Table, error) {
	for _, t := range Tables() {
		if t.Name == name {
			return t, nil
		}
	}
	return Table{}, fmt.Errorf("%w: %s", ErrUnknownTable, name)
}
