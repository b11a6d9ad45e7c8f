package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// flavor renders placeholders as $n for lib/pq
var flavor = sqlbuilder.PostgreSQL

// MaxParams is the Postgres limit on bind parameters per statement
const MaxParams = 65535

type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{InsertBuilder: flavor.NewInsertBuilder()}
}

// Into names the table and columns in one call
func (b *InsertBuilder) Into(table string, cols ...string) *InsertBuilder {
	b.InsertInto(table).Cols(cols...)
	return b
}

// Rows appends one VALUES tuple per row
func (b *InsertBuilder) Rows(rows [][]any) *InsertBuilder {
	for _, row := range rows {
		b.Values(row...)
	}
	return b
}

// OnConflictDoNothing skips rows that violate a unique constraint
func (b *InsertBuilder) OnConflictDoNothing(columns ...string) *InsertBuilder {
	target := ""
	if len(columns) > 0 {
		target = fmt.Sprintf(" (%s)", strings.Join(columns, ", "))
	}
	b.SQL("ON CONFLICT" + target + " DO NOTHING")
	return b
}

// BatchSize returns how many rows of width cols fit in one statement, capped
// at limit
func BatchSize(cols, limit int) int {
	if cols <= 0 {
		return limit
	}
	return min(MaxParams/cols, limit)
}

type UpdateBuilder struct{ *sqlbuilder.UpdateBuilder }

func NewUpdateBuilder() *UpdateBuilder { return &UpdateBuilder{flavor.NewUpdateBuilder()} }

type DeleteBuilder struct{ *sqlbuilder.DeleteBuilder }

func NewDeleteBuilder() *DeleteBuilder { return &DeleteBuilder{flavor.NewDeleteBuilder()} }

type SelectBuilder struct{ *sqlbuilder.SelectBuilder }

func NewSelectBuilder() *SelectBuilder { return &SelectBuilder{flavor.NewSelectBuilder()} }

// Struct maps a db-tagged model to its column list
type Struct struct{ *sqlbuilder.Struct }

func NewStruct(v any) *Struct {
	return &Struct{sqlbuilder.NewStruct(v).For(flavor)}
}

func (s *Struct) SelectFrom(table string) *SelectBuilder {
	return &SelectBuilder{s.Struct.SelectFrom(table)}
}
