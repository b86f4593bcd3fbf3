package mysqlr

import (
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// rowAlias is the name given to the inserted row (or derived table) so the
// update clause can refer to the incoming values.
const rowAlias = "vals"

// defaultPlaceholder is the positional placeholder token used when a Builder
// does not set one.
const defaultPlaceholder = "%s"

// Builder renders upsert statements. It performs no I/O.
//
// The zero Builder uses AliasSyntax and "%s" placeholders. A Handler uses a
// Builder with "?" placeholders and the syntax detected for its server.
type Builder struct {
	Syntax      Syntax
	Placeholder string
	Logger      *zap.Logger
}

// ColumnPair maps a source column expression (e.g. "s2*2") to a destination
// column name.
type ColumnPair struct {
	From string
	Into string
}

// BuildUpsert renders an "insert ... on duplicate key update" statement with
// the zero Builder.
func BuildUpsert(table string, cols, keys []string, onDup string) string {
	return Builder{}.BuildUpsert(table, cols, keys, onDup)
}

// BuildOnDuplicateClause renders "c1=vals.c1,c2=vals.c2" with the zero Builder.
func BuildOnDuplicateClause(cols []string) string {
	return Builder{}.BuildOnDuplicateClause(cols)
}

// BuildInsertSelectUpsert renders an insert-select upsert with the zero Builder.
func BuildInsertSelectUpsert(tableFrom, tableInto string, colmap []ColumnPair, keys []string) string {
	return Builder{}.BuildInsertSelectUpsert(tableFrom, tableInto, colmap, keys)
}

// BuildUpsert renders
//
//	insert into {table} ({cols}) values ({placeholders}) as vals on duplicate key update {onDup}
//
// Columns listed in keys are left out of the update clause. A non-empty onDup
// is used verbatim instead of the generated clause.
//
// If every column is a key the update clause is empty and the statement is not
// valid SQL. Callers must pass at least one non-key column or an onDup clause.
func (b Builder) BuildUpsert(table string, cols, keys []string, onDup string) string {
	colsOnDup := make([]string, 0, len(cols))
	for _, c := range cols {
		if !slices.Contains(keys, c) {
			colsOnDup = append(colsOnDup, c)
		}
	}
	if onDup == "" {
		onDup = b.BuildOnDuplicateClause(colsOnDup)
	}

	var sb strings.Builder
	sb.Grow(64 + len(table) + 8*len(cols) + len(onDup))
	sb.WriteString("insert into ")
	sb.WriteString(table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(cols, ","))
	sb.WriteString(") values (")
	b.writePlaceholders(&sb, len(cols))
	sb.WriteString(")")
	if b.Syntax == AliasSyntax {
		sb.WriteString(" as " + rowAlias)
	}
	sb.WriteString(" on duplicate key update ")
	sb.WriteString(onDup)

	statement := sb.String()
	b.debug("built upsert statement", zap.String("table", table), zap.String("statement", statement))
	return statement
}

// BuildOnDuplicateClause renders the assignment list of an update clause, one
// "col=vals.col" (or "col=VALUES(col)") per name. Empty input yields "".
func (b Builder) BuildOnDuplicateClause(cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		if b.Syntax == ValuesSyntax {
			parts[i] = c + "=VALUES(" + c + ")"
		} else {
			parts[i] = c + "=" + rowAlias + "." + c
		}
	}
	clause := strings.Join(parts, ",")
	b.debug("built on duplicate clause", zap.Strings("cols", cols), zap.String("clause", clause))
	return clause
}

// BuildInsertSelectUpsert renders
//
//	insert into {into} ({dest}) select * from (select {src} from {from}) as vals({aliases}) on duplicate key update {onDup}
//
// The i-th pair of colmap gets the alias "alias{i}". The destination column
// list and the select list share the same positional order, which is what
// makes the outer "select *" line up with the insert columns.
func (b Builder) BuildInsertSelectUpsert(tableFrom, tableInto string, colmap []ColumnPair, keys []string) string {
	into := make([]string, len(colmap))
	from := make([]string, len(colmap))
	aliases := make([]string, len(colmap))
	onDup := make([]string, 0, len(colmap))
	for i, p := range colmap {
		into[i] = p.Into
		from[i] = p.From
		aliases[i] = "alias" + strconv.Itoa(i)
		if !slices.Contains(keys, p.Into) {
			onDup = append(onDup, p.Into+"="+rowAlias+"."+aliases[i])
		}
	}

	statement := "insert into " + tableInto + " (" + strings.Join(into, ",") + ") select * from " +
		"(select " + strings.Join(from, ",") + " from " + tableFrom + ") as " + rowAlias +
		"(" + strings.Join(aliases, ",") + ") " +
		"on duplicate key update " + strings.Join(onDup, ",")
	b.debug("built insert-select statement",
		zap.String("table_from", tableFrom),
		zap.String("table_into", tableInto),
		zap.String("statement", statement))
	return statement
}

// writePlaceholders emits n comma-separated placeholder tokens.
func (b Builder) writePlaceholders(sb *strings.Builder, n int) {
	ph := b.Placeholder
	if ph == "" {
		ph = defaultPlaceholder
	}
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(ph)
	}
}

func (b Builder) debug(msg string, fields ...zap.Field) {
	if b.Logger != nil {
		b.Logger.Debug(msg, fields...)
	}
}
