package mysqlr

import (
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
)

// colKind classifies how a scanned value is handed back to the caller.
type colKind uint8

const (
	ckRaw  colKind = iota // value as returned by the driver
	ckText                // []byte converted to string
)

// textTypes are the database type names whose []byte values are returned as
// strings. BLOB/BINARY columns stay []byte.
var textTypes = map[string]struct{}{
	"CHAR": {}, "VARCHAR": {}, "TEXT": {}, "TINYTEXT": {}, "MEDIUMTEXT": {}, "LONGTEXT": {},
	"ENUM": {}, "SET": {}, "JSON": {}, "DECIMAL": {},
}

// columnKinds inspects the result columns once per result set.
func columnKinds(rows *sql.Rows) ([]string, []colKind, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	kinds := make([]colKind, len(cols))
	types, err := rows.ColumnTypes()
	if err != nil {
		return cols, kinds, nil
	}
	for i, ct := range types {
		if _, ok := textTypes[strings.ToUpper(ct.DatabaseTypeName())]; ok {
			kinds[i] = ckText
		}
	}
	return cols, kinds, nil
}

// convert applies the column kind to a scanned value.
func (k colKind) convert(v any) any {
	if k == ckText {
		if b, ok := v.([]byte); ok {
			return string(b)
		}
	}
	return v
}

// scanRow scans the current row into a Row.
func scanRow(rows *sql.Rows, kinds []colKind) (Row, error) {
	row := make(Row, len(kinds))
	targets := make([]any, len(kinds))
	for i := range row {
		targets[i] = &row[i]
	}
	if err := rows.Scan(targets...); err != nil {
		return nil, err
	}
	for i, k := range kinds {
		row[i] = k.convert(row[i])
	}
	return row, nil
}

// scanRows scans every remaining row.
func scanRows(rows *sql.Rows) ([]Row, error) {
	_, kinds, err := columnKinds(rows)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, 16)
	for rows.Next() {
		row, err := scanRow(rows, kinds)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// scanRecords scans every remaining row into a Record keyed by column name.
func scanRecords(rows *sql.Rows) ([]Record, error) {
	cols, kinds, err := columnKinds(rows)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, 16)
	for rows.Next() {
		rec := make(Record, len(cols))
		if err := sqlx.MapScan(rows, rec); err != nil {
			return nil, err
		}
		for i, c := range cols {
			rec[c] = kinds[i].convert(rec[c])
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
