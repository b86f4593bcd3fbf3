package mysqlr

import (
	"fmt"
	"strings"
)

// valuesStmt is an "insert ... values (...)" statement split around its single
// values tuple, so the tuple can be repeated once per row.
type valuesStmt struct {
	prefix string // up to and including the "values" keyword and spacing
	tuple  string // "(?,?,?)"
	suffix string // e.g. " as vals on duplicate key update ..."
	params int    // placeholders inside tuple
}

// splitValues locates the values tuple of an insert/replace statement. It
// walks the SQL with the same state machine the placeholder scanner uses, so
// string literals, quoted identifiers and comments are never mistaken for
// keywords or parentheses.
//
// It reports false when the statement is not a plain single-tuple insert, or
// when placeholders appear outside the tuple (their arguments could not be
// repeated per row).
func splitValues(q string) (valuesStmt, bool) {
	const (
		sText = iota
		sSQ   // '...'
		sDQ   // "..."
		sBT   // `...`
		sLC   // line comment -- or #
		sBC   // block comment /* ... */
	)
	state := sText

	var (
		vs         valuesStmt
		first      string // first keyword
		tupleStart = -1
		tupleEnd   = -1
		depth      int
		outside    int // placeholders outside the tuple
	)

	for i := 0; i < len(q); {
		c := q[i]

		switch state {
		case sText:
			if c == '-' && i+1 < len(q) && q[i+1] == '-' {
				state = sLC
				i += 2
				continue
			}
			if c == '#' {
				state = sLC
				i++
				continue
			}
			if c == '/' && i+1 < len(q) && q[i+1] == '*' {
				state = sBC
				i += 2
				continue
			}
			switch c {
			case '\'':
				state = sSQ
				i++
				continue
			case '"':
				state = sDQ
				i++
				continue
			case '`':
				state = sBT
				i++
				continue
			case '?':
				if tupleStart >= 0 && tupleEnd < 0 {
					vs.params++
				} else {
					outside++
				}
				i++
				continue
			case '(':
				depth++
				i++
				continue
			case ')':
				depth--
				if depth == 0 && tupleStart >= 0 && tupleEnd < 0 {
					tupleEnd = i + 1
				}
				i++
				continue
			}

			if isAlphaUnderscore(c) && (i == 0 || !isAlphaNumUnderscore(q[i-1])) {
				k := i + 1
				for k < len(q) && isAlphaNumUnderscore(q[k]) {
					k++
				}
				word := strings.ToLower(q[i:k])
				if first == "" {
					first = word
					if first != "insert" && first != "replace" {
						return valuesStmt{}, false
					}
				}
				if (word == "values" || word == "value") && depth == 0 && tupleStart < 0 {
					j := k
					for j < len(q) && isSpace(q[j]) {
						j++
					}
					if j >= len(q) || q[j] != '(' {
						return valuesStmt{}, false
					}
					tupleStart = j
					depth++
					i = j + 1
					continue
				}
				i = k
				continue
			}
			i++

		case sSQ, sDQ, sBT:
			quote := byte('\'')
			if state == sDQ {
				quote = '"'
			} else if state == sBT {
				quote = '`'
			}
			if c == '\\' && state != sBT && i+1 < len(q) {
				i += 2
				continue
			}
			if c == quote {
				// doubled quote is an escaped quote
				if i+1 < len(q) && q[i+1] == quote {
					i += 2
					continue
				}
				state = sText
			}
			i++

		case sLC:
			if c == '\n' {
				state = sText
			}
			i++

		case sBC:
			if c == '*' && i+1 < len(q) && q[i+1] == '/' {
				state = sText
				i += 2
				continue
			}
			i++
		}
	}

	if tupleStart < 0 || tupleEnd < 0 || outside > 0 || vs.params == 0 {
		return valuesStmt{}, false
	}
	rest := strings.TrimLeft(q[tupleEnd:], " \t\r\n")
	if strings.HasPrefix(rest, ",") {
		// already a multi-row insert
		return valuesStmt{}, false
	}

	vs.prefix = q[:tupleStart]
	vs.tuple = q[tupleStart:tupleEnd]
	vs.suffix = q[tupleEnd:]
	return vs, true
}

// expand renders the statement with the tuple repeated n times.
func (vs valuesStmt) expand(n int) string {
	var b strings.Builder
	b.Grow(len(vs.prefix) + n*(len(vs.tuple)+1) + len(vs.suffix))
	b.WriteString(vs.prefix)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(vs.tuple)
	}
	b.WriteString(vs.suffix)
	return b.String()
}

// rowsPerBatch returns how many rows fit into one statement under maxParams.
func (vs valuesStmt) rowsPerBatch(maxParams int) (int, error) {
	if maxParams < 0 {
		return -1, nil
	}
	if vs.params > maxParams {
		return 0, fmt.Errorf("%w: requested=%d, limit=%d", ErrTooManyParams, vs.params, maxParams)
	}
	return maxParams / vs.params, nil
}

// flatten appends the values of rows into a single argument slice, checking
// that every row matches the tuple's arity.
func (vs valuesStmt) flatten(rows []Row, offset int) ([]any, error) {
	args := make([]any, 0, len(rows)*vs.params)
	for i, r := range rows {
		if len(r) != vs.params {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrRowArity, offset+i, len(r), vs.params)
		}
		args = append(args, r...)
	}
	return args, nil
}

// isAlphaUnderscore reports whether b is [A-Za-z_] .
func isAlphaUnderscore(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '_'
}

// isAlphaNumUnderscore reports whether b is [A-Za-z0-9_] .
func isAlphaNumUnderscore(b byte) bool {
	return isAlphaUnderscore(b) || (b >= '0' && b <= '9')
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
