package mysqlr

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"lock wait timeout", &mysql.MySQLError{Number: 1205}, true},
		{"server lost", &mysql.MySQLError{Number: 2013}, true},
		{"server lost extended", &mysql.MySQLError{Number: 2055}, true},
		{"invalid connection", mysql.ErrInvalidConn, true},
		{"bad connection", driver.ErrBadConn, true},
		{"wrapped in statement error", &StatementError{Statement: "x", Err: &mysql.MySQLError{Number: 1205}}, true},
		{"wrapped with fmt", fmt.Errorf("op: %w", mysql.ErrInvalidConn), true},
		{"access denied", &mysql.MySQLError{Number: 1045}, false},
		{"syntax error", &mysql.MySQLError{Number: 1064}, false},
		{"deadlock", &mysql.MySQLError{Number: 1213}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Fatalf("IsTransient(%v)=%v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStatementError(t *testing.T) {
	me := &mysql.MySQLError{Number: 1146, Message: "Table 'db.nope' doesn't exist"}
	err := error(&StatementError{Statement: "select * from nope", Err: me})

	var got *mysql.MySQLError
	if !errors.As(err, &got) || got.Number != 1146 {
		t.Fatalf("errors.As did not reach the driver error: %v", err)
	}
	if !strings.Contains(err.Error(), "select * from nope") || !strings.Contains(err.Error(), "1146") {
		t.Fatalf("Error()=%q should name the statement and the code", err.Error())
	}
}

func TestWarningsError(t *testing.T) {
	err := &WarningsError{
		Statement: "insert ignore into t values (1)",
		Warnings: []Warning{
			{Level: "Warning", Code: 1062, Message: "Duplicate entry '1' for key 'PRIMARY'"},
		},
	}
	want := "mysqlr: 1 warning(s): Warning 1062: Duplicate entry '1' for key 'PRIMARY' (statement insert ignore into t values (1))"
	if err.Error() != want {
		t.Fatalf("Error()\n got=%q\nwant=%q", err.Error(), want)
	}
}

func TestErrorCode(t *testing.T) {
	if got := errorCode(&StatementError{Err: &mysql.MySQLError{Number: 1205}}); got != "1205" {
		t.Fatalf("errorCode=%q, want 1205", got)
	}
	if got := errorCode(mysql.ErrInvalidConn); got != "" {
		t.Fatalf("errorCode=%q, want empty", got)
	}
}

func TestIsDatabaseError(t *testing.T) {
	if !isDatabaseError(&mysql.MySQLError{Number: 1045}) {
		t.Fatal("MySQLError should be a database error")
	}
	if !isDatabaseError(fmt.Errorf("x: %w", driver.ErrBadConn)) {
		t.Fatal("ErrBadConn should be a database error")
	}
	if isDatabaseError(errors.New("usage")) {
		t.Fatal("plain error should not be a database error")
	}
}
