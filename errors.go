package mysqlr

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQL error numbers treated as transient.
const (
	ErLockWaitTimeout    uint16 = 1205 // ER_LOCK_WAIT_TIMEOUT
	CrServerLost         uint16 = 2013 // CR_SERVER_LOST
	CrServerLostExtended uint16 = 2055 // CR_SERVER_LOST_EXTENDED
)

var transientNumbers = []uint16{ErLockWaitTimeout, CrServerLost, CrServerLostExtended}

// StatementError carries the statement that failed. The driver error is kept
// as is, so errors.As still reaches *mysql.MySQLError.
type StatementError struct {
	Statement string
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("%v (statement %s)", e.Err, e.Statement)
}

func (e *StatementError) Unwrap() error { return e.Err }

// Warning is one row of "show warnings".
type Warning struct {
	Level   string
	Code    uint16
	Message string
}

// WarningsError is returned when RaiseOnWarnings is set and a statement
// produced warnings.
type WarningsError struct {
	Statement string
	Warnings  []Warning
}

func (e *WarningsError) Error() string {
	parts := make([]string, len(e.Warnings))
	for i, w := range e.Warnings {
		parts[i] = fmt.Sprintf("%s %d: %s", w.Level, w.Code, w.Message)
	}
	return fmt.Sprintf("mysqlr: %d warning(s): %s (statement %s)", len(e.Warnings), strings.Join(parts, "; "), e.Statement)
}

// IsTransient reports whether err is expected to go away on retry: lost
// connections and lock wait timeouts. Anything else, including bad
// credentials and syntax errors, is permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		for _, n := range transientNumbers {
			if me.Number == n {
				return true
			}
		}
	}
	return false
}

// isDatabaseError reports whether err came from the server or the driver.
func isDatabaseError(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) || errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, driver.ErrBadConn)
}

// errorCode returns the MySQL error number of err as a string, or "" if err
// does not carry one.
func errorCode(err error) string {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return fmt.Sprint(me.Number)
	}
	return ""
}
