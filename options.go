package mysqlr

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap/zapcore"
)

// Redacted replaces the password wherever options are logged or printed.
const Redacted = "REDACTED"

// Options are the connection options used by Open. They are read once when
// the connection is established.
type Options struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	Autocommit      bool
	TimeZone        string // session time_zone, e.g. "UTC" or "+00:00"
	RaiseOnWarnings bool   // turn server warnings into *WarningsError
}

// Override carries optional replacements for a subset of Options. Empty
// fields are left alone by Merge.
type Override struct {
	Database string
	Host     string
	User     string
	Password string
}

// DefaultOptions returns autocommit, UTC sessions and warnings raised as
// errors against localhost:3306.
func DefaultOptions() Options {
	return Options{
		Host:            "localhost",
		Port:            3306,
		Autocommit:      true,
		TimeZone:        "UTC",
		RaiseOnWarnings: true,
	}
}

// Merge returns a copy of o with every non-empty field of ov applied.
func Merge(o Options, ov Override) Options {
	if ov.Database != "" {
		o.Database = ov.Database
	}
	if ov.Host != "" {
		o.Host = ov.Host
	}
	if ov.Password != "" {
		o.Password = ov.Password
	}
	if ov.User != "" {
		o.User = ov.User
	}
	return o
}

// Redacted returns a copy of o with the password replaced.
func (o Options) Redacted() Options {
	o.Password = Redacted
	return o
}

// String renders the options with the password redacted.
func (o Options) String() string {
	type plain Options
	return fmt.Sprintf("%+v", plain(o.Redacted()))
}

// MarshalLogObject implements zapcore.ObjectMarshaler. The password is never
// written.
func (o Options) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("host", o.Host)
	enc.AddInt("port", o.Port)
	enc.AddString("database", o.Database)
	enc.AddString("user", o.User)
	enc.AddString("password", Redacted)
	enc.AddBool("autocommit", o.Autocommit)
	enc.AddString("time_zone", o.TimeZone)
	enc.AddBool("raise_on_warnings", o.RaiseOnWarnings)
	return nil
}

// mysqlConfig translates the options into a driver configuration.
// Multi-statement scripts are always enabled; ExecuteMulti and Truncate
// depend on them.
func (o Options) mysqlConfig() *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = o.User
	cfg.Passwd = o.Password
	cfg.Net = "tcp"
	port := o.Port
	if port == 0 {
		port = 3306
	}
	cfg.Addr = net.JoinHostPort(o.Host, strconv.Itoa(port))
	cfg.DBName = o.Database
	cfg.MultiStatements = true
	cfg.ParseTime = true

	cfg.Params = map[string]string{"autocommit": "0"}
	if o.Autocommit {
		cfg.Params["autocommit"] = "1"
	}
	if o.TimeZone != "" {
		cfg.Params["time_zone"] = "'" + o.TimeZone + "'"
		if loc, err := time.LoadLocation(o.TimeZone); err == nil {
			cfg.Loc = loc
		}
	}
	return cfg
}
