// Package config builds the mysqlr command configuration from command-line
// flags with environment-variable fallbacks.
//
// Typical usage:
//
//	cfg, err := config.Load() // reads os.Args and os.Environ
//
// For tests, prefer LoadFromArgs to keep them hermetic:
//
//	fs := flag.NewFlagSet("test", flag.ContinueOnError)
//	getenv := func(k string) string { return testEnv[k] }
//	cfg, err := config.LoadFromArgs(fs, getenv, []string{"-host=db"})
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/gandaldf/mysqlr"
)

// Config holds all process configuration derived from flags and environment
// variables.
type Config struct {
	// Connection overrides. Empty values keep mysqlr.DefaultOptions.
	Host     string
	Database string
	User     string
	Password string

	// Session options.
	Port            int
	TimeZone        string
	Autocommit      bool
	RaiseOnWarnings bool

	// Execution tunables.
	MaxParams        int
	RetryBase        float64
	RetryAttempts    int
	ForeignKeyChecks bool // truncate with foreign key checks on

	// Observability.
	Debug       bool   // development logger at debug level
	Metrics     string // "none", "prom" or "datadog"
	PushGateway string // Pushgateway URL for -metrics=prom
	DogStatsD   string // DogStatsD address for -metrics=datadog

	// Args are the positional arguments left after flag parsing.
	Args []string
}

// LoadFromArgs defines flags on fs, seeds each default from getenv and parses
// args.
//
// Precedence:
//  1. Environment values seed each flag's default.
//  2. Explicit CLI flags (in args) override the seeded defaults.
func LoadFromArgs(fs *flag.FlagSet, getenv func(string) string, args []string) (*Config, error) {
	cfg := &Config{}
	def := mysqlr.DefaultOptions()

	envOrDefaultFn := func(k, d string) string {
		if v := getenv(k); v != "" {
			return v
		}
		return d
	}
	intEnvOrDefaultFn := func(k string, d int) int {
		if v := getenv(k); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				return i
			}
		}
		return d
	}
	floatEnvOrDefaultFn := func(k string, d float64) float64 {
		if v := getenv(k); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
		return d
	}
	boolEnvOrDefaultFn := func(k string, d bool) bool {
		if v := strings.ToLower(getenv(k)); v != "" {
			switch v {
			case "1", "true", "yes", "on":
				return true
			case "0", "false", "no", "off":
				return false
			}
		}
		return d
	}

	// Connection
	fs.StringVar(&cfg.Host, "host", getenv("MYSQL_HOST"), "MySQL host (default "+def.Host+")")
	fs.StringVar(&cfg.Database, "database", getenv("MYSQL_DATABASE"), "MySQL database")
	fs.StringVar(&cfg.User, "user", getenv("MYSQL_USER"), "MySQL user")
	fs.StringVar(&cfg.Password, "password", getenv("MYSQL_PASSWORD"), "MySQL password")
	fs.IntVar(&cfg.Port, "port", intEnvOrDefaultFn("MYSQL_PORT", def.Port), "MySQL port")
	fs.StringVar(&cfg.TimeZone, "time_zone", envOrDefaultFn("MYSQL_TIME_ZONE", def.TimeZone), "Session time zone")
	fs.BoolVar(&cfg.Autocommit, "autocommit", boolEnvOrDefaultFn("MYSQL_AUTOCOMMIT", def.Autocommit), "Enable autocommit")
	fs.BoolVar(&cfg.RaiseOnWarnings, "raise_on_warnings", boolEnvOrDefaultFn("MYSQL_RAISE_ON_WARNINGS", def.RaiseOnWarnings), "Fail statements that produce warnings")

	// Execution
	fs.IntVar(&cfg.MaxParams, "max_params", intEnvOrDefaultFn("MYSQLR_MAX_PARAMS", 0), "Placeholders per batched insert (0 = protocol limit)")
	fs.Float64Var(&cfg.RetryBase, "retry_base", floatEnvOrDefaultFn("MYSQLR_RETRY_BASE", mysqlr.DefaultRetryPolicy.Base), "Backoff base in seconds")
	fs.IntVar(&cfg.RetryAttempts, "retry_attempts", intEnvOrDefaultFn("MYSQLR_RETRY_ATTEMPTS", mysqlr.DefaultRetryPolicy.MaxAttempts), "Maximum attempts for transient errors")
	fs.BoolVar(&cfg.ForeignKeyChecks, "fkc", boolEnvOrDefaultFn("MYSQLR_FOREIGN_KEY_CHECKS", true), "Keep foreign key checks on while truncating")

	// Observability
	fs.BoolVar(&cfg.Debug, "debug", boolEnvOrDefaultFn("MYSQLR_DEBUG", false), "Debug logging")
	fs.StringVar(&cfg.Metrics, "metrics", envOrDefaultFn("MYSQLR_METRICS", "none"), "Metrics backend: none, prom or datadog")
	fs.StringVar(&cfg.PushGateway, "pushgateway", getenv("MYSQLR_PUSHGATEWAY"), "Prometheus Pushgateway URL")
	fs.StringVar(&cfg.DogStatsD, "dogstatsd", envOrDefaultFn("MYSQLR_DOGSTATSD", "127.0.0.1:8125"), "DogStatsD address")

	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Args = fs.Args()
	return cfg, nil
}

// Load is the production entry point: flag.CommandLine, os.Getenv and
// os.Args[1:].
func Load() (*Config, error) {
	return LoadFromArgs(flag.CommandLine, os.Getenv, os.Args[1:])
}

// Override returns the connection fields given on the command line or in
// the environment.
func (c *Config) Override() mysqlr.Override {
	return mysqlr.Override{
		Database: c.Database,
		Host:     c.Host,
		User:     c.User,
		Password: c.Password,
	}
}

// Options merges the overrides into mysqlr.DefaultOptions and applies the
// session settings.
func (c *Config) Options() mysqlr.Options {
	o := mysqlr.Merge(mysqlr.DefaultOptions(), c.Override())
	o.Port = c.Port
	o.TimeZone = c.TimeZone
	o.Autocommit = c.Autocommit
	o.RaiseOnWarnings = c.RaiseOnWarnings
	return o
}

// HandlerConfig returns the handler limits and retry policy.
func (c *Config) HandlerConfig() mysqlr.Config {
	return mysqlr.Config{
		MaxParams: c.MaxParams,
		Retry: mysqlr.RetryPolicy{
			Base:        c.RetryBase,
			MaxAttempts: c.RetryAttempts,
		},
	}
}
