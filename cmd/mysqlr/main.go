// Command mysqlr runs administrative statements against a MySQL server.
//
//	mysqlr [flags] version
//	mysqlr [flags] exec STATEMENT
//	mysqlr [flags] truncate TABLE
//	mysqlr [flags] reset-auto-increment TABLE COLUMN
//
// Connection settings come from flags or MYSQL_* environment variables; see
// -help.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/gandaldf/mysqlr"
	"github.com/gandaldf/mysqlr/internal/config"
	"github.com/gandaldf/mysqlr/metrics"
	"github.com/gandaldf/mysqlr/metrics/datadog"
	"github.com/gandaldf/mysqlr/metrics/prompush"

	"go.uber.org/zap"
)

var errUsage = errors.New("usage: mysqlr [flags] version | exec STATEMENT | truncate TABLE | reset-auto-increment TABLE COLUMN")

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Exit(2)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mysqlr: logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	backend, err := newMetricsBackend(cfg)
	if err != nil {
		logger.Fatal("metrics backend", zap.Error(err))
	}
	metrics.SetBackend(backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = run(ctx, cfg, logger, os.Stdout)
	stop()

	if ferr := metrics.Flush(); ferr != nil {
		logger.Warn("flushing metrics", zap.Error(ferr))
	}
	if err != nil {
		logger.Error("command failed", zap.Error(err))
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newMetricsBackend returns nil for "none", which keeps the no-op backend.
func newMetricsBackend(cfg *config.Config) (metrics.Backend, error) {
	switch cfg.Metrics {
	case "", "none":
		return nil, nil
	case "prom":
		return prompush.NewBackend("mysqlr", cfg.PushGateway)
	case "datadog":
		return datadog.NewBackend(datadog.Config{Addr: cfg.DogStatsD, Namespace: "mysqlr."})
	default:
		return nil, fmt.Errorf("unknown metrics backend %q", cfg.Metrics)
	}
}

// run validates the command line, then opens one handler for the command.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer) error {
	cmd, err := parseCommand(cfg.Args)
	if err != nil {
		return err
	}
	return mysqlr.WithHandler(ctx, cfg.Options(), func(h *mysqlr.Handler) error {
		return cmd.run(ctx, h, cfg, out)
	}, mysqlr.WithLogger(logger), mysqlr.WithConfig(cfg.HandlerConfig()))
}

type command struct {
	name string
	args []string
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, errUsage
	}
	want := map[string]int{
		"version":              0,
		"exec":                 1,
		"truncate":             1,
		"reset-auto-increment": 2,
	}
	n, ok := want[args[0]]
	if !ok || len(args)-1 != n {
		return command{}, fmt.Errorf("%w (got %q)", errUsage, args)
	}
	return command{name: args[0], args: args[1:]}, nil
}

func (c command) run(ctx context.Context, h *mysqlr.Handler, cfg *config.Config, out io.Writer) error {
	switch c.name {
	case "version":
		row, err := h.FetchOne(ctx, "select version()")
		if err != nil {
			return err
		}
		if row == nil {
			return errors.New("server returned no version")
		}
		_, err = fmt.Fprintf(out, "%v (upsert syntax: %s)\n", row[0], h.Syntax())
		return err

	case "exec":
		return h.Retry(ctx, func(ctx context.Context) error {
			return h.Execute(ctx, c.args[0])
		})

	case "truncate":
		return h.Truncate(ctx, c.args[0], cfg.ForeignKeyChecks)

	case "reset-auto-increment":
		next, err := h.ResetAutoIncrement(ctx, c.args[0], c.args[1])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s auto_increment = %d\n", c.args[0], next)
		return err
	}
	return errUsage
}
