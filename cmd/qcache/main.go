// Package main implements the qcache CLI. It classifies a statement, prints
// its cache identity and, given a database, runs it through the query cache.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/electwix/querycache/internal/cache"
	"github.com/electwix/querycache/internal/cli"
	"github.com/electwix/querycache/internal/config"
	"github.com/electwix/querycache/internal/logging"
	"github.com/electwix/querycache/internal/query"
	"github.com/electwix/querycache/internal/stats"
	"github.com/electwix/querycache/internal/writes"
)

func main() {
	code := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := cli.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			_, _ = fmt.Fprintln(stdout, err.Error())
			return 0
		}
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}

	cfg, warnings, err := loadConfig(opts)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}

	format := cfg.Logging.Format
	if opts.JSONLogs {
		format = logging.FormatJSON
	}
	logger := logging.FromOptions(logging.Options{
		Verbose: opts.Verbose || cfg.Logging.Verbose,
		Writer:  stderr,
		Format:  format,
	})
	for _, w := range warnings {
		logger.Warn("configuration warning", "warning", w)
	}

	sql := opts.SQL()
	if sql == "" {
		_, _ = fmt.Fprintln(stderr, "qcache: missing SQL statement")
		return 1
	}
	q := query.New(sql, opts.Params...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	counters := stats.New()
	cacheOpts := []cache.Option{
		cache.WithEviction(cfg.Cache.Policy, cfg.Cache.Capacity),
		cache.WithSeed(cfg.Cache.HashSeed),
		cache.WithViews(cfg.Views),
		cache.WithStatistics(counters),
		cache.WithLogger(logger),
	}

	var bus *busLink
	if cfg.Invalidation.RedisAddr != "" {
		bus = newBusLink(cfg.Invalidation, logger)
		defer bus.Close()
		cacheOpts = append(cacheOpts, cache.WithPublisher(bus.bus))
	}

	qc, err := cache.New(cacheOpts...)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}

	if bus != nil {
		if err := bus.Start(ctx, qc); err != nil {
			_, _ = fmt.Fprintln(stderr, err.Error())
			return 1
		}
	}

	var metrics *metricsExport
	if opts.Metrics {
		metrics, err = newMetricsExport(counters)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err.Error())
			return 1
		}
		defer metrics.Close(context.WithoutCancel(ctx))
	}

	printReport(stdout, qc, q)

	if cfg.Database.DSN == "" {
		return 0
	}

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer db.Close(context.WithoutCancel(ctx))

	if isWrite(qc, sql) {
		err = execWrite(ctx, stdout, qc, db, q)
	} else {
		err = fetchTwice(ctx, stdout, qc, db, q)
	}
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}

	if metrics != nil {
		if err := metrics.Print(ctx, stdout); err != nil {
			_, _ = fmt.Fprintln(stderr, err.Error())
			return 1
		}
	}
	return 0
}

// loadConfig reads the configuration file, if any, and applies flag
// overrides.
func loadConfig(opts cli.Options) (config.Config, []string, error) {
	cfg := config.Default()
	var warnings []string
	if opts.ConfigPath != "" {
		res, err := config.Load(opts.ConfigPath, config.LoadOptions{Strict: opts.StrictConfig})
		if err != nil {
			return config.Config{}, nil, err
		}
		cfg, warnings = res.Config, res.Warnings
	}
	if opts.Driver != "" {
		cfg.Database.Driver = config.Driver(opts.Driver)
	}
	if opts.DSN != "" {
		cfg.Database.DSN = opts.DSN
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, warnings, nil
}

// isWrite reports whether sql must be executed rather than fetched. A
// statement that parses as a query is never a write.
func isWrite(qc *cache.QueryCache, sql string) bool {
	if qc.Classify(sql).Statement != nil {
		return false
	}
	return writes.IsWrite(sql)
}

// fetchTwice runs q through the cache twice so the second run is served from
// the cache, then prints the rows and the counters.
func fetchTwice(ctx context.Context, w io.Writer, qc *cache.QueryCache, db database, q query.Query) error {
	first, err := qc.Fetch(ctx, q, db.Load)
	if err != nil {
		return err
	}
	if _, err := qc.Fetch(ctx, q, db.Load); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w)
	printTable(w, first)
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "statistics: %s\n", qc.Statistics())
	return nil
}

// execWrite executes a modifying statement and reports it to the cache.
func execWrite(ctx context.Context, w io.Writer, qc *cache.QueryCache, db database, q query.Query) error {
	affected, err := db.Exec(ctx, q)
	if err != nil {
		return err
	}
	removed, err := qc.Written(ctx, q.SQL())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "\nrows affected: %d\ninvalidated: %d\n", affected, removed)
	return nil
}
