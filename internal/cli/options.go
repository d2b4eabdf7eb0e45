// Package cli parses qcache command-line options.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/electwix/querycache/internal/query"
)

// Options holds the parsed command line.
type Options struct {
	ConfigPath   string
	StrictConfig bool
	Verbose      bool
	JSONLogs     bool
	Driver       string
	DSN          string
	Metrics      bool
	Params       []query.Param
	Args         []string
}

// SQL returns the positional arguments joined into one statement.
func (o Options) SQL() string {
	return strings.TrimSpace(strings.Join(o.Args, " "))
}

// Parse parses args. Errors carry the usage text.
func Parse(args []string) (Options, error) {
	var opts Options

	fs := flag.NewFlagSet("qcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&opts.ConfigPath, "config", "", "Path to a TOML or YAML configuration file")
	fs.StringVar(&opts.ConfigPath, "c", "", "Path to a TOML or YAML configuration file")
	fs.BoolVar(&opts.StrictConfig, "strict-config", false, "Treat configuration warnings as errors")
	fs.BoolVar(&opts.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.Verbose, "v", false, "Enable verbose logging")
	fs.BoolVar(&opts.JSONLogs, "json-logs", false, "Write logs as JSON")
	fs.StringVar(&opts.Driver, "driver", "", "Database driver: sqlite or pgx; overrides the configuration")
	fs.StringVar(&opts.DSN, "dsn", "", "Database connection string; the statement is executed when set")
	fs.BoolVar(&opts.Metrics, "metrics", false, "Print the cache metrics collected through OpenTelemetry")
	fs.Func("p", "Query parameter as name=kind:value, or kind:value for the next positional parameter; repeatable", func(s string) error {
		p, err := ParseParam(s)
		if err != nil {
			return err
		}
		opts.Params = append(opts.Params, p)
		return nil
	})

	if err := fs.Parse(args); err != nil {
		return Options{}, fmt.Errorf("%w\n\n%s", err, Usage(fs))
	}

	opts.Args = fs.Args()
	return opts, nil
}

// ParseParam reads a parameter written as name=kind:value or kind:value. The
// name may carry a leading ':'. The name is only split off when the text
// before the first '=' holds no other ':', so text:a=b is a positional text
// value.
func ParseParam(s string) (query.Param, error) {
	if s == "" {
		return query.Param{}, errors.New("empty parameter")
	}
	if name, value, found := strings.Cut(s, "="); found && !strings.Contains(strings.TrimPrefix(name, ":"), ":") {
		if strings.TrimPrefix(name, ":") == "" {
			return query.Param{}, fmt.Errorf("parameter %q has an empty name", s)
		}
		v, err := query.Parse(value)
		if err != nil {
			return query.Param{}, err
		}
		return query.Named(name, v), nil
	}
	v, err := query.Parse(s)
	if err != nil {
		return query.Param{}, err
	}
	return query.Positional(v)[0], nil
}

// Usage renders the flag defaults of fs.
func Usage(fs *flag.FlagSet) string {
	if fs == nil {
		return ""
	}
	var buf strings.Builder
	fmt.Fprintf(&buf, "Usage of %s:\n", fs.Name())
	fmt.Fprintf(&buf, "  %s [flags] SQL\n", fs.Name())
	out := fs.Output()
	fs.SetOutput(&buf)
	fs.PrintDefaults()
	fs.SetOutput(out)
	return buf.String()
}
