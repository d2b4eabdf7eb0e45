// Package classifier decides whether the result of a SELECT may be cached and
// reports the base tables and columns it depends on.
//
// Classification runs in two passes. A syntax walk rejects wildcard
// projections, unresolved qualifiers and time-dependent functions while
// collecting dependencies. A logical plan is then built and any aggregation
// or windowing operator, wherever it appears, rejects the query. Failures of
// any kind degrade to "not cacheable".
package classifier

import (
	"fmt"
	"maps"
	"slices"

	"github.com/electwix/querycache/internal/logging"
	"github.com/electwix/querycache/internal/sqlparse/ast"
	"github.com/electwix/querycache/internal/sqlparse/parser"
	"github.com/electwix/querycache/internal/sqlparse/plan"
	"github.com/electwix/querycache/internal/store"
)

// Reasons reported for queries that are not cacheable.
const (
	ReasonParse            = "parse"
	ReasonWildcard         = "wildcard projection"
	ReasonUnresolved       = "unresolved reference"
	ReasonNondeterministic = "nondeterministic function"
	ReasonAggregate        = "aggregation"
	ReasonWindow           = "window function"
	ReasonInternal         = "internal error"
)

// Result describes the outcome of classifying one statement.
type Result struct {
	Cacheable bool
	// Reason is empty for cacheable queries.
	Reason string
	// Detail names the construct that triggered Reason, when there is one.
	Detail string
	// Tables lists the base tables read by the query, sorted, under the names
	// the store indexes them by (see store.NormalizeTable).
	Tables []string
	// Columns lists referenced columns as TABLE.COLUMN, or COLUMN when the
	// owner could not be attributed to a single base table, sorted.
	Columns   []string
	Statement *ast.Query
	Plan      plan.Node
	Err       error
}

// Classifier classifies SQL text. The zero value is not usable; call New.
type Classifier struct {
	views  map[string][]string
	logger logging.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithViews declares views and the base tables they read. Queries that read a
// view also depend on its base tables.
func WithViews(views map[string][]string) Option {
	return func(c *Classifier) {
		for view, tables := range views {
			key := store.NormalizeTable(view)
			for _, table := range tables {
				c.views[key] = append(c.views[key], store.NormalizeTable(table))
			}
		}
	}
}

// WithLogger sets the logger used for classification diagnostics.
func WithLogger(logger logging.Logger) Option {
	return func(c *Classifier) {
		c.logger = logging.OrNop(logger)
	}
}

// New creates a Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		views:  make(map[string][]string),
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultClassifier = New()

// Classify classifies sql with no views and no logging.
func Classify(sql string) Result {
	return defaultClassifier.Classify(sql)
}

// Classify parses sql and decides whether its result may be cached. It never
// panics and never returns an error; problems are reported through Result.
func (c *Classifier) Classify(sql string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Reason: ReasonInternal, Err: fmt.Errorf("classifier: recovered from panic: %v", r)}
			c.logger.Warn("classification failed", "err", res.Err)
		}
	}()

	stmt, err := parser.Parse(sql)
	if err != nil {
		c.logger.Debug("query not cacheable", "reason", ReasonParse, "err", err)
		return Result{Reason: ReasonParse, Err: err}
	}

	w := newWalker(c.views)
	w.query(stmt, nil)
	res = Result{
		Reason:    w.reason,
		Detail:    w.detail,
		Tables:    slices.Sorted(maps.Keys(w.tables)),
		Columns:   slices.Sorted(maps.Keys(w.columns)),
		Statement: stmt,
	}

	node, err := plan.Build(stmt, plan.WithCatalog(w.catalog()))
	if err != nil {
		res.Reason, res.Detail, res.Err = ReasonInternal, "", err
		c.logger.Warn("plan construction failed", "err", err)
		return res
	}
	res.Plan = node
	if res.Reason == "" {
		res.Reason, res.Detail = planReason(node)
	}
	res.Cacheable = res.Reason == ""
	if res.Cacheable {
		c.logger.Debug("query cacheable", "tables", res.Tables)
	} else {
		c.logger.Debug("query not cacheable", "reason", res.Reason, "detail", res.Detail, "tables", res.Tables)
	}
	return res
}

// planReason reports the first aggregation or windowing operator in n.
func planReason(n plan.Node) (reason, detail string) {
	plan.Walk(n, func(node plan.Node) bool {
		if reason != "" {
			return false
		}
		switch node.(type) {
		case *plan.Aggregate:
			reason, detail = ReasonAggregate, node.Describe()
		case *plan.Window:
			reason, detail = ReasonWindow, node.Describe()
		}
		return reason == ""
	})
	return reason, detail
}
