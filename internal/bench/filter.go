package bench

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/opendata-oss/opendata-go/pkg/logdb"
)

// Filter wraps a compiled CEL program gating message delivery. A nil Filter
// matches everything.
//
// Available variables: partition, sequence, ts_ms, size, now_ms (ints) and
// text (the payload as a string).
type Filter struct {
	prog cel.Program
	expr string
}

// NewFilter compiles the expression. An empty expression yields a nil
// filter.
func NewFilter(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("partition", cel.IntType),
		cel.Variable("sequence", cel.IntType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("parse filter: %w", iss.Err())
	}
	checked, iss := env.Check(ast)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("check filter: %w", iss.Err())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return nil, err
	}
	return &Filter{prog: prog, expr: expr}, nil
}

// Match evaluates the expression against one entry. Evaluation errors drop
// the message.
func (f *Filter) Match(partition int, e logdb.LogEntry) bool {
	if f == nil {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"partition": int64(partition),
		"sequence":  int64(e.Sequence),
		"ts_ms":     e.Timestamp,
		"size":      int64(len(e.Value)),
		"text":      string(e.Value),
		"now_ms":    time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
