package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// Filter отбирает сообщения для конкретной подписки.
type Filter interface {
	Match(msg Message) bool
}

// FilterFunc адаптирует функцию к Filter.
type FilterFunc func(msg Message) bool

// Match вызывает f(msg).
func (f FilterFunc) Match(msg Message) bool {
	return f(msg)
}

// KeyFilter пропускает сообщения с указанным ключом.
func KeyFilter(key string) Filter {
	return FilterFunc(func(msg Message) bool {
		return msg.Key == key
	})
}

// AllOf пропускает сообщение, только если его пропускают все фильтры. nil-фильтры игнорируются.
func AllOf(filters ...Filter) Filter {
	active := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			active = append(active, f)
		}
	}
	return FilterFunc(func(msg Message) bool {
		for _, f := range active {
			if !f.Match(msg) {
				return false
			}
		}
		return true
	})
}

// celFilter проверяет сообщение скомпилированным CEL-выражением.
type celFilter struct {
	prog cel.Program
}

// CompileCELFilter компилирует выражение над переменными topic, key, published_ms и json.
// Пустое выражение даёт nil-фильтр.
func CompileCELFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("topic", cel.StringType),
		cel.Variable("key", cel.StringType),
		cel.Variable("published_ms", cel.IntType),
		cel.Variable("json", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("parse filter: %w", iss.Err())
	}
	checked, iss := env.Check(ast)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("check filter: %w", iss.Err())
	}
	if out := checked.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("filter must evaluate to bool, got %s", out)
	}
	prog, err := env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("build filter program: %w", err)
	}
	return celFilter{prog: prog}, nil
}

// Match вычисляет выражение; ошибка вычисления отбрасывает сообщение.
func (f celFilter) Match(msg Message) bool {
	var payload any
	_ = json.Unmarshal(msg.Payload, &payload)

	out, _, err := f.prog.Eval(map[string]any{
		"topic":        string(msg.Topic),
		"key":          msg.Key,
		"published_ms": msg.PublishedAt.UnixMilli(),
		"json":         payload,
	})
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}
