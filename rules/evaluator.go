package rules

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// safeBuiltins is the fixed set spec.md §4.3 names, registered as explicit
// expr.Function options. expr's own default builtin functions are not
// disabled, so a condition can also call those in addition to this list.
func safeBuiltins() []expr.Option {
	return []expr.Option{
		expr.Function("abs", func(params ...any) (any, error) {
			v := toFloat(params[0])
			if v < 0 {
				v = -v
			}
			return v, nil
		}),
		expr.Function("min", func(params ...any) (any, error) {
			return minMax(params, false)
		}),
		expr.Function("max", func(params ...any) (any, error) {
			return minMax(params, true)
		}),
		expr.Function("len", func(params ...any) (any, error) {
			return lengthOf(params[0]), nil
		}),
		expr.Function("sum", func(params ...any) (any, error) {
			total := 0.0
			for _, v := range toSlice(params[0]) {
				total += toFloat(v)
			}
			return total, nil
		}),
		expr.Function("all", func(params ...any) (any, error) {
			for _, v := range toSlice(params[0]) {
				if !toBool(v) {
					return false, nil
				}
			}
			return true, nil
		}),
		expr.Function("any", func(params ...any) (any, error) {
			for _, v := range toSlice(params[0]) {
				if toBool(v) {
					return true, nil
				}
			}
			return false, nil
		}),
		expr.Function("bool", func(params ...any) (any, error) { return toBool(params[0]), nil }),
		expr.Function("int", func(params ...any) (any, error) { return int(toFloat(params[0])), nil }),
		expr.Function("float", func(params ...any) (any, error) { return toFloat(params[0]), nil }),
		expr.Function("str", func(params ...any) (any, error) { return fmt.Sprintf("%v", params[0]), nil }),
		expr.Function("list", func(params ...any) (any, error) { return toSlice(params[0]), nil }),
		expr.Function("dict", func(params ...any) (any, error) {
			if m, ok := params[0].(map[string]any); ok {
				return m, nil
			}
			return map[string]any{}, nil
		}),
		expr.Function("set", func(params ...any) (any, error) {
			seen := map[any]bool{}
			out := make([]any, 0)
			for _, v := range toSlice(params[0]) {
				if !seen[v] {
					seen[v] = true
					out = append(out, v)
				}
			}
			return out, nil
		}),
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case nil:
		return false
	}
	return true
}

func toSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case nil:
		return nil
	}
	return []any{v}
}

func lengthOf(v any) int {
	switch s := v.(type) {
	case string:
		return len(s)
	case []any:
		return len(s)
	case map[string]any:
		return len(s)
	}
	return 0
}

func minMax(params []any, wantMax bool) (any, error) {
	values := toSlice(params[0])
	if len(params) > 1 {
		values = params
	}
	if len(values) == 0 {
		return 0.0, nil
	}
	best := toFloat(values[0])
	for _, v := range values[1:] {
		f := toFloat(v)
		if (wantMax && f > best) || (!wantMax && f < best) {
			best = f
		}
	}
	return best, nil
}

// cacheEntry pairs a compiled program with its LRU list element, mirroring
// mbflow's backend/pkg/engine/condition_cache.go ConditionCache shape.
type cacheEntry struct {
	key     string
	program *vm.Program
}

// ProgramCache is an LRU cache of compiled expr programs keyed by the raw
// expression text, since the same rule/edge condition is evaluated on every
// node visit.
type ProgramCache struct {
	mu       sync.Mutex
	maxSize  int
	entries  map[string]*list.Element
	order    *list.List
}

// NewProgramCache returns a cache holding up to maxSize compiled programs.
func NewProgramCache(maxSize int) *ProgramCache {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &ProgramCache{
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

func (c *ProgramCache) get(key string) (*vm.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).program, true
}

func (c *ProgramCache) put(key string, program *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry).program = program
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&cacheEntry{key: key, program: program})
	c.entries[key] = elem

	if c.order.Len() > c.maxSize {
		c.evictOldest()
	}
}

func (c *ProgramCache) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.order.Remove(oldest)
	delete(c.entries, oldest.Value.(*cacheEntry).key)
}

// Len reports the number of cached programs.
func (c *ProgramCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear empties the cache.
func (c *ProgramCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Evaluator compiles and runs restricted boolean expressions: numeric/
// boolean/string literals, comparisons, and/or/not, arithmetic, and the
// fixed safe-builtins set. Identifier lookup is restricted to the supplied
// context mapping via expr.Env, satisfying Testable Property 7 ("no
// identifier outside the supplied context can be resolved").
type Evaluator struct {
	cache *ProgramCache
}

// NewEvaluator returns an Evaluator backed by an LRU program cache of the
// given size (0 selects a sensible default).
func NewEvaluator(cacheSize int) *Evaluator {
	return &Evaluator{cache: NewProgramCache(cacheSize)}
}

// Eval compiles (or fetches from cache) condition and runs it against
// evalContext, returning a bool. Any compile or runtime error is returned to
// the caller; callers that must never abort (rule evaluation, conditional
// edges) are expected to treat an error as "false" and log it, per spec.md's
// graceful-degradation policy — this function itself stays pure.
func (e *Evaluator) Eval(condition string, evalContext map[string]any) (bool, error) {
	if condition == "" {
		return true, nil
	}

	program, ok := e.cache.get(condition)
	if !ok {
		opts := append(safeBuiltins(), expr.Env(evalContext), expr.AsBool())
		compiled, err := expr.Compile(condition, opts...)
		if err != nil {
			return false, &Error{Component: "rules", Action: "compile", Message: condition, Err: err}
		}
		program = compiled
		e.cache.put(condition, program)
	}

	result, err := expr.Run(program, evalContext)
	if err != nil {
		return false, &Error{Component: "rules", Action: "evaluate", Message: condition, Err: err}
	}

	b, ok := result.(bool)
	if !ok {
		return false, &Error{Component: "rules", Action: "evaluate", Message: condition + ": non-boolean result"}
	}
	return b, nil
}
