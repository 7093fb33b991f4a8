package rules

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Engine holds a priority-sorted rule list and exposes CRUD plus evaluation.
// Mutation (add/remove/update) is not expected to run concurrently with
// Evaluate per spec.md §5; this implementation nonetheless serializes both
// under a single mutex so that invariant holds even under misuse.
type Engine struct {
	mu        sync.Mutex
	rules     []*Rule
	byID      map[string]*Rule
	evaluator *Evaluator
	logger    *slog.Logger
}

// NewEngine returns an empty rule engine.
func NewEngine(evaluator *Evaluator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		byID:      make(map[string]*Rule),
		evaluator: evaluator,
		logger:    logger,
	}
}

// Add inserts rule, maintaining priority order (stable w.r.t. insertion
// order for equal priorities). Adding a rule with an already-registered id
// is a distinguishable error and leaves the repository unchanged (Testable
// Property 3).
func (e *Engine) Add(r *Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.byID[r.ID]; exists {
		return &Error{Component: "rules", Action: "add", Message: "rule id already registered: " + r.ID}
	}

	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	e.rules = append(e.rules, r)
	e.byID[r.ID] = r
	e.resort()
	return nil
}

// Remove deletes the rule with the given id.
func (e *Engine) Remove(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.byID[id]; !exists {
		return &Error{Component: "rules", Action: "remove", Message: "rule not found: " + id}
	}
	delete(e.byID, id)

	filtered := e.rules[:0:0]
	for _, r := range e.rules {
		if r.ID != id {
			filtered = append(filtered, r)
		}
	}
	e.rules = filtered
	return nil
}

// Update replaces the rule stored under updated.ID, preserving CreatedAt.
func (e *Engine) Update(updated *Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing, ok := e.byID[updated.ID]
	if !ok {
		return &Error{Component: "rules", Action: "update", Message: "rule not found: " + updated.ID}
	}
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now()

	for i, r := range e.rules {
		if r.ID == updated.ID {
			e.rules[i] = updated
			break
		}
	}
	e.byID[updated.ID] = updated
	e.resort()
	return nil
}

// Get returns the rule with the given id.
func (e *Engine) Get(id string) (*Rule, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.byID[id]
	return r, ok
}

// List returns every rule in priority order (a shallow copy of the slice).
func (e *Engine) List() []*Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

func (e *Engine) resort() {
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].Priority < e.rules[j].Priority
	})
}

// Evaluate walks enabled rules in priority order, running each rule's
// condition against evalContext, and returns a Violation for every rule that
// triggers. A rule's evaluation error is logged and treated as "did not
// trigger" — it never aborts evaluation of remaining rules (spec.md §7).
func (e *Engine) Evaluate(evalContext map[string]any) []Violation {
	e.mu.Lock()
	rules := make([]*Rule, len(e.rules))
	copy(rules, e.rules)
	e.mu.Unlock()

	var violations []Violation
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if e.triggers(r, evalContext) {
			violations = append(violations, Violation{
				RuleID:          r.ID,
				RuleName:        r.Name,
				Action:          r.Action,
				ContextSnapshot: copyContext(evalContext),
				Message:         r.Description,
				Metadata:        r.Metadata,
				Timestamp:       time.Now(),
			})
		}
	}
	return violations
}

func (e *Engine) triggers(r *Rule, evalContext map[string]any) bool {
	if r.Predicate != nil {
		return r.Predicate(evalContext)
	}
	if r.Condition == "" {
		return false
	}
	result, err := e.evaluator.Eval(r.Condition, evalContext)
	if err != nil {
		e.logger.Warn("rule condition evaluation failed", "rule_id", r.ID, "error", err)
		return false
	}
	return result
}

func copyContext(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
