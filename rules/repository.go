package rules

import "time"

// Repository is the Enhanced Rule Repository: it extends Engine with
// category/source filtering and ships a small default rule set (spec.md
// §4.3).
type Repository struct {
	*Engine
}

// NewRepository returns a Repository seeded with the default rule set:
// max iterations (> 10, FORCE_TERMINATE), max tokens (> 10000,
// FORCE_TERMINATE), goal-alignment (< 0.5, SUGGEST_CORRECTION), and
// per-node timeout (> 60s, FORCE_TERMINATE).
func NewRepository(evaluator *Evaluator) *Repository {
	repo := &Repository{Engine: NewEngine(evaluator, nil)}
	for _, r := range defaultRules() {
		_ = repo.Add(r)
	}
	return repo
}

func defaultRules() []*Rule {
	now := time.Now()
	return []*Rule{
		{
			ID:          "default.max_iterations",
			Name:        "Maximum iterations exceeded",
			Category:    CategoryExecution,
			Source:      SourceSystem,
			Description: "workflow exceeded the maximum allowed iterations",
			Condition:   "iterations > 10",
			Action:      ActionForceTerminate,
			Priority:    10,
			Enabled:     true,
			Metadata:    map[string]any{},
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ID:          "default.max_tokens",
			Name:        "Maximum tokens exceeded",
			Category:    CategoryExecution,
			Source:      SourceSystem,
			Description: "workflow exceeded the maximum allowed token budget",
			Condition:   "tokens_used > 10000",
			Action:      ActionForceTerminate,
			Priority:    10,
			Enabled:     true,
			Metadata:    map[string]any{},
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ID:          "default.goal_alignment",
			Name:        "Low goal alignment",
			Category:    CategoryGoal,
			Source:      SourceSystem,
			Description: "proposed action's alignment with the stated goal is below threshold",
			Condition:   "alignment_score < 0.5",
			Action:      ActionSuggestCorrection,
			Priority:    20,
			Enabled:     true,
			Metadata:    map[string]any{},
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ID:          "default.node_timeout",
			Name:        "Per-node timeout exceeded",
			Category:    CategoryExecution,
			Source:      SourceSystem,
			Description: "a node exceeded its 60 second execution budget",
			Condition:   "node_duration_seconds > 60",
			Action:      ActionForceTerminate,
			Priority:    10,
			Enabled:     true,
			Metadata:    map[string]any{},
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}

// EvaluateByCategory walks enabled rules of the given category, in priority
// order, exactly like Evaluate but scoped to one category.
func (r *Repository) EvaluateByCategory(category Category, evalContext map[string]any) []Violation {
	r.mu.Lock()
	rules := make([]*Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		if rule.Category == category {
			rules = append(rules, rule)
		}
	}
	r.mu.Unlock()

	var violations []Violation
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if r.triggers(rule, evalContext) {
			violations = append(violations, Violation{
				RuleID:          rule.ID,
				RuleName:        rule.Name,
				Action:          rule.Action,
				ContextSnapshot: copyContext(evalContext),
				Message:         rule.Description,
				Metadata:        rule.Metadata,
				Timestamp:       time.Now(),
			})
		}
	}
	return violations
}

// ListBySource returns every rule produced by the given source.
func (r *Repository) ListBySource(source Source) []*Rule {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Rule
	for _, rule := range r.rules {
		if rule.Source == source {
			out = append(out, rule)
		}
	}
	return out
}
