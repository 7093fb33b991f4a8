// Package validator implements the Decision Validator (spec.md §4.4): a
// single pure function composing rules.Repository and
// rules.GoalAlignmentChecker over a proposed decision request. It has no
// package-level state — every call is self-contained, using only the
// repository and checker passed in.
package validator

import (
	"github.com/agentmesh/orchestrator/rules"
)

// Status is the outcome of a validation pass.
type Status string

const (
	StatusApproved Status = "APPROVED"
	StatusModified Status = "MODIFIED"
	StatusRejected Status = "REJECTED"
	StatusEscalated Status = "ESCALATED"
)

// Request is the proposed decision to validate.
type Request struct {
	Context           map[string]any
	Payload           map[string]any
	IdentityFields    map[string]any
	Goal              string
	ActionDescription string
}

// Decision is the validator's verdict.
type Decision struct {
	Status          Status
	Violations      []rules.Violation
	Suggestions     []string
	ModifiedPayload map[string]any
}

// Validate runs the full algorithm of spec.md §4.4 steps 1-6.
func Validate(req Request, repo *rules.Repository, goalChecker *rules.GoalAlignmentChecker) Decision {
	evalContext := mergeContexts(req.Context, req.Payload, req.IdentityFields)

	var violations []rules.Violation
	for _, category := range []rules.Category{
		rules.CategoryBehavior, rules.CategoryTool, rules.CategoryData, rules.CategoryExecution,
	} {
		violations = append(violations, repo.EvaluateByCategory(category, evalContext)...)
	}

	if req.Goal != "" && goalChecker != nil {
		score := goalChecker.Score(req.Goal, req.ActionDescription, req.Context)
		if score < goalChecker.Threshold {
			violations = append(violations, rules.Violation{
				RuleID:          "goal_alignment_check",
				RuleName:        "goal_alignment_check",
				Action:          rules.ActionSuggestCorrection,
				ContextSnapshot: evalContext,
				Message:         "action does not sufficiently align with the stated goal",
			})
		}
	}

	suggestions := dedupeSuggestions(violations)
	status := determineStatus(violations)

	decision := Decision{
		Status:      status,
		Violations:  violations,
		Suggestions: suggestions,
	}

	if status == StatusModified {
		decision.ModifiedPayload = autoCorrect(req.Payload, violations)
	}

	return decision
}

func mergeContexts(maps ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func determineStatus(violations []rules.Violation) Status {
	if len(violations) == 0 {
		return StatusApproved
	}

	hasBlocking := false
	allSoft := true
	for _, v := range violations {
		if v.Action == rules.ActionRejectDecision || v.Action == rules.ActionForceTerminate {
			hasBlocking = true
		}
		if v.Action != rules.ActionSuggestCorrection && v.Action != rules.ActionLogWarning {
			allSoft = false
		}
	}

	if hasBlocking {
		return StatusRejected
	}
	if allSoft {
		return StatusModified
	}
	return StatusRejected
}

// dedupeSuggestions collects suggestions from rule.metadata.suggestion and
// violation messages, per spec.md §4.4 step 4.
func dedupeSuggestions(violations []rules.Violation) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, v := range violations {
		if v.Metadata != nil {
			if s, ok := v.Metadata["suggestion"].(string); ok {
				add(s)
			}
		}
		add(v.Message)
	}
	return out
}

// autoCorrect applies rule-metadata-driven correction hints, e.g.
// correction_type="field_restriction" marks a copy of the payload with a
// _needs_field_restriction flag.
func autoCorrect(payload map[string]any, violations []rules.Violation) map[string]any {
	modified := make(map[string]any, len(payload))
	for k, v := range payload {
		modified[k] = v
	}

	for _, v := range violations {
		if v.Metadata == nil {
			continue
		}
		correctionType, _ := v.Metadata["correction_type"].(string)
		if correctionType == "field_restriction" {
			modified["_needs_field_restriction"] = true
		}
	}
	return modified
}
