package rules

// GoalAlignmentChecker scores how well a proposed action aligns with a
// stated goal, in [0, 1] (spec.md §4.3).
type GoalAlignmentChecker struct {
	Threshold float64
}

// NewGoalAlignmentChecker returns a checker using the default 0.5 threshold.
func NewGoalAlignmentChecker() *GoalAlignmentChecker {
	return &GoalAlignmentChecker{Threshold: 0.5}
}

// Score computes the alignment score of actionDescription against goal.
// context optionally supplies workflow progress information; progress is
// read from context["progress"] as a float in [0, 1] when present.
func (c *GoalAlignmentChecker) Score(goal, actionDescription string, context map[string]any) float64 {
	goalKeywords := extractKeywords(goal)
	actionKeywords := extractKeywords(actionDescription)

	if len(goalKeywords) == 0 {
		return 0
	}

	matches := 0
	for gk := range goalKeywords {
		if keywordHit(gk, actionKeywords) {
			matches++
		}
	}

	score := float64(matches) / float64(maxInt(len(goalKeywords), 1))
	if score > 1.0 {
		score = 1.0
	}

	if containsDangerousVerb(actionDescription) && !containsDangerousVerb(goal) {
		score *= 0.3
	}

	if context != nil {
		if progress, ok := context["progress"].(float64); ok && progress < 0.9 {
			score += 0.1
			if score > 1.0 {
				score = 1.0
			}
		}
	}

	return score
}

// IsAligned reports whether the computed score meets the checker's
// threshold.
func (c *GoalAlignmentChecker) IsAligned(goal, actionDescription string, context map[string]any) bool {
	return c.Score(goal, actionDescription, context) >= c.Threshold
}

func keywordHit(goalKeyword string, actionKeywords map[string]bool) bool {
	for ak := range actionKeywords {
		if ak == goalKeyword ||
			containsSubstr(ak, goalKeyword) ||
			containsSubstr(goalKeyword, ak) ||
			inSameSynonymGroup(goalKeyword, ak) {
			return true
		}
	}
	return false
}

func containsSubstr(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	n, m := len(haystack), len(needle)
	for i := 0; i+m <= n; i++ {
		if haystack[i:i+m] == needle {
			return i
		}
	}
	return -1
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
