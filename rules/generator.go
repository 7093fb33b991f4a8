package rules

import (
	"fmt"
	"strings"
	"time"
)

// ToolConfig describes per-tool restrictions supplied by the user when
// requesting a new workflow.
type ToolConfig struct {
	ForbiddenOperations []string
}

// UserInput is the structured request the Rule Generator consumes, per
// spec.md §4.3.
type UserInput struct {
	Start          string
	Goal           string
	Description    string
	AllowedTools   []string
	ToolConfigs    map[string]ToolConfig
	MaxIterations  int
	TimeoutSeconds int
}

// forbiddenFields gates the privacy rule: any evaluation context carrying
// one of these keys is rejected.
var forbiddenFields = []string{"ssn", "password", "credit_card", "api_key"}

// Generator produces Rule values from a UserInput: a goal-alignment rule
// (category GOAL, source GENERATED) embedding the extracted keyword set, a
// privacy rule forbidding sensitive fields, and one tool rule per
// tool_configs entry forbidding listed operations.
type Generator struct{}

// NewGenerator returns a Rule Generator.
func NewGenerator() *Generator { return &Generator{} }

// Generate builds the full set of rules implied by input.
func (g *Generator) Generate(input UserInput) []*Rule {
	var out []*Rule
	now := time.Now()

	keywords := extractKeywords(input.Start + " " + input.Goal)
	keywordList := make([]string, 0, len(keywords))
	for k := range keywords {
		keywordList = append(keywordList, k)
	}

	out = append(out, &Rule{
		ID:          fmt.Sprintf("generated.goal_alignment.%d", now.UnixNano()),
		Name:        "Generated goal alignment",
		Category:    CategoryGoal,
		Source:      SourceGenerated,
		Description: "generated from user goal: " + input.Goal,
		Predicate: func(evalContext map[string]any) bool {
			score, _ := evalContext["alignment_score"].(float64)
			return score < 0.5
		},
		Action:   ActionSuggestCorrection,
		Priority: 20,
		Enabled:  true,
		Metadata: map[string]any{
			"keywords": keywordList,
			"goal":     input.Goal,
			"start":    input.Start,
		},
		CreatedAt: now,
		UpdatedAt: now,
	})

	out = append(out, &Rule{
		ID:          fmt.Sprintf("generated.privacy.%d", now.UnixNano()+1),
		Name:        "Generated privacy guard",
		Category:    CategoryData,
		Source:      SourceGenerated,
		Description: "rejects requests whose context carries a forbidden field",
		Predicate: func(evalContext map[string]any) bool {
			for _, f := range forbiddenFields {
				if _, present := evalContext[f]; present {
					return true
				}
			}
			return false
		},
		Action:   ActionRejectDecision,
		Priority: 5,
		Enabled:  true,
		Metadata: map[string]any{"forbidden_fields": forbiddenFields},
		CreatedAt: now,
		UpdatedAt: now,
	})

	i := 0
	for tool, cfg := range input.ToolConfigs {
		if len(cfg.ForbiddenOperations) == 0 {
			continue
		}
		tool, forbidden := tool, cfg.ForbiddenOperations
		out = append(out, &Rule{
			ID:          fmt.Sprintf("generated.tool.%s.%d", tool, now.UnixNano()+int64(i)+2),
			Name:        "Generated tool restriction: " + tool,
			Category:    CategoryTool,
			Source:      SourceGenerated,
			Description: "forbids operations " + strings.Join(forbidden, ", ") + " on tool " + tool,
			Predicate: func(evalContext map[string]any) bool {
				if evalContext["tool"] != tool {
					return false
				}
				op, _ := evalContext["operation"].(string)
				op = strings.ToLower(op)
				for _, f := range forbidden {
					if strings.Contains(op, strings.ToLower(f)) {
						return true
					}
				}
				return false
			},
			Action:   ActionRejectDecision,
			Priority: 5,
			Enabled:  true,
			Metadata: map[string]any{"tool": tool, "forbidden_operations": forbidden},
			CreatedAt: now,
			UpdatedAt: now,
		})
		i++
	}

	return out
}
