// Package codegen implements the Code-Generation Pipeline (spec.md §4.11):
// GapAnalyzer detects a missing node capability, Generator renders a YAML
// definition plus a code body from a small template set, and
// RegistrationService writes both to disk with rollback-on-failure. This is
// new domain logic — no example repo performs code generation — grounded in
// the sandbox package's security-check pass (reused here over generated
// source text) and in the teacher's validate-before-commit discipline
// (pkg/config.Loader.Load: decode, default, validate, only then hand back
// a usable value).
package codegen

import (
	"fmt"
	"sort"
	"strings"
)

// GapAnalysis is GapAnalyzer.Analyze's verdict.
type GapAnalysis struct {
	HasGap               bool
	SuggestedNodeName    string
	SuggestedLanguage    string
	InferredParameters   []string
	MissingCapabilities  []string
	Confidence           float64
	matchedTemplate      string
}

var webTerms = map[string]bool{
	"dom": true, "html": true, "browser": true, "fetch": true, "document": true,
	"window": true, "css": true, "frontend": true, "webpage": true, "javascript": true,
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true, "for": true,
	"that": true, "this": true, "and": true, "or": true,
	"node": true, "capability": true, "please": true, "need": true, "want": true,
	"i": true, "is": true, "with": true, "using": true, "from": true, "be": true,
	"can": true, "it": true, "we": true,
}

func tokenize(text string) map[string]bool {
	words := make(map[string]bool)
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	}) {
		if f != "" && !stopwords[f] {
			words[f] = true
		}
	}
	return words
}

func inferLanguage(words map[string]bool) string {
	for w := range words {
		if webTerms[w] {
			return "javascript"
		}
	}
	return "python"
}

type templateSpec struct {
	name       string
	triggers   []string
	parameters []string
}

var knownTemplates = []templateSpec{
	{name: "moving_average", triggers: []string{"average", "rolling", "mean"}, parameters: []string{"values", "window"}},
	{name: "sum", triggers: []string{"sum", "total"}, parameters: []string{"values"}},
	{name: "fibonacci", triggers: []string{"fibonacci", "fib"}, parameters: []string{"n"}},
	{name: "safe_divide", triggers: []string{"divide", "division", "quotient"}, parameters: []string{"numerator", "denominator"}},
}

// GapAnalyzer inspects a task description against the descriptions of
// already-registered node capabilities.
type GapAnalyzer struct{}

// NewGapAnalyzer returns a ready-to-use analyzer.
func NewGapAnalyzer() *GapAnalyzer {
	return &GapAnalyzer{}
}

// Analyze reports whether task requires a capability absent from
// registered (node name -> human description).
func (g *GapAnalyzer) Analyze(task string, registered map[string]string) GapAnalysis {
	taskWords := tokenize(task)

	for _, desc := range registered {
		descWords := tokenize(desc)
		if overlapCount(taskWords, descWords) > 0 {
			return GapAnalysis{HasGap: false}
		}
	}

	lang := inferLanguage(taskWords)

	best := matchTemplate(taskWords)
	if best != nil {
		return GapAnalysis{
			HasGap:             true,
			SuggestedNodeName:  best.name,
			SuggestedLanguage:  lang,
			InferredParameters: append([]string(nil), best.parameters...),
			Confidence:         0.8,
			matchedTemplate:    best.name,
		}
	}

	return GapAnalysis{
		HasGap:              true,
		SuggestedNodeName:    fmt.Sprintf("custom_%s", firstSignificantWord(taskWords)),
		SuggestedLanguage:    lang,
		InferredParameters:   []string{"input"},
		MissingCapabilities:  sortedKeys(taskWords),
		Confidence:           0.3,
		matchedTemplate:      "echo",
	}
}

func overlapCount(a, b map[string]bool) int {
	n := 0
	for w := range a {
		if b[w] {
			n++
		}
	}
	return n
}

func matchTemplate(words map[string]bool) *templateSpec {
	var best *templateSpec
	bestScore := 0
	for i, tmpl := range knownTemplates {
		score := 0
		for _, trigger := range tmpl.triggers {
			if words[trigger] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = &knownTemplates[i]
		}
	}
	return best
}

func firstSignificantWord(words map[string]bool) string {
	keys := sortedKeys(words)
	if len(keys) == 0 {
		return "capability"
	}
	return keys[0]
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
