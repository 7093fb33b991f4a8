package rules

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[\p{Han}]+|[a-zA-Z0-9]+`)

// extractKeywords tokenizes text into a lowercase keyword set. Since CJK text
// carries no whitespace, each contiguous run of Han characters is emitted as
// one token and additionally split into overlapping bigrams — a standard
// dependency-free approximation of word segmentation — so that e.g. "销售数据"
// yields "销售数据", "销售", "售数", "数据" and can match the shorter synonym
// "销售" by containment.
func extractKeywords(text string) map[string]bool {
	keywords := make(map[string]bool)
	for _, tok := range tokenPattern.FindAllString(text, -1) {
		lower := strings.ToLower(tok)
		keywords[lower] = true
		if isHanRun(tok) && len([]rune(tok)) > 2 {
			runes := []rune(tok)
			for i := 0; i+1 < len(runes); i++ {
				keywords[string(runes[i:i+2])] = true
			}
		}
	}
	return keywords
}

func isHanRun(s string) bool {
	for _, r := range s {
		if r < 0x2E80 {
			return false
		}
	}
	return len(s) > 0
}

// synonymGroups curates keyword equivalence classes used by the Goal
// Alignment Checker, per spec.md's worked example.
var synonymGroups = [][]string{
	{"销售", "订单", "交易", "营收", "收入"},
}

func inSameSynonymGroup(a, b string) bool {
	for _, group := range synonymGroups {
		var hasA, hasB bool
		for _, g := range group {
			if g == a {
				hasA = true
			}
			if g == b {
				hasB = true
			}
		}
		if hasA && hasB {
			return true
		}
	}
	return false
}

// dangerousVerbs gates the Goal Alignment Checker's 0.3 penalty multiplier.
var dangerousVerbs = []string{"删除", "清空", "drop", "delete", "truncate"}

func containsDangerousVerb(text string) bool {
	lower := strings.ToLower(text)
	for _, v := range dangerousVerbs {
		if strings.Contains(lower, v) {
			return true
		}
	}
	return false
}
