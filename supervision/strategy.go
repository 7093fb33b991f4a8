package supervision

import (
	"sort"

	"github.com/agentmesh/orchestrator/pkg/registry"
)

// StrategyAction enumerates what a triggered strategy does.
type StrategyAction string

const (
	StrategyWarn      StrategyAction = "warn"
	StrategyBlock     StrategyAction = "block"
	StrategyTerminate StrategyAction = "terminate"
	StrategyLog       StrategyAction = "log"
)

// Strategy is one registered supervision response.
type Strategy struct {
	Name              string
	TriggerConditions []string
	Action            StrategyAction
	Priority          int
	ActionParams      map[string]any
	Enabled           bool
}

// StrategyRepository stores Strategies by name, reusing
// registry.BaseRegistry[T] the same way the teacher's
// WorkflowExecutorRegistry embeds it.
type StrategyRepository struct {
	*registry.BaseRegistry[*Strategy]
}

// NewStrategyRepository returns an empty repository.
func NewStrategyRepository() *StrategyRepository {
	return &StrategyRepository{BaseRegistry: registry.NewBaseRegistry[*Strategy]()}
}

// FindByCondition returns every enabled strategy whose TriggerConditions
// contains cond exactly, sorted by ascending priority.
func (r *StrategyRepository) FindByCondition(cond string) []*Strategy {
	var matches []*Strategy
	for _, s := range r.List() {
		if !s.Enabled {
			continue
		}
		for _, c := range s.TriggerConditions {
			if c == cond {
				matches = append(matches, s)
				break
			}
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Priority < matches[j].Priority })
	return matches
}
