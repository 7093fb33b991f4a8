// Package injection implements the Context Injection Manager: a per-session
// priority queue of pending context injections, drained by injection point.
// It generalizes the teacher's SharedState.History append-only log
// (team/team.go) from ordered-append/read-all to a priority-ordered,
// per-point drain using container/heap.
package injection

import (
	"container/heap"
	"sync"
	"time"

	"github.com/agentmesh/orchestrator/bus"
)

// Type enumerates the kinds of context injection.
type Type string

const (
	TypeWarning      Type = "WARNING"
	TypeIntervention Type = "INTERVENTION"
	TypeMemory       Type = "MEMORY"
	TypeObservation  Type = "OBSERVATION"
	TypeSupplement   Type = "SUPPLEMENT"
)

// Point enumerates where in the agent's reasoning loop an injection lands.
type Point string

const (
	PointPreLoop      Point = "PRE_LOOP"
	PointPreThinking  Point = "PRE_THINKING"
	PointPostThinking Point = "POST_THINKING"
	PointIntervention Point = "INTERVENTION"
)

// pointForType applies the type→point mapping: WARNING maps to
// PRE_THINKING, INTERVENTION maps to INTERVENTION, everything else
// defaults to PRE_LOOP.
func pointForType(t Type) Point {
	switch t {
	case TypeWarning:
		return PointPreThinking
	case TypeIntervention:
		return PointIntervention
	default:
		return PointPreLoop
	}
}

// DefaultPriority is used by the convenience Inject* methods when the
// caller does not need a specific ordering.
const DefaultPriority = 50

// ContextInjection is one queued injection.
type ContextInjection struct {
	SessionID string
	Type      Type
	Point     Point
	Content   string
	Source    string
	Reason    string
	Priority  int
	CreatedAt time.Time

	sequence int64
}

// injectionHeap orders by ascending priority, then by ascending sequence
// number so same-priority injections drain FIFO.
type injectionHeap []*ContextInjection

func (h injectionHeap) Len() int { return len(h) }
func (h injectionHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].sequence < h[j].sequence
}
func (h injectionHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *injectionHeap) Push(x any) { *h = append(*h, x.(*ContextInjection)) }

func (h *injectionHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Manager queues context injections per session and drains them per
// injection point in priority order.
type Manager struct {
	mu       sync.Mutex
	queues   map[string]map[Point]*injectionHeap
	sequence int64
	bus      *bus.Bus
}

// NewManager returns an empty Manager. A nil bus is valid; events are then
// simply not published.
func NewManager(b *bus.Bus) *Manager {
	return &Manager{queues: make(map[string]map[Point]*injectionHeap), bus: b}
}

// InjectContext enqueues a new injection for sessionID, deriving its
// injection point from typ.
func (m *Manager) InjectContext(sessionID string, typ Type, content, reason string, priority int) *ContextInjection {
	return m.InjectContextAt(sessionID, typ, pointForType(typ), content, reason, priority)
}

// InjectContextAt enqueues a new injection at an explicit point, bypassing
// the type→point default. The supervision facade's REPLACE branch needs
// this: it pins a SUPPLEMENT injection to PRE_THINKING even though
// SUPPLEMENT's table default is PRE_LOOP.
func (m *Manager) InjectContextAt(sessionID string, typ Type, point Point, content, reason string, priority int) *ContextInjection {
	m.mu.Lock()
	m.sequence++
	inj := &ContextInjection{
		SessionID: sessionID,
		Type:      typ,
		Point:     point,
		Content:   content,
		Reason:    reason,
		Priority:  priority,
		sequence:  m.sequence,
		CreatedAt: time.Now(),
	}

	perSession, ok := m.queues[sessionID]
	if !ok {
		perSession = make(map[Point]*injectionHeap)
		m.queues[sessionID] = perSession
	}
	h, ok := perSession[inj.Point]
	if !ok {
		h = &injectionHeap{}
		heap.Init(h)
		perSession[inj.Point] = h
	}
	heap.Push(h, inj)
	m.mu.Unlock()

	if m.bus != nil {
		bus.Publish(m.bus, bus.ContextInjectionEvent{
			Source: bus.SourceCoordinatorAgent, Timestamp: time.Now(),
			SessionID: sessionID, InjectionType: string(typ), InjectionPoint: string(inj.Point),
		})
	}
	return inj
}

// GetPendingInjections drains every injection queued for sessionID at
// point, in ascending priority order (lower priority value first). The
// queue is empty afterward — this is a drain, not a peek.
func (m *Manager) GetPendingInjections(sessionID string, point Point) []*ContextInjection {
	m.mu.Lock()
	defer m.mu.Unlock()

	perSession, ok := m.queues[sessionID]
	if !ok {
		return nil
	}
	h, ok := perSession[point]
	if !ok || h.Len() == 0 {
		return nil
	}

	out := make([]*ContextInjection, 0, h.Len())
	for h.Len() > 0 {
		out = append(out, heap.Pop(h).(*ContextInjection))
	}
	return out
}

// InjectWarning queues a PRE_THINKING warning. reason may be empty; callers
// that have a triggering rule ID should pass it so it defaults the reason —
// Go's single-content-parameter call shape replaces the positional/keyword
// coalescing the original interface offered, since Go has no keyword args.
func (m *Manager) InjectWarning(sessionID, message, reason string) *ContextInjection {
	return m.InjectContext(sessionID, TypeWarning, message, reason, DefaultPriority)
}

// InjectIntervention queues an INTERVENTION-point injection.
func (m *Manager) InjectIntervention(sessionID, message, reason string) *ContextInjection {
	return m.InjectContext(sessionID, TypeIntervention, message, reason, DefaultPriority)
}

// InjectMemory queues a PRE_LOOP memory injection.
func (m *Manager) InjectMemory(sessionID, content, reason string) *ContextInjection {
	return m.InjectContext(sessionID, TypeMemory, content, reason, DefaultPriority)
}

// InjectObservation queues a PRE_LOOP observation injection.
func (m *Manager) InjectObservation(sessionID, observation, reason string) *ContextInjection {
	return m.InjectContext(sessionID, TypeObservation, observation, reason, DefaultPriority)
}

// InjectSupplement queues a SUPPLEMENT injection at an explicit point and
// priority — used by the supervision facade's REPLACE branch, which always
// supplements at PRE_THINKING priority 40 regardless of SUPPLEMENT's
// PRE_LOOP table default.
func (m *Manager) InjectSupplement(sessionID string, point Point, content, reason string, priority int) *ContextInjection {
	return m.InjectContextAt(sessionID, TypeSupplement, point, content, reason, priority)
}
