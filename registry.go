package lifecycle

import (
	"fmt"
	"sync"
)

// InsertPosition selects where a newly registered component lands relative
// to the existing registry order.
type InsertPosition int

const (
	PositionEnd InsertPosition = iota
	PositionStart
	PositionBefore
	PositionAfter
)

// registryEntry is the manager's private record for one registered
// component: the component itself, its declared contract, and its live
// state. Its position is its current index in the registry slice (not
// stored in the entry); regIndex is the monotonically increasing
// registration counter used as the
// resolver's tie-break key, and is stable across later unregistrations.
type registryEntry struct {
	component Component
	name      string
	deps      []string
	optional  bool
	timeouts  Timeouts
	regIndex  int
	state     *stateRecord
	handle    *scopedHandle
}

// RegisterResult is the rich outcome of Register/InsertAt (spec §4.2).
type RegisterResult struct {
	Success           bool
	Name              string
	IndexBefore       int
	IndexAfter        int
	StartupOrder      []string
	PositionRespected bool
	TargetFound       bool
	Code              Code
	Err               error
}

// registry is the ordered, name-indexed collection of components. All
// mutation goes through Register/InsertAt/Unregister, which validate via a
// trial copy before committing (spec §4.2 commit rule).
type registry struct {
	mu        sync.RWMutex
	entries   []*registryEntry
	byName    map[string]int // name -> index into entries
	nextIndex int
}

func newRegistry() *registry {
	return &registry{byName: make(map[string]int)}
}

// cloneNodes produces the resolverNode view of the current registry plus,
// optionally, one additional candidate node — the trial copy used to
// validate a pending insertion before it is committed.
func (r *registry) cloneNodes(extra *resolverNode) []resolverNode {
	nodes := make([]resolverNode, 0, len(r.entries)+1)
	for _, e := range r.entries {
		nodes = append(nodes, resolverNode{name: e.name, deps: e.deps, index: e.regIndex})
	}
	if extra != nil {
		nodes = append(nodes, *extra)
	}
	return nodes
}

// insertIndexFor computes where a new entry should land in r.entries for
// the requested position, reporting whether the manual position could be
// honored and whether a named target was found.
func (r *registry) insertIndexFor(pos InsertPosition, target string) (idx int, respected bool, targetFound bool, err error) {
	switch pos {
	case PositionEnd:
		return len(r.entries), true, true, nil
	case PositionStart:
		return 0, true, true, nil
	case PositionBefore, PositionAfter:
		ti, ok := r.byName[target]
		if !ok {
			return len(r.entries), false, false, ErrTargetNotFound
		}
		if pos == PositionBefore {
			return ti, true, true, nil
		}
		return ti + 1, true, true, nil
	default:
		return 0, false, false, ErrInvalidPosition
	}
}

// register validates and, on success, commits a new entry at the requested
// position. name/deps/optional/timeouts are taken from component's
// declared contract. isStarting/isShuttingDown are supplied by the manager
// so the registry layer does not need to know about bulk-operation state
// beyond honoring the "new component is not a required dependency of
// anything already registered" rule during an in-flight startup.
func (r *registry) register(component Component, pos InsertPosition, target string, isShuttingDown, isStarting bool) RegisterResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := component.Name()
	res := RegisterResult{Name: name}

	if isShuttingDown {
		res.Code = CodeShutdownInProgress
		res.Err = ErrShutdownInProgress
		return res
	}
	if !ValidateName(name) {
		res.Code = CodeUnknownError
		res.Err = fmt.Errorf("%w: %q", ErrInvalidComponentName, name)
		return res
	}
	if _, exists := r.byName[name]; exists {
		res.Code = CodeDuplicateName
		res.Err = ErrDuplicateName
		return res
	}
	for _, e := range r.entries {
		if e.component == component {
			res.Code = CodeDuplicateInstance
			res.Err = ErrDuplicateInstance
			return res
		}
	}

	idx, respected, targetFound, posErr := r.insertIndexFor(pos, target)
	if posErr != nil {
		if posErr == ErrTargetNotFound {
			res.Code = CodeTargetNotFound
		} else {
			res.Code = CodeInvalidPosition
		}
		res.Err = posErr
		res.TargetFound = targetFound
		return res
	}

	deps := append([]string{}, component.Dependencies()...)

	if isStarting {
		// A component joining mid-startup must not be a required dependency
		// of anything already registered (spec §4.2 "Registration during
		// startup").
		for _, e := range r.entries {
			if e.optional {
				continue
			}
			for _, d := range e.deps {
				if d == name {
					res.Code = CodeStartupInProgress
					res.Err = ErrStartupInProgress
					return res
				}
			}
		}
	}

	candidate := resolverNode{name: name, deps: deps, index: r.nextIndex}
	trial := r.cloneNodes(&candidate)
	order := resolveOrder(trial)
	if len(order) != len(trial) {
		res.Code = CodeDependencyCycle
		res.Err = fmt.Errorf("%w: %v", ErrDependencyCycle, findCycle(trial))
		return res
	}

	entry := &registryEntry{
		component: component,
		name:      name,
		deps:      deps,
		optional:  component.Optional(),
		timeouts:  component.Timeouts().normalize(),
		regIndex:  r.nextIndex,
		state:     newStateRecord(),
	}
	r.nextIndex++

	res.IndexBefore = len(r.entries)
	r.entries = append(r.entries, nil)
	copy(r.entries[idx+1:], r.entries[idx:])
	r.entries[idx] = entry
	r.reindex()
	res.IndexAfter = idx
	res.PositionRespected = respected
	res.TargetFound = targetFound
	res.StartupOrder = order
	res.Success = true
	res.Code = CodeOK
	return res
}

// reindex rebuilds byName after a slice splice changes positions.
func (r *registry) reindex() {
	r.byName = make(map[string]int, len(r.entries))
	for i, e := range r.entries {
		r.byName[e.name] = i
	}
}

func (r *registry) get(name string) (*registryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.entries[i], true
}

func (r *registry) has(name string) bool {
	_, ok := r.get(name)
	return ok
}

func (r *registry) all() []*registryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*registryEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// names returns every registered component name, in current registry order.
func (r *registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.name
	}
	return out
}

// startupOrder computes the current topological order without mutating
// anything, for diagnostic queries (the scoped handle exposes this).
func (r *registry) startupOrder() ([]string, error) {
	r.mu.RLock()
	nodes := r.cloneNodes(nil)
	r.mu.RUnlock()
	order := resolveOrder(nodes)
	if len(order) != len(nodes) {
		return nil, fmt.Errorf("%w: %v", ErrDependencyCycle, findCycle(nodes))
	}
	return order, nil
}

// unregister removes name from the registry. The caller (manager) is
// responsible for stopping the component first when required; unregister
// itself only performs the bookkeeping removal plus the dependents guard.
func (r *registry) unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.byName[name]
	if !ok {
		return ErrUnknownComponent
	}
	for _, e := range r.entries {
		if e.name == name {
			continue
		}
		for _, d := range e.deps {
			if d == name && e.state.get() == StateRunning {
				return ErrHasRunningDependents
			}
		}
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	r.reindex()
	return nil
}

// validateDependencies reports every missing dependency (name, missing dep,
// whether the dependent is optional) and every cycle present in the current
// registry, without mutating or erroring (spec §4.2 validateDependencies).
type MissingDependency struct {
	Component           string
	MissingName          string
	ComponentIsOptional bool
}

func (r *registry) validateDependencies() ([]MissingDependency, [][]string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	known := make(map[string]bool, len(r.entries))
	for _, e := range r.entries {
		known[e.name] = true
	}

	var missing []MissingDependency
	for _, e := range r.entries {
		for _, d := range e.deps {
			if !known[d] {
				missing = append(missing, MissingDependency{
					Component:           e.name,
					MissingName:          d,
					ComponentIsOptional: e.optional,
				})
			}
		}
	}

	nodes := r.cloneNodes(nil)
	var cycles [][]string
	order := resolveOrder(nodes)
	if len(order) != len(nodes) {
		remaining := make([]resolverNode, 0, len(nodes))
		inOrder := make(map[string]bool, len(order))
		for _, n := range order {
			inOrder[n] = true
		}
		for _, n := range nodes {
			if !inOrder[n.name] {
				remaining = append(remaining, n)
			}
		}
		if c := findCycle(remaining); c != nil {
			cycles = append(cycles, c)
		}
	}
	return missing, cycles
}
