package lifecycle

import "sort"

// resolverNode is the minimal view the resolver needs of a registry entry:
// its name, its declared dependency names, and its registration index for
// deterministic tie-breaking.
type resolverNode struct {
	name  string
	deps  []string
	index int
}

// resolveOrder computes a Kahn-style topological order over nodes, treating
// each dependency name as an edge dependency -> dependent. Dependency names
// that do not correspond to any node in nodes are ignored for ordering
// purposes (they are validated separately, at start time). When several
// nodes simultaneously have zero remaining indegree, the one with the
// smallest registration index is chosen first, so the resulting order is
// deterministic for a fixed registry content and insertion history
// (spec testable property 5).
//
// If the returned order is shorter than nodes, a cycle exists; callers
// should follow up with findCycle to extract a concrete path for error
// reporting.
func resolveOrder(nodes []resolverNode) []string {
	indegree := make(map[string]int, len(nodes))
	children := make(map[string][]string, len(nodes))
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		indegree[n.name] = 0
		known[n.name] = true
	}
	for _, n := range nodes {
		for _, dep := range n.deps {
			if !known[dep] {
				continue
			}
			indegree[n.name]++
			children[dep] = append(children[dep], n.name)
		}
	}

	var q fifoQueue[resolverNode]
	for _, n := range nodes {
		if indegree[n.name] == 0 {
			q.push(n)
		}
	}
	sortFrontier(&q)

	byName := make(map[string]resolverNode, len(nodes))
	for _, n := range nodes {
		byName[n.name] = n
	}

	order := make([]string, 0, len(nodes))
	for !q.empty() {
		n, _ := q.pop()
		order = append(order, n.name)
		for _, child := range children[n.name] {
			indegree[child]--
			if indegree[child] == 0 {
				q.push(byName[child])
			}
		}
		sortFrontier(&q)
	}
	return order
}

// sortFrontier keeps the Kahn frontier ordered by ascending registration
// index so pop always yields the deterministic tie-break winner.
func sortFrontier(q *fifoQueue[resolverNode]) {
	sort.SliceStable(q.items, func(i, j int) bool {
		return q.items[i].index < q.items[j].index
	})
}

// findCycle returns one concrete cycle among nodes, used for error reporting
// when resolveOrder's output is shorter than len(nodes). It performs a plain
// DFS with a recursion-stack marker; the first back-edge found yields the
// cycle path, trimmed to start at the repeated node.
func findCycle(nodes []resolverNode) []string {
	byName := make(map[string]resolverNode, len(nodes))
	for _, n := range nodes {
		byName[n.name] = n
	}
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.name] = true
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(nodes))
	var path []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		path = append(path, name)
		for _, dep := range byName[name].deps {
			if !known[dep] {
				continue
			}
			switch color[dep] {
			case white:
				if visit(dep) {
					return true
				}
			case gray:
				// Found the back-edge; extract the cycle starting at dep.
				for i, p := range path {
					if p == dep {
						cycle = append([]string{}, path[i:]...)
						cycle = append(cycle, dep)
						break
					}
				}
				return true
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return false
	}

	for _, n := range nodes {
		if color[n.name] == white {
			if visit(n.name) {
				return cycle
			}
		}
	}
	return nil
}
