// Package dag provides the directed acyclic graph used to order resolved
// Spaces. It rejects cycles at edge-insertion time, reports the offending
// path, and produces a topological order whose ties are broken by each
// node's discovery sequence so repeated runs agree.
package dag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCycle is returned when an edge would close a dependency cycle.
var ErrCycle = errors.New("cycle detected")

// ErrNodeNotFound is returned when an operation references a non-existent node.
var ErrNodeNotFound = errors.New("node not found")

// ErrDuplicateNode is returned when adding a node that already exists.
var ErrDuplicateNode = errors.New("duplicate node")

// Node is a vertex in the graph. Seq records the order in which the node
// was first discovered and is the tie-breaker for TopologicalSort.
type Node struct {
	ID  string
	Seq int
}

// CycleError carries the full cycle path, starting and ending at the same node.
type CycleError struct {
	Path []string
}

// Error renders the cycle as a -> b -> a.
func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycle, strings.Join(e.Path, " -> "))
}

// Unwrap returns ErrCycle.
func (e *CycleError) Unwrap() error { return ErrCycle }

// DAG is a directed acyclic graph. Edges point from a node to its
// dependencies: if A depends on B, there is an edge from A to B.
type DAG struct {
	nodes map[string]*Node
	// adjacency maps nodeID → dependency IDs in insertion order.
	adjacency map[string][]string
	// reverse maps nodeID → set of dependent IDs.
	reverse map[string]map[string]bool
}

// New creates an empty DAG.
func New() *DAG {
	return &DAG{
		nodes:     make(map[string]*Node),
		adjacency: make(map[string][]string),
		reverse:   make(map[string]map[string]bool),
	}
}

// AddNode adds a node with the given discovery sequence number.
func (d *DAG) AddNode(id string, seq int) error {
	if _, exists := d.nodes[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}
	d.nodes[id] = &Node{ID: id, Seq: seq}
	d.adjacency[id] = nil
	d.reverse[id] = make(map[string]bool)
	return nil
}

// AddEdge records that from depends on to. Both nodes must exist. An edge
// that would introduce a cycle (including a self-loop) is rejected with a
// *CycleError whose path runs from -> to -> ... -> from.
func (d *DAG) AddEdge(from, to string) error {
	if _, ok := d.nodes[from]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, from)
	}
	if _, ok := d.nodes[to]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, to)
	}
	if d.hasEdge(from, to) {
		return nil
	}
	if from == to {
		return &CycleError{Path: []string{from, from}}
	}
	if p := d.Path(to, from); p != nil {
		return &CycleError{Path: append([]string{from}, p...)}
	}
	d.adjacency[from] = append(d.adjacency[from], to)
	d.reverse[to][from] = true
	return nil
}

// TopologicalSort returns node IDs with every dependency before its
// dependents. Whenever several nodes are ready, the one discovered first
// is emitted first, which makes the order total and stable.
func (d *DAG) TopologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.nodes))
	var ready []string
	for id := range d.nodes {
		inDegree[id] = len(d.adjacency[id])
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	sorted := make([]string, 0, len(d.nodes))
	for len(ready) > 0 {
		ready = d.seqSorted(ready)
		id := ready[0]
		ready = ready[1:]
		sorted = append(sorted, id)

		for dependent := range d.reverse[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(sorted) != len(d.nodes) {
		return nil, fmt.Errorf("%w: not all nodes could be ordered (%d of %d)",
			ErrCycle, len(sorted), len(d.nodes))
	}
	return sorted, nil
}

// Ancestors returns all transitive dependencies of id sorted by discovery
// sequence. Returns nil if the node does not exist.
func (d *DAG) Ancestors(id string) []string {
	if _, ok := d.nodes[id]; !ok {
		return nil
	}
	visited := make(map[string]bool)
	d.collect(id, visited, func(n string) []string { return d.adjacency[n] })
	return d.seqSorted(keys(visited))
}

// Descendants returns every node that transitively depends on id, sorted
// by discovery sequence.
func (d *DAG) Descendants(id string) []string {
	if _, ok := d.nodes[id]; !ok {
		return nil
	}
	visited := make(map[string]bool)
	d.collect(id, visited, func(n string) []string { return keys(d.reverse[n]) })
	return d.seqSorted(keys(visited))
}

// Path returns a dependency path src -> ... -> dst following forward
// edges, or nil when dst is unreachable from src.
func (d *DAG) Path(src, dst string) []string {
	if src == dst {
		return []string{src}
	}
	prev := map[string]string{src: ""}
	queue := []string{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dep := range d.adjacency[cur] {
			if _, seen := prev[dep]; seen {
				continue
			}
			prev[dep] = cur
			if dep == dst {
				var path []string
				for n := dst; n != ""; n = prev[n] {
					path = append([]string{n}, path...)
				}
				return path
			}
			queue = append(queue, dep)
		}
	}
	return nil
}

func (d *DAG) hasEdge(from, to string) bool {
	for _, dep := range d.adjacency[from] {
		if dep == to {
			return true
		}
	}
	return false
}

func (d *DAG) collect(id string, visited map[string]bool, next func(string) []string) {
	for _, n := range next(id) {
		if !visited[n] {
			visited[n] = true
			d.collect(n, visited, next)
		}
	}
}

// seqSorted sorts ids in place by discovery sequence, then ID.
func (d *DAG) seqSorted(ids []string) []string {
	sort.Slice(ids, func(i, j int) bool {
		si, sj := d.nodes[ids[i]].Seq, d.nodes[ids[j]].Seq
		if si != sj {
			return si < sj
		}
		return ids[i] < ids[j]
	})
	return ids
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
