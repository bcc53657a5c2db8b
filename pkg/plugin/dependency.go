package plugin

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
)

// DependencyGraph holds declared dependencies over a candidate set
type DependencyGraph struct {
	Nodes map[string]Descriptor
	Edges map[string][]string // id -> dependency ids
}

// Resolver computes a dependency-respecting activation order over a batch
// of validated plugins. Failures are confined to the affected subgraph:
// plugins with missing, incompatible or cyclic dependencies (and their
// transitive dependents) are reported per id, everything else still gets
// an order slot.
type Resolver struct {
	logger zerolog.Logger
}

// NewResolver creates a new dependency resolver
func NewResolver(logger zerolog.Logger) *Resolver {
	return &Resolver{
		logger: logger.With().Str("component", "dependency-resolver").Logger(),
	}
}

// BuildGraph builds a dependency graph from a candidate descriptor set.
// Edges point only at dependencies inside the candidate set; dependencies
// already satisfied by the registry impose no ordering constraint.
func (r *Resolver) BuildGraph(candidates map[string]Descriptor) *DependencyGraph {
	graph := &DependencyGraph{
		Nodes: make(map[string]Descriptor, len(candidates)),
		Edges: make(map[string][]string, len(candidates)),
	}

	for id, desc := range candidates {
		graph.Nodes[id] = desc
		graph.Edges[id] = []string{}
	}
	for id, desc := range graph.Nodes {
		for depID := range desc.Dependencies {
			if _, inBatch := graph.Nodes[depID]; inBatch {
				graph.Edges[id] = append(graph.Edges[id], depID)
			}
		}
		sort.Strings(graph.Edges[id])
	}

	return graph
}

// Lookup resolves an id to a descriptor outside the candidate batch,
// typically backed by Registry.Get.
type Lookup func(id string) (Descriptor, bool)

// Resolve validates dependencies and returns a deterministic activation
// order for the satisfiable subset plus per-id errors for the rest.
// Given the same graph, the order is always identical: ties are broken
// lexicographically by id.
func (r *Resolver) Resolve(candidates map[string]Descriptor, registered Lookup) ([]string, map[string]error) {
	graph := r.BuildGraph(candidates)
	errs := make(map[string]error)

	r.validateVersions(graph, registered, errs)

	for _, cycle := range r.DetectCycles(graph) {
		cycleErr := &CycleError{Cycle: cycle}
		for _, id := range cycle {
			if _, already := errs[id]; !already {
				errs[id] = cycleErr
			}
		}
	}

	r.failDependents(graph, errs)

	order := r.sortRemaining(graph, errs)

	r.logger.Debug().
		Int("ordered", len(order)).
		Int("failed", len(errs)).
		Strs("order", order).
		Msg("Computed activation order")

	return order, errs
}

// validateVersions checks that every declared dependency exists (in the
// batch or already registered) and that its version satisfies the
// declared constraint.
func (r *Resolver) validateVersions(graph *DependencyGraph, registered Lookup, errs map[string]error) {
	for id, desc := range graph.Nodes {
		for depID, constraint := range desc.Dependencies {
			depDesc, inBatch := graph.Nodes[depID]
			if !inBatch {
				if registered == nil {
					errs[id] = &DependencyError{ID: id, Dependency: depID, Constraint: constraint}
					continue
				}
				var found bool
				depDesc, found = registered(depID)
				if !found {
					errs[id] = &DependencyError{ID: id, Dependency: depID, Constraint: constraint}
					continue
				}
			}

			if constraint == "" {
				continue
			}
			if err := checkConstraint(depDesc.Version, constraint); err != nil {
				r.logger.Error().
					Str("plugin", id).
					Str("dependency", depID).
					Str("required", constraint).
					Str("actual", depDesc.Version).
					Msg("Incompatible dependency version")
				errs[id] = &DependencyError{
					ID:         id,
					Dependency: depID,
					Constraint: constraint,
					Actual:     depDesc.Version,
				}
			}
		}
	}
}

// DetectCycles detects cycles in the dependency graph using DFS.
// Nodes are visited in sorted order so detected cycles are deterministic.
func (r *Resolver) DetectCycles(graph *DependencyGraph) [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := []string{}

	var dfs func(string)
	dfs = func(id string) {
		visited[id] = true
		recStack[id] = true
		path = append(path, id)

		for _, depID := range graph.Edges[id] {
			if !visited[depID] {
				dfs(depID)
			} else if recStack[depID] {
				// The cycle is exactly the path segment from depID back
				// to id. Recording it and carrying on lets the search
				// find further independent cycles.
				for i, pathID := range path {
					if pathID == depID {
						cycle := make([]string, len(path)-i)
						copy(cycle, path[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}

		// Unwind so nodes that merely reach a cycle are never reported
		// as members of it
		path = path[:len(path)-1]
		recStack[id] = false
	}

	for _, id := range sortedNodeIDs(graph) {
		if !visited[id] {
			dfs(id)
		}
	}

	if len(cycles) > 0 {
		r.logger.Warn().Int("count", len(cycles)).Msg("Detected dependency cycles")
	}

	return cycles
}

// failDependents propagates failure to every plugin that transitively
// depends on an already-failed plugin in the batch.
func (r *Resolver) failDependents(graph *DependencyGraph, errs map[string]error) {
	for {
		grew := false
		for id := range graph.Nodes {
			if _, failed := errs[id]; failed {
				continue
			}
			for _, depID := range graph.Edges[id] {
				if _, depFailed := errs[depID]; depFailed {
					errs[id] = &DependencyError{ID: id, Dependency: depID}
					grew = true
					break
				}
			}
		}
		if !grew {
			return
		}
	}
}

// sortRemaining runs Kahn's algorithm over the non-failed subgraph with a
// lexicographically sorted frontier, yielding a stable topological order.
func (r *Resolver) sortRemaining(graph *DependencyGraph, errs map[string]error) []string {
	indegree := make(map[string]int)
	dependents := make(map[string][]string)

	for id := range graph.Nodes {
		if _, failed := errs[id]; failed {
			continue
		}
		indegree[id] = 0
	}
	for id := range indegree {
		for _, depID := range graph.Edges[id] {
			if _, ok := indegree[depID]; !ok {
				continue
			}
			indegree[id]++
			dependents[depID] = append(dependents[depID], id)
		}
	}

	frontier := []string{}
	for id, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, id)
		}
	}
	sort.Strings(frontier)

	order := make([]string, 0, len(indegree))
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)

		released := []string{}
		for _, dependent := range dependents[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				released = append(released, dependent)
			}
		}
		if len(released) > 0 {
			frontier = append(frontier, released...)
			sort.Strings(frontier)
		}
	}

	return order
}

// Dependents returns all plugins in the graph that depend on the given id
func (r *Resolver) Dependents(graph *DependencyGraph, pluginID string) []string {
	var dependents []string
	for id, deps := range graph.Edges {
		for _, depID := range deps {
			if depID == pluginID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

func checkConstraint(version, constraint string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid version %s: %w", version, err)
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("invalid version constraint %s: %w", constraint, err)
	}
	if !c.Check(v) {
		return fmt.Errorf("version %s does not satisfy constraint %s", version, constraint)
	}
	return nil
}

func sortedNodeIDs(graph *DependencyGraph) []string {
	ids := make([]string, 0, len(graph.Nodes))
	for id := range graph.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
