package pipeline

import (
	"sort"
	"strings"

	"git.home.luguber.info/inful/contentmill/internal/errors"
)

// executionPlan is the validated dependency order for one run.
type executionPlan struct {
	// order is a valid topological order over the selected pipelines,
	// deterministic for a given graph.
	order []string

	// dependents maps a pipeline to the pipelines waiting on it.
	dependents map[string][]string

	// indegree is the unmet dependency count per pipeline.
	indegree map[string]int
}

// buildExecutionPlan validates the dependency graph over the selected
// pipelines and computes a deterministic topological order. Dependencies of
// selected pipelines are included transitively. A cycle is a fatal
// configuration error reported with the involved pipeline names, detected
// before any execution begins.
func (e *Engine) buildExecutionPlan(selected []string) (*executionPlan, error) {
	inSet := make(map[string]bool)
	var include func(name string) error
	include = func(name string) error {
		if inSet[name] {
			return nil
		}
		p, ok := e.pipelines[name]
		if !ok {
			return errors.ConfigurationErrorf("pipeline %q not found", name)
		}
		inSet[name] = true
		for _, dep := range p.Dependencies() {
			if dep == name {
				return errors.ConfigurationErrorf("pipeline %q depends on itself", name)
			}
			if err := include(dep); err != nil {
				return errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal,
					"resolving dependencies for "+name)
			}
		}
		return nil
	}
	for _, name := range selected {
		if err := include(name); err != nil {
			return nil, err
		}
	}

	// Isolated pipelines are scheduled independently: they may neither
	// declare nor receive dependencies.
	for name := range inSet {
		p := e.pipelines[name]
		if p.IsIsolated() && len(p.Dependencies()) > 0 {
			return nil, errors.ConfigurationErrorf("isolated pipeline %q must not declare dependencies", name)
		}
		for _, dep := range p.Dependencies() {
			if e.pipelines[dep].IsIsolated() {
				return nil, errors.ConfigurationErrorf("pipeline %q depends on isolated pipeline %q", name, dep)
			}
		}
	}

	dependents := make(map[string][]string)
	indegree := make(map[string]int)
	for name := range inSet {
		indegree[name] = 0
	}
	for name := range inSet {
		for _, dep := range e.pipelines[name].Dependencies() {
			dependents[dep] = append(dependents[dep], name)
			indegree[name]++
		}
	}

	// Kahn's algorithm with sorted queues for a deterministic order.
	remaining := make(map[string]int, len(indegree))
	var queue []string
	for name, deg := range indegree {
		remaining[name] = deg
		if deg == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		deps := append([]string(nil), dependents[current]...)
		sort.Strings(deps)
		for _, dependent := range deps {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(inSet) {
		var cycle []string
		for name := range inSet {
			if remaining[name] > 0 {
				cycle = append(cycle, name)
			}
		}
		sort.Strings(cycle)
		return nil, errors.ConfigurationErrorf(
			"cyclic pipeline dependency involving: %s", strings.Join(cycle, ", "))
	}

	return &executionPlan{
		order:      order,
		dependents: dependents,
		indegree:   indegree,
	}, nil
}

// selectPipelines resolves the requested pipeline names, or every pipeline
// flagged default when no names are given. Isolated pipelines run only when
// explicitly named.
func (e *Engine) selectPipelines(names []string) ([]string, error) {
	if len(names) > 0 {
		for _, name := range names {
			if _, ok := e.pipelines[name]; !ok {
				return nil, errors.ConfigurationErrorf("pipeline %q not found", name)
			}
		}
		return names, nil
	}

	var selected []string
	for name, p := range e.pipelines {
		if p.IsDefault() && !p.IsIsolated() {
			selected = append(selected, name)
		}
	}
	sort.Strings(selected)
	return selected, nil
}
