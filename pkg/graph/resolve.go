// Package graph resolves the service dependency graph into a start order.
package graph

import (
	"sort"
	"strings"

	"github.com/go-go-golems/stackctl/pkg/compose"
	"github.com/pkg/errors"
)

var (
	// ErrCyclicDependency is returned when depends_on edges form a cycle.
	ErrCyclicDependency = errors.New("cyclic dependency")

	// ErrUnknownDependency is returned when depends_on references a service
	// that is not declared.
	ErrUnknownDependency = errors.New("unknown dependency")
)

// Resolve topologically sorts the project's services by depends_on, so every
// service appears after all services it depends on. The order is
// deterministic (lexicographic tie-break). Both failure modes are pre-flight:
// nothing may start when Resolve errors.
func Resolve(p *compose.Project) ([]string, error) {
	names := p.ServiceNames()

	for _, name := range names {
		for dep := range p.Services[name].DependsOn {
			if _, ok := p.Services[dep]; !ok {
				return nil, errors.Wrapf(ErrUnknownDependency, "service %q depends on %q", name, dep)
			}
		}
	}

	const (
		white = iota // unvisited
		grey         // on the current DFS path
		black        // done
	)

	color := make(map[string]int, len(names))
	order := make([]string, 0, len(names))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch color[name] {
		case black:
			return nil
		case grey:
			cycle := append(path, name)
			return errors.Wrapf(ErrCyclicDependency, "%s", strings.Join(cycle, " -> "))
		}
		color[name] = grey

		deps := make([]string, 0, len(p.Services[name].DependsOn))
		for dep := range p.Services[name].DependsOn {
			deps = append(deps, dep)
		}
		sort.Strings(deps)

		for _, dep := range deps {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}

		color[name] = black
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}

	return order, nil
}

// Reverse returns the order reversed, for stopping services dependents-first.
func Reverse(order []string) []string {
	out := make([]string, len(order))
	for i, name := range order {
		out[len(order)-1-i] = name
	}
	return out
}
