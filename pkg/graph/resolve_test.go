package graph

import (
	"testing"

	"github.com/go-go-golems/stackctl/pkg/compose"
	"github.com/stretchr/testify/require"
)

func project(services map[string]map[string]compose.Condition) *compose.Project {
	p := &compose.Project{Name: "test", Services: map[string]*compose.Service{}}
	for name, deps := range services {
		p.Services[name] = &compose.Service{Name: name, Image: name + ":1", DependsOn: deps}
	}
	return p
}

func TestResolve_DependenciesComeFirst(t *testing.T) {
	p := project(map[string]map[string]compose.Condition{
		"relay": nil,
		"bot":   {"relay": compose.ConditionHealthy},
		"web":   {"bot": compose.ConditionStarted, "relay": compose.ConditionStarted},
	})

	order, err := Resolve(p)
	require.NoError(t, err)
	require.Len(t, order, 3)

	pos := map[string]int{}
	for i, name := range order {
		pos[name] = i
	}
	require.Less(t, pos["relay"], pos["bot"])
	require.Less(t, pos["bot"], pos["web"])
}

func TestResolve_Deterministic(t *testing.T) {
	p := project(map[string]map[string]compose.Condition{
		"c": nil, "a": nil, "b": nil,
	})

	first, err := Resolve(p)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, first)

	for i := 0; i < 10; i++ {
		again, err := Resolve(p)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestResolve_Cycle(t *testing.T) {
	p := project(map[string]map[string]compose.Condition{
		"a": {"b": compose.ConditionStarted},
		"b": {"c": compose.ConditionStarted},
		"c": {"a": compose.ConditionStarted},
	})

	_, err := Resolve(p)
	require.ErrorIs(t, err, ErrCyclicDependency)
	require.Contains(t, err.Error(), "->")
}

func TestResolve_SelfCycle(t *testing.T) {
	p := project(map[string]map[string]compose.Condition{
		"a": {"a": compose.ConditionStarted},
	})

	_, err := Resolve(p)
	require.ErrorIs(t, err, ErrCyclicDependency)
}

func TestResolve_UnknownDependency(t *testing.T) {
	p := project(map[string]map[string]compose.Condition{
		"bot": {"relay": compose.ConditionHealthy},
	})

	_, err := Resolve(p)
	require.ErrorIs(t, err, ErrUnknownDependency)
	require.Contains(t, err.Error(), `"relay"`)
}

func TestReverse(t *testing.T) {
	require.Equal(t, []string{"c", "b", "a"}, Reverse([]string{"a", "b", "c"}))
	require.Empty(t, Reverse(nil))
}
