package pcec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_SampleSizeAndDistinctness(t *testing.T) {
	g := NewPromptGenerator(1)

	p := g.Generate(Context{CapabilityCount: 5})
	require.Len(t, p.Questions, 3)
	assertDistinct(t, p.Questions)

	// Deep stagnation widens the sample to four.
	p = g.Generate(Context{State: State{StagnantStreak: 2}})
	require.Len(t, p.Questions, 4)
	assertDistinct(t, p.Questions)
}

func TestGenerate_Deterministic(t *testing.T) {
	ctx := Context{State: State{StagnantStreak: 1}, RecentFailures: 3}
	a := NewPromptGenerator(42).Generate(ctx)
	b := NewPromptGenerator(42).Generate(ctx)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different prompts (-a +b):\n%s", diff)
	}

	c := NewPromptGenerator(43).Generate(ctx)
	assert.NotEqual(t, a.Questions, c.Questions, "different seeds should usually differ")
}

func TestGenerate_PoolComposition(t *testing.T) {
	// Without stagnation or failures, only base questions can appear.
	g := NewPromptGenerator(7)
	p := g.Generate(Context{CapabilityCount: 10})
	for _, q := range p.Questions {
		assert.Contains(t, baseQuestions, q)
	}
}

func TestGenerate_FocusPriority(t *testing.T) {
	g := NewPromptGenerator(1)

	cases := []struct {
		name string
		ctx  Context
		want string
	}{
		{"stagnation wins over everything", Context{State: State{StagnantStreak: 1}, RecentFailures: 9, CapabilityCount: 0}, FocusStagnation},
		{"failures beat baseline", Context{RecentFailures: 3, CapabilityCount: 0}, FocusFailureAnalysis},
		{"few capabilities means baseline", Context{CapabilityCount: 2}, FocusBaseline},
		{"otherwise general", Context{CapabilityCount: 10}, FocusGeneral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, g.Generate(tc.ctx).Focus)
		})
	}
}

func assertDistinct(t *testing.T, questions []string) {
	t.Helper()
	seen := make(map[string]struct{})
	for _, q := range questions {
		_, dup := seen[q]
		assert.Falsef(t, dup, "duplicate question %q", q)
		seen[q] = struct{}{}
	}
}
