package mutation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evoloop/internal/gene"
)

func TestNew_Validation(t *testing.T) {
	_, err := New("experimental", "target", "a measurable effect", "g1")
	assert.Error(t, err)

	_, err = New(gene.CategoryRepair, "", "a measurable effect", "g1")
	assert.Error(t, err)

	_, err = New(gene.CategoryRepair, "target", "", "g1")
	assert.Error(t, err)

	m, err := New(gene.CategoryRepair, "target", "a measurable effect", "g1")
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.False(t, m.CreatedAt.IsZero())
}

func TestNew_RiskInheritance(t *testing.T) {
	cases := []struct {
		cat  gene.Category
		want Risk
	}{
		{gene.CategoryRepair, RiskLow},
		{gene.CategoryOptimize, RiskLowMedium},
		{gene.CategoryInnovate, RiskMedium},
	}
	for _, tc := range cases {
		m, err := New(tc.cat, "target", "a measurable effect", "")
		require.NoError(t, err)
		assert.Equalf(t, tc.want, m.Risk, "category %s", tc.cat)
	}
}

func TestFromGene(t *testing.T) {
	g := &gene.Gene{
		ID:             "g1",
		Name:           "Stabilize recurring error",
		Category:       gene.CategoryRepair,
		SignalPatterns: []string{"log_error"},
		StrategySteps:  []string{"locate the failure", "fix it"},
	}
	m, err := FromGene(g)
	require.NoError(t, err)
	assert.Equal(t, "g1", m.GeneID)
	assert.Equal(t, gene.CategoryRepair, m.Category)
	assert.Contains(t, m.ExpectedEffect, "locate the failure")

	_, err = FromGene(&gene.Gene{ID: "bad"})
	assert.Error(t, err)
}

func TestAssessRisk_Escalation(t *testing.T) {
	m, err := New(gene.CategoryRepair, "target", "a measurable effect", "g1")
	require.NoError(t, err)

	// Small blast keeps the base risk.
	assert.Equal(t, RiskLow, AssessRisk(m, BlastRadius{Files: 2, Lines: 40}))
	assert.Empty(t, m.Warnings)

	// Too many files escalates.
	assert.Equal(t, RiskMedium, AssessRisk(m, BlastRadius{Files: 11, Lines: 40}))
	assert.Len(t, m.Warnings, 1)

	// Too many lines escalates too.
	m2, _ := New(gene.CategoryOptimize, "target", "a measurable effect", "g1")
	assert.Equal(t, RiskMedium, AssessRisk(m2, BlastRadius{Files: 2, Lines: 501}))
}

func TestAssessRisk_InnovateBudget(t *testing.T) {
	m, err := New(gene.CategoryInnovate, "target", "a measurable effect", "g1")
	require.NoError(t, err)

	// Six files is within the general budget but over the innovate budget.
	assert.Equal(t, RiskMedium, AssessRisk(m, BlastRadius{Files: 6, Lines: 100}))
	require.Len(t, m.Warnings, 1)
	assert.Contains(t, m.Warnings[0], "innovate")
}

func TestWeightsValidate(t *testing.T) {
	for name, w := range Presets {
		assert.NoErrorf(t, w.Validate(), "preset %s", name)
	}
	assert.Error(t, Weights{gene.CategoryRepair: 100}.Validate())
	assert.Error(t, Weights{
		gene.CategoryRepair: 50, gene.CategoryOptimize: 40, gene.CategoryInnovate: 20,
	}.Validate())
}

func TestCheckAllowance_ZeroWeight(t *testing.T) {
	w := Weights{gene.CategoryRepair: 80, gene.CategoryOptimize: 20, gene.CategoryInnovate: 0}
	a := CheckAllowance(gene.CategoryInnovate, w, nil)
	assert.False(t, a.Allowed)
	assert.NotEmpty(t, a.Reason)
}

func TestCheckAllowance_ShortHistory(t *testing.T) {
	w := Presets["balanced"]
	recent := []gene.Category{gene.CategoryRepair, gene.CategoryRepair}
	assert.True(t, CheckAllowance(gene.CategoryRepair, w, recent).Allowed)
}

func TestCheckAllowance_QuotaExceeded(t *testing.T) {
	w := Presets["balanced"] // innovate target 15%

	// Ten recent mutations, half of them innovate: 50% > 15+20.
	var recent []gene.Category
	for i := 0; i < 5; i++ {
		recent = append(recent, gene.CategoryInnovate, gene.CategoryRepair)
	}
	a := CheckAllowance(gene.CategoryInnovate, w, recent)
	assert.False(t, a.Allowed)
	assert.Contains(t, a.Reason, "quota exceeded")

	// Repair at 50% is within 50+20.
	assert.True(t, CheckAllowance(gene.CategoryRepair, w, recent).Allowed)
}

func TestCheckAllowance_WindowIsRecent(t *testing.T) {
	w := Presets["balanced"]

	// Old innovate burst followed by ten repairs: the window only sees repairs.
	var recent []gene.Category
	for i := 0; i < 10; i++ {
		recent = append(recent, gene.CategoryInnovate)
	}
	for i := 0; i < 10; i++ {
		recent = append(recent, gene.CategoryRepair)
	}
	assert.True(t, CheckAllowance(gene.CategoryInnovate, w, recent).Allowed)
}

func TestDetectPreset(t *testing.T) {
	assert.Equal(t, DefaultPreset, DetectPreset(HistoryStats{}))

	assert.Equal(t, "conservative", DetectPreset(HistoryStats{Total: 10, Failures: 5}))

	assert.Equal(t, "aggressive", DetectPreset(HistoryStats{Total: 10, Plateau: true}))

	// Plateau with healthy innovation stays balanced.
	assert.Equal(t, DefaultPreset, DetectPreset(HistoryStats{Total: 10, InnovateCount: 3, Plateau: true}))
}
