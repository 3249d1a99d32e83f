package tools

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ragengine/internal/persistence/relational"
)

func TestIsDelayedRules(t *testing.T) {
	assert.True(t, IsDelayed(relational.Task{Status: "delayed", PlannedProgress: 100, ActualProgress: 100}))
	assert.True(t, IsDelayed(relational.Task{Status: "in_progress", PlannedProgress: 100, ActualProgress: 80}))
	assert.True(t, IsDelayed(relational.Task{Status: "in_progress", PlannedProgress: 100, ActualProgress: 100, VarianceRate: -6}))
	assert.False(t, IsDelayed(relational.Task{Status: "in_progress", PlannedProgress: 100, ActualProgress: 96}))
}

func TestCompletionPredictionInsufficientOnZeroSPI(t *testing.T) {
	tasks := []relational.Task{{PlannedProgress: 0, ActualProgress: 0}}
	pred := CompletionPredictionDays(tasks, 10)
	assert.True(t, pred.Insufficient)
}

func TestCompletionPredictionComputesEACDays(t *testing.T) {
	tasks := []relational.Task{{PlannedProgress: 100, ActualProgress: 50}}
	pred := CompletionPredictionDays(tasks, 30)
	assert.False(t, pred.Insufficient)
	assert.InDelta(t, 60.0, pred.EACDays, 1e-9)
}

func TestCostCPIAndEAC(t *testing.T) {
	c := relational.Cost{BudgetedCost: 1000, ActualCost: 600, ProgressPct: 50, BudgetAtComp: 1000}
	assert.InDelta(t, 500, c.EarnedValue(), 1e-9)
	assert.InDelta(t, 500.0/600.0, c.CPI(), 1e-9)
	assert.InDelta(t, 1000/(500.0/600.0), c.EAC(), 1e-6)
}

func TestIdentifyOverrunsSeverity(t *testing.T) {
	costs := []relational.Cost{
		{ID: "a", Category: "material", BudgetedCost: 100, ActualCost: 125},
		{ID: "b", Category: "labor", BudgetedCost: 100, ActualCost: 108},
		{ID: "c", Category: "equipment", BudgetedCost: 100, ActualCost: 95},
	}
	overruns := IdentifyOverruns(costs)
	assert.Len(t, overruns, 2)
	assert.Equal(t, "severe", overruns[0].Severity)
	assert.Equal(t, "minor", overruns[1].Severity)
}

func TestDefectUrgency(t *testing.T) {
	assert.Equal(t, UrgencyCritical, defectUrgency("high", 8))
	assert.Equal(t, UrgencyMajor, defectUrgency("high", 2))
	assert.Equal(t, UrgencyMajor, defectUrgency("medium", 15))
	assert.Equal(t, UrgencyRoutine, defectUrgency("low", 1))
}

func TestOpenDefectsAndRectificationPlan(t *testing.T) {
	now := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	records := []relational.SafetyRecord{
		{ID: "r1", Level: "high", Status: "open", RecordedAt: now.AddDate(0, 0, -10)},
		{ID: "r2", Level: "high", Status: "open", RecordedAt: now.AddDate(0, 0, -2)},
		{ID: "r3", Level: "low", Status: "open", RecordedAt: now.AddDate(0, 0, -1)},
		{ID: "r4", Level: "low", Status: "closed", RecordedAt: now.AddDate(0, 0, -1)},
	}
	open := OpenDefects(records, now)
	assert.Len(t, open, 3)

	plan := BuildRectificationPlan(open)
	assert.Contains(t, plan.Within3Days, "r1")
	assert.Contains(t, plan.Within7Days, "r2")
	assert.Contains(t, plan.Within14Days, "r3")
}

func TestCostTrendOrdersByProgress(t *testing.T) {
	costs := []relational.Cost{
		{ID: "b", Category: "labor", BudgetedCost: 100, ActualCost: 90, ProgressPct: 80},
		{ID: "a", Category: "material", BudgetedCost: 100, ActualCost: 30, ProgressPct: 20},
	}
	trend := CostTrend(costs)
	assert.Equal(t, "a", trend[0].CostID)
	assert.InDelta(t, 0.3, trend[0].SpentRate, 1e-9)
	assert.InDelta(t, 0.2, trend[0].EarnedRate, 1e-9)
}

func TestCostRisksFlagsOverrunPrediction(t *testing.T) {
	costs := []relational.Cost{{ID: "a", BudgetedCost: 1_000_000, BudgetAtComp: 1_000_000, ActualCost: 500_000, ProgressPct: 40}}
	ov := CostProjectOverview("p1", costs)
	pred := PredictFinalCost(costs)
	risks := CostRisks(ov, pred, nil)
	assert.Len(t, risks, 2)
	assert.InDelta(t, 1_250_000, pred.EAC, 1e-6)
}

func TestProjectOverviewRiskLevelRed(t *testing.T) {
	tasks := []relational.Task{
		{ID: "t1", PlannedProgress: 50, ActualProgress: 40},
		{ID: "t2", PlannedProgress: 100, ActualProgress: 100},
		{ID: "t3", PlannedProgress: 30, ActualProgress: 15},
	}
	st := ProjectOverview("p1", tasks)
	// mean(0.8, 1.0, 0.5)
	assert.InDelta(t, 0.7667, st.OverallSPI, 1e-4)
	assert.Equal(t, "red", st.RiskLevel)
	assert.NotEmpty(t, st.RiskDescription)
	assert.InDelta(t, 60.0, st.AvgPlanned, 1e-9)
	assert.InDelta(t, 51.6667, st.AvgActual, 1e-4)
	assert.InDelta(t, -13.8889, st.VarianceRate, 1e-4)
}

func TestProjectOverviewRiskLevelBoundaries(t *testing.T) {
	green := ProjectOverview("p1", []relational.Task{{PlannedProgress: 100, ActualProgress: 95}})
	assert.Equal(t, "green", green.RiskLevel)

	yellow := ProjectOverview("p1", []relational.Task{{PlannedProgress: 100, ActualProgress: 90}})
	assert.Equal(t, "yellow", yellow.RiskLevel)

	empty := ProjectOverview("p1", nil)
	assert.Equal(t, "unknown", empty.RiskLevel)
}

func TestPredictFinalCostOverrunFields(t *testing.T) {
	costs := []relational.Cost{{
		ID: "c1", BudgetAtComp: 1_000_000, BudgetedCost: 1_000_000,
		ActualCost: 500_000, ProgressPct: 40,
	}}
	pred := PredictFinalCost(costs)
	assert.False(t, pred.Insufficient)
	assert.InDelta(t, 1_250_000, pred.EAC, 1e-6)
	assert.InDelta(t, 250_000, pred.PredictedOverrun, 1e-6)
	assert.InDelta(t, 25.0, pred.OverrunRate, 1e-9)
	assert.True(t, pred.WillExceedBudget)
	assert.Equal(t, "medium", pred.Confidence)
}

func TestPredictFinalCostLowConfidenceEarly(t *testing.T) {
	costs := []relational.Cost{{
		ID: "c1", BudgetAtComp: 1_000_000, BudgetedCost: 1_000_000,
		ActualCost: 150_000, ProgressPct: 10,
	}}
	pred := PredictFinalCost(costs)
	assert.Equal(t, "low", pred.Confidence)
	assert.True(t, pred.WillExceedBudget)
}

func TestPredictFinalCostUnderBudgetDoesNotExceed(t *testing.T) {
	costs := []relational.Cost{{
		ID: "c1", BudgetAtComp: 1_000_000, BudgetedCost: 1_000_000,
		ActualCost: 300_000, ProgressPct: 40,
	}}
	pred := PredictFinalCost(costs)
	assert.False(t, pred.WillExceedBudget)
	assert.Less(t, pred.OverrunRate, 0.0)
}
