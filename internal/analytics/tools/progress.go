// Package tools implements the deterministic, side-effect-free
// analytics facades the agents call: progress, cost, and safety. None
// of these functions touch the network or the LLM; they operate purely on
// rows already fetched from the relational store (internal/persistence/relational),
// which keeps them trivially testable and safe to call concurrently from
// several workflow runs at once.
package tools

import (
	"sort"

	"ragengine/internal/persistence/relational"
)

// delayedSPIThreshold and delayedVarianceThreshold are the thresholds the
// spec names for flagging a task delayed even when its status field hasn't
// been updated yet.
const (
	delayedSPIThreshold      = 0.95
	delayedVarianceThreshold = -5.0
	bottleneckSPIThreshold   = 0.95
)

// Progress risk classification: the status tool maps overall SPI onto a
// traffic-light level with its own boundaries, distinct from the risk
// agent's critical/high/medium/low cutoffs.
const (
	progressGreenSPI  = 0.95
	progressYellowSPI = 0.85
)

// ProjectStatus is the progress overview for one project: overall SPI,
// the schedule variance behind it, and the traffic-light risk level.
type ProjectStatus struct {
	ProjectID       string
	OverallSPI      float64
	TaskCount       int
	DelayedCount    int
	CompletedCount  int
	AvgPlanned      float64
	AvgActual       float64
	Variance        float64 // actual - planned, percentage points
	VarianceRate    float64 // variance relative to planned, percent
	RiskLevel       string  // green | yellow | red | unknown
	RiskDescription string
}

// ProjectOverview computes the aggregate schedule status for a project's
// tasks: overall SPI is the mean of per-task SPI, and the risk level is
// green for SPI >= 0.95, yellow for [0.85, 0.95), red below 0.85. An empty
// task list yields level "unknown".
func ProjectOverview(projectID string, tasks []relational.Task) ProjectStatus {
	st := ProjectStatus{ProjectID: projectID, TaskCount: len(tasks)}
	if len(tasks) == 0 {
		st.RiskLevel = "unknown"
		st.RiskDescription = "no tasks found, schedule performance cannot be computed"
		return st
	}
	var spiSum, plannedSum, actualSum float64
	for _, t := range tasks {
		spiSum += t.SPI()
		plannedSum += t.PlannedProgress
		actualSum += t.ActualProgress
		if t.Status == "completed" {
			st.CompletedCount++
		}
		if IsDelayed(t) {
			st.DelayedCount++
		}
	}
	n := float64(len(tasks))
	st.OverallSPI = spiSum / n
	st.AvgPlanned = plannedSum / n
	st.AvgActual = actualSum / n
	st.Variance = st.AvgActual - st.AvgPlanned
	if st.AvgPlanned > 0 {
		st.VarianceRate = st.Variance / st.AvgPlanned * 100
	}
	switch {
	case st.OverallSPI >= progressGreenSPI:
		st.RiskLevel = "green"
		st.RiskDescription = "schedule on track, executing close to plan"
	case st.OverallSPI >= progressYellowSPI:
		st.RiskLevel = "yellow"
		st.RiskDescription = "schedule slipping slightly, needs attention"
	default:
		st.RiskLevel = "red"
		st.RiskDescription = "schedule severely delayed, corrective action required now"
	}
	return st
}

// IsDelayed applies the rule: status=delayed, or spi<0.95, or
// variance<-5.
func IsDelayed(t relational.Task) bool {
	return t.Status == "delayed" || t.SPI() < delayedSPIThreshold || t.VarianceRate < delayedVarianceThreshold
}

// DelayedTasks filters tasks to those matching IsDelayed.
func DelayedTasks(tasks []relational.Task) []relational.Task {
	var out []relational.Task
	for _, t := range tasks {
		if IsDelayed(t) {
			out = append(out, t)
		}
	}
	return out
}

// CriticalPathTasks filters tasks flagged critical.
func CriticalPathTasks(tasks []relational.Task) []relational.Task {
	var out []relational.Task
	for _, t := range tasks {
		if t.Critical {
			out = append(out, t)
		}
	}
	return out
}

// Bottlenecks are critical-path tasks under the SPI threshold that aren't
// yet completed — the tasks most likely to delay the whole schedule.
func Bottlenecks(tasks []relational.Task) []relational.Task {
	var out []relational.Task
	for _, t := range tasks {
		if t.Critical && t.SPI() < bottleneckSPIThreshold && t.Status != "completed" {
			out = append(out, t)
		}
	}
	return out
}

// CompletionPrediction is the result of CompletionPredictionDays.
type CompletionPrediction struct {
	EACDays      float64
	Insufficient bool
}

// CompletionPredictionDays estimates remaining days to completion as
// plannedRemaining * (1/avgSPI). When average SPI is non-positive the
// projection is undefined and Insufficient is set instead of returning a
// nonsensical or infinite value.
func CompletionPredictionDays(tasks []relational.Task, plannedRemaining float64) CompletionPrediction {
	if len(tasks) == 0 {
		return CompletionPrediction{Insufficient: true}
	}
	var spiSum float64
	for _, t := range tasks {
		spiSum += t.SPI()
	}
	avgSPI := spiSum / float64(len(tasks))
	if avgSPI <= 0 {
		return CompletionPrediction{Insufficient: true}
	}
	return CompletionPrediction{EACDays: plannedRemaining * (1 / avgSPI)}
}

// ResourceAllocationStatus reports how many tasks are simultaneously
// in-progress, as a coarse proxy for resource contention.
func ResourceAllocationStatus(tasks []relational.Task) int {
	n := 0
	for _, t := range tasks {
		if t.Status == "in_progress" {
			n++
		}
	}
	return n
}

// ProgressTrendPoint is one sample in a progress trend series.
type ProgressTrendPoint struct {
	TaskID   string
	SPI      float64
	Variance float64
}

// ProgressTrend renders the current per-task SPI/variance snapshot used as
// one point in a caller-maintained time series; this facade itself is
// stateless and does not persist history (the workflow log does that).
func ProgressTrend(tasks []relational.Task) []ProgressTrendPoint {
	out := make([]ProgressTrendPoint, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, ProgressTrendPoint{TaskID: t.ID, SPI: t.SPI(), Variance: t.VarianceRate})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}
