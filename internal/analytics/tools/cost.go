package tools

import (
	"fmt"
	"sort"

	"ragengine/internal/persistence/relational"
)

// Overrun severity bands by overrun rate (percent above budget).
const (
	overrunSevereRate   = 20.0
	overrunModerateRate = 10.0
)

// CostOverview aggregates cost line items into a project-level CPI.
type CostOverview struct {
	ProjectID    string
	TotalBudget  float64
	TotalActual  float64
	EarnedValue  float64
	CPI          float64
}

func CostProjectOverview(projectID string, costs []relational.Cost) CostOverview {
	ov := CostOverview{ProjectID: projectID}
	for _, c := range costs {
		ov.TotalBudget += c.BudgetedCost
		ov.TotalActual += c.ActualCost
		ov.EarnedValue += c.EarnedValue()
	}
	if ov.TotalActual != 0 {
		ov.CPI = ov.EarnedValue / ov.TotalActual
	}
	return ov
}

// CategoryTotal is one resource category's summed budget and actual cost,
// as returned by CostCategoryBreakdown.
type CategoryTotal struct {
	Category string
	Budget   float64
	Actual   float64
}

func CostCategoryBreakdown(costs []relational.Cost) []CategoryTotal {
	totals := map[string]*CategoryTotal{}
	for _, c := range costs {
		t, ok := totals[c.Category]
		if !ok {
			t = &CategoryTotal{Category: c.Category}
			totals[c.Category] = t
		}
		t.Budget += c.BudgetedCost
		t.Actual += c.ActualCost
	}
	out := make([]CategoryTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// Overrun is a cost line exceeding its budget, with a severity label
// derived from how far over it ran.
type Overrun struct {
	CostID   string
	Category string
	Rate     float64
	Severity string // minor, moderate, severe
}

func IdentifyOverruns(costs []relational.Cost) []Overrun {
	var out []Overrun
	for _, c := range costs {
		rate := c.VarianceRate()
		if rate <= 0 {
			continue
		}
		severity := "minor"
		switch {
		case rate >= overrunSevereRate:
			severity = "severe"
		case rate >= overrunModerateRate:
			severity = "moderate"
		}
		out = append(out, Overrun{CostID: c.ID, Category: c.Category, Rate: rate, Severity: severity})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rate > out[j].Rate })
	return out
}

// FinalCostPrediction is EAC = BAC/CPI aggregated across all cost lines,
// plus the overrun it implies relative to the budget at completion.
type FinalCostPrediction struct {
	EAC              float64
	PredictedOverrun float64 // EAC - BAC
	OverrunRate      float64 // overrun as a percent of BAC
	WillExceedBudget bool
	Confidence       string // medium once progress passes 30%, low before
	Insufficient     bool
}

// predictionConfidenceProgress is the overall progress (percent) past which
// the EAC extrapolation is considered medium- rather than low-confidence.
const predictionConfidenceProgress = 30.0

func PredictFinalCost(costs []relational.Cost) FinalCostPrediction {
	var bac, budgeted, earned, actual float64
	for _, c := range costs {
		bac += c.BudgetAtComp
		budgeted += c.BudgetedCost
		earned += c.EarnedValue()
		actual += c.ActualCost
	}
	if actual == 0 || earned == 0 || bac == 0 {
		return FinalCostPrediction{Insufficient: true}
	}
	cpi := earned / actual
	pred := FinalCostPrediction{EAC: bac / cpi}
	pred.PredictedOverrun = pred.EAC - bac
	pred.OverrunRate = pred.PredictedOverrun / bac * 100
	pred.WillExceedBudget = pred.PredictedOverrun > 0
	progress := 0.0
	if budgeted > 0 {
		progress = earned / budgeted * 100
	}
	if progress > predictionConfidenceProgress {
		pred.Confidence = "medium"
	} else {
		pred.Confidence = "low"
	}
	return pred
}

// PeerComparison is the result of comparing a project's CPI against a set
// of historical peer projects of the same type.
type PeerComparison struct {
	ProjectCPI float64
	PeerAvgCPI float64
	Delta      float64
}

func CompareAgainstPeers(projectCPI float64, peerCPIs []float64) PeerComparison {
	if len(peerCPIs) == 0 {
		return PeerComparison{ProjectCPI: projectCPI}
	}
	var sum float64
	for _, v := range peerCPIs {
		sum += v
	}
	avg := sum / float64(len(peerCPIs))
	return PeerComparison{ProjectCPI: projectCPI, PeerAvgCPI: avg, Delta: projectCPI - avg}
}

// ControlSuggestions returns the fixed-template remediation hints keyed by
// overrun category, used by the Cost Agent to fill out its suggestions list.
func ControlSuggestions(overruns []Overrun) []string {
	seen := map[string]bool{}
	var out []string
	for _, o := range overruns {
		if seen[o.Category] {
			continue
		}
		seen[o.Category] = true
		switch o.Category {
		case "material":
			out = append(out, "review material procurement contracts for price escalation clauses")
		case "labor":
			out = append(out, "audit labor overtime and crew sizing against the schedule baseline")
		case "equipment":
			out = append(out, "compare equipment rental duration against actual task completion")
		case "subcontract":
			out = append(out, "renegotiate subcontract change-order pricing before the next milestone")
		default:
			out = append(out, "investigate cost driver for category "+o.Category)
		}
	}
	return out
}

// CostTrendPoint is one cost line's burn position: how much of the budget
// is spent versus how much value is earned at its reported progress.
type CostTrendPoint struct {
	CostID     string
	Category   string
	Progress   float64
	SpentRate  float64 // actual / budget
	EarnedRate float64 // earned value / budget
}

// CostTrend orders cost lines by reported progress so the agent can read
// the burn curve: a SpentRate pulling ahead of EarnedRate is a worsening
// CPI.
func CostTrend(costs []relational.Cost) []CostTrendPoint {
	out := make([]CostTrendPoint, 0, len(costs))
	for _, c := range costs {
		p := CostTrendPoint{CostID: c.ID, Category: c.Category, Progress: c.ProgressPct}
		if c.BudgetedCost != 0 {
			p.SpentRate = c.ActualCost / c.BudgetedCost
			p.EarnedRate = c.EarnedValue() / c.BudgetedCost
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Progress != out[j].Progress {
			return out[i].Progress < out[j].Progress
		}
		return out[i].CostID < out[j].CostID
	})
	return out
}

// CostRisks derives rule-based risk statements from the overview and
// prediction: CPI below parity, predicted overrun, and concentration of
// severe overruns.
func CostRisks(ov CostOverview, pred FinalCostPrediction, overruns []Overrun) []string {
	var out []string
	if ov.CPI > 0 && ov.CPI < 1 {
		out = append(out, "cost efficiency below parity: each unit spent earns less than a unit of value")
	}
	if !pred.Insufficient && pred.WillExceedBudget {
		out = append(out, fmt.Sprintf("estimate at completion exceeds budget by %.1f%%", pred.OverrunRate))
	}
	severe := 0
	for _, o := range overruns {
		if o.Severity == "severe" {
			severe++
		}
	}
	if severe > 0 {
		out = append(out, "severe overruns concentrated in one or more categories")
	}
	return out
}
