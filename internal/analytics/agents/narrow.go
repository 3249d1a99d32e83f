package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ragengine/internal/analytics/tools"
	"ragengine/internal/persistence/relational"
)

// ProgressResult is the Progress Agent's output.
type ProgressResult struct {
	ProjectID   string
	Overview    tools.ProjectStatus
	Delayed     []relational.Task
	Bottlenecks []relational.Task
	Prediction  tools.CompletionPrediction
	Level       string
	Suggestions []string
	AIInsights  []string
}

// ProgressOptions configures one ProgressAgent.Analyze call.
type ProgressOptions struct {
	PlannedRemainingDays float64
	IncludeAIInsights    bool
}

// ProgressAgent is the narrower schedule-only variant of the Risk Agent,
// behind the progress-analysis operation.
type ProgressAgent struct {
	db        ProjectData
	wlog      Logger
	log       *logrus.Logger
	insighter Insighter
}

func NewProgressAgent(db ProjectData, wlog Logger, log *logrus.Logger, insighter Insighter) *ProgressAgent {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ProgressAgent{db: db, wlog: wlog, log: log, insighter: insighter}
}

func (a *ProgressAgent) Analyze(ctx context.Context, projectID string, opts ProgressOptions) (ProgressResult, error) {
	var result ProgressResult
	err := run(ctx, a.wlog, projectID, "progress_analysis", fmt.Sprintf("project_id=%s", projectID), func(ctx context.Context) (string, error) {
		if ferr := ensureProject(ctx, a.db, projectID); ferr != nil {
			return "", ferr
		}
		tasks, ferr := a.db.ListTasks(ctx, projectID)
		if ferr != nil {
			return "", ferr
		}
		overview := tools.ProjectOverview(projectID, tasks)
		result = ProgressResult{
			ProjectID:   projectID,
			Overview:    overview,
			Delayed:     tools.DelayedTasks(tasks),
			Bottlenecks: tools.Bottlenecks(tasks),
			Prediction:  tools.CompletionPredictionDays(tasks, opts.PlannedRemainingDays),
			Level:       spiLevel(overview.OverallSPI),
		}
		result.Suggestions = progressSuggestions(result)
		if opts.IncludeAIInsights {
			result.AIInsights = aiInsights(ctx, a.insighter, a.log,
				fmt.Sprintf("Summarize the schedule status for project %s and what to do about it.", projectID),
				fmt.Sprintf("spi=%.2f delayed=%d bottlenecks=%d", overview.OverallSPI, overview.DelayedCount, len(result.Bottlenecks)))
		}
		return fmt.Sprintf("spi=%.2f level=%s", overview.OverallSPI, result.Level), nil
	})
	return result, err
}

func progressSuggestions(r ProgressResult) []string {
	var out []string
	if len(r.Bottlenecks) > 0 {
		out = append(out, fmt.Sprintf("expedite %d critical-path bottleneck task(s) before they cascade into the schedule", len(r.Bottlenecks)))
	}
	if r.Level == LevelCritical || r.Level == LevelHigh {
		out = append(out, "escalate schedule recovery plan to project leadership")
	}
	if r.Prediction.Insufficient {
		out = append(out, "insufficient task data to project a completion date; verify task progress reporting")
	}
	return out
}

// CostResult is the Cost Agent's output.
type CostResult struct {
	ProjectID   string
	Overview    tools.CostOverview
	Breakdown   []tools.CategoryTotal
	Overruns    []tools.Overrun
	Prediction  tools.FinalCostPrediction
	Trend       []tools.CostTrendPoint
	Risks       []string
	Level       string
	Suggestions []string
	AIInsights  []string
}

// CostOptions configures one CostAgent.Analyze call.
type CostOptions struct {
	PeerCPIs          []float64
	IncludeAIInsights bool
}

// CostAgent is the narrower budget-only variant of the Risk Agent,
// behind the cost-analysis operation.
type CostAgent struct {
	db        ProjectData
	wlog      Logger
	log       *logrus.Logger
	insighter Insighter
}

func NewCostAgent(db ProjectData, wlog Logger, log *logrus.Logger, insighter Insighter) *CostAgent {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CostAgent{db: db, wlog: wlog, log: log, insighter: insighter}
}

func (a *CostAgent) Analyze(ctx context.Context, projectID string, opts CostOptions) (CostResult, error) {
	var result CostResult
	err := run(ctx, a.wlog, projectID, "cost_analysis", fmt.Sprintf("project_id=%s", projectID), func(ctx context.Context) (string, error) {
		if ferr := ensureProject(ctx, a.db, projectID); ferr != nil {
			return "", ferr
		}
		costs, ferr := a.db.ListCosts(ctx, projectID)
		if ferr != nil {
			return "", ferr
		}
		overview := tools.CostProjectOverview(projectID, costs)
		overruns := tools.IdentifyOverruns(costs)
		prediction := tools.PredictFinalCost(costs)
		result = CostResult{
			ProjectID:  projectID,
			Overview:   overview,
			Breakdown:  tools.CostCategoryBreakdown(costs),
			Overruns:   overruns,
			Prediction: prediction,
			Trend:      tools.CostTrend(costs),
			Risks:      tools.CostRisks(overview, prediction, overruns),
			Level:      cpiLevel(overview.CPI),
		}
		result.Suggestions = tools.ControlSuggestions(overruns)
		if len(opts.PeerCPIs) > 0 {
			peer := tools.CompareAgainstPeers(overview.CPI, opts.PeerCPIs)
			if peer.Delta < 0 {
				result.Suggestions = append(result.Suggestions,
					fmt.Sprintf("cost performance trails peer average by %.2f CPI points", -peer.Delta))
			}
		}
		if opts.IncludeAIInsights {
			result.AIInsights = aiInsights(ctx, a.insighter, a.log,
				fmt.Sprintf("Summarize the cost status for project %s and what to do about it.", projectID),
				fmt.Sprintf("cpi=%.2f overruns=%d", overview.CPI, len(overruns)))
		}
		return fmt.Sprintf("cpi=%.2f level=%s", overview.CPI, result.Level), nil
	})
	return result, err
}

// SafetyResult is the Safety Agent's output.
type SafetyResult struct {
	ProjectID         string
	Overview          tools.SafetyOverview
	FrequentIssues    []tools.FrequentIssue
	Distribution      []tools.LevelCount
	OpenDefects       []tools.OpenDefect
	RectificationPlan tools.RectificationPlan
	Level             string
	Suggestions       []string
	AIInsights        []string
}

// SafetyOptions configures one SafetyAgent.Analyze call.
type SafetyOptions struct {
	WindowDays        int // default 30
	IncludeAIInsights bool
}

// SafetyAgent is the narrower quality/safety-only variant of the Risk
// Agent, behind the safety-analysis operation.
type SafetyAgent struct {
	db        ProjectData
	wlog      Logger
	log       *logrus.Logger
	insighter Insighter
}

func NewSafetyAgent(db ProjectData, wlog Logger, log *logrus.Logger, insighter Insighter) *SafetyAgent {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SafetyAgent{db: db, wlog: wlog, log: log, insighter: insighter}
}

func (a *SafetyAgent) Analyze(ctx context.Context, projectID string, opts SafetyOptions) (SafetyResult, error) {
	windowDays := opts.WindowDays
	if windowDays <= 0 {
		windowDays = 30
	}
	var result SafetyResult
	err := run(ctx, a.wlog, projectID, "safety_analysis", fmt.Sprintf("project_id=%s", projectID), func(ctx context.Context) (string, error) {
		if ferr := ensureProject(ctx, a.db, projectID); ferr != nil {
			return "", ferr
		}
		since := time.Now().AddDate(0, 0, -windowDays)
		records, ferr := a.db.ListSafetyRecords(ctx, projectID, since)
		if ferr != nil {
			return "", ferr
		}
		reports, ferr := a.db.ListQualityReports(ctx, projectID, since)
		if ferr != nil {
			return "", ferr
		}
		now := time.Now()
		overview := tools.SafetyProjectOverview(projectID, windowDays, records, reports)
		open := tools.OpenDefects(records, now)
		plan := tools.BuildRectificationPlan(open)
		level := LevelLow
		if len(reports) > 0 {
			level = passRateLevel(overview.PassRate)
		}
		if worse := safetyDefectLevel(overview); levelRank(worse) > levelRank(level) {
			level = worse
		}
		result = SafetyResult{
			ProjectID:         projectID,
			Overview:          overview,
			FrequentIssues:    tools.IdentifyFrequentIssues(records, since, now),
			Distribution:      tools.DefectDistribution(records),
			OpenDefects:       open,
			RectificationPlan: plan,
			Level:             level,
			Suggestions:       safetySuggestions(plan),
		}
		if opts.IncludeAIInsights {
			result.AIInsights = aiInsights(ctx, a.insighter, a.log,
				fmt.Sprintf("Summarize the safety and quality status for project %s and what to do about it.", projectID),
				fmt.Sprintf("pass_rate=%.1f open_defects=%d", overview.PassRate, overview.OpenCount))
		}
		return fmt.Sprintf("pass_rate=%.1f level=%s", overview.PassRate, result.Level), nil
	})
	return result, err
}

func safetyDefectLevel(ov tools.SafetyOverview) string {
	high := ov.DefectsByLevel["high"]
	switch {
	case high >= safetyThresholds.highDefectsCritical || ov.OpenCount >= safetyThresholds.openDefectsCritical:
		return LevelCritical
	case high >= safetyThresholds.highDefectsHigh || ov.OpenCount >= safetyThresholds.openDefectsHigh:
		return LevelHigh
	default:
		return LevelLow
	}
}

func levelRank(level string) int {
	switch level {
	case LevelCritical:
		return 3
	case LevelHigh:
		return 2
	case LevelMedium:
		return 1
	default:
		return 0
	}
}

func safetySuggestions(plan tools.RectificationPlan) []string {
	var out []string
	if len(plan.Within3Days) > 0 {
		out = append(out, fmt.Sprintf("close %d urgent defect(s) within 3 days", len(plan.Within3Days)))
	}
	if len(plan.Within7Days) > 0 {
		out = append(out, fmt.Sprintf("schedule %d major defect(s) for rectification within 7 days", len(plan.Within7Days)))
	}
	if len(out) == 0 {
		out = append(out, "no urgent rectification needed; maintain current inspection cadence")
	}
	return out
}
