package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ragengine/internal/analytics/tools"
	"ragengine/internal/persistence/relational"
)

// Section colors used by the weekly report's per-dimension and overall
// status, in traffic-light vocabulary.
const (
	ColorGreen  = "green"
	ColorYellow = "yellow"
	ColorRed    = "red"
)

// sectionWeights is the weighted section-scoring model for
// the weekly report's overall risk figure.
var sectionWeights = struct {
	progress, cost, safety float64
}{progress: 0.4, cost: 0.35, safety: 0.25}

// SectionStatus is one dimension's slice of the weekly report.
type SectionStatus struct {
	Level      string // green, yellow, red
	Highlights []string
	Issues     []string
}

// WeeklyReport is the Weekly Report Agent's full output, renderable to
// Markdown or returned structurally.
type WeeklyReport struct {
	ProjectID    string
	Progress     SectionStatus
	Cost         SectionStatus
	Safety       SectionStatus
	OverallScore float64
	OverallLevel string
	ActionItems  []string
	NextWeekPlan []string
	AIInsights   []string
}

// WeeklyReportOptions configures one WeeklyReportAgent.Generate call.
type WeeklyReportOptions struct {
	SafetyWindowDays  int // default 7, this report's own trailing window
	IncludeAIInsights bool
}

// WeeklyReportAgent collects progress, cost and safety sections
// concurrently and fuses them into one weighted-score status report.
type WeeklyReportAgent struct {
	db        ProjectData
	wlog      Logger
	log       *logrus.Logger
	insighter Insighter
}

func NewWeeklyReportAgent(db ProjectData, wlog Logger, log *logrus.Logger, insighter Insighter) *WeeklyReportAgent {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WeeklyReportAgent{db: db, wlog: wlog, log: log, insighter: insighter}
}

func (a *WeeklyReportAgent) Generate(ctx context.Context, projectID string, opts WeeklyReportOptions) (WeeklyReport, error) {
	var report WeeklyReport
	err := run(ctx, a.wlog, projectID, "weekly_report", fmt.Sprintf("project_id=%s", projectID), func(ctx context.Context) (string, error) {
		if ferr := ensureProject(ctx, a.db, projectID); ferr != nil {
			return "", ferr
		}
		r, ferr := a.collect(ctx, projectID, opts)
		if ferr != nil {
			return "", ferr
		}
		report = r
		return fmt.Sprintf("overall=%s score=%.1f", r.OverallLevel, r.OverallScore), nil
	})
	return report, err
}

type sectionOutcome struct {
	section SectionStatus
	err     error
}

func (a *WeeklyReportAgent) collect(ctx context.Context, projectID string, opts WeeklyReportOptions) (WeeklyReport, error) {
	windowDays := opts.SafetyWindowDays
	if windowDays <= 0 {
		windowDays = 7
	}

	progressCh := make(chan sectionOutcome, 1)
	costCh := make(chan sectionOutcome, 1)
	safetyCh := make(chan sectionOutcome, 1)

	go func() {
		tasks, err := a.db.ListTasks(ctx, projectID)
		if err != nil {
			progressCh <- sectionOutcome{err: err}
			return
		}
		progressCh <- sectionOutcome{section: progressSection(tasks)}
	}()
	go func() {
		costs, err := a.db.ListCosts(ctx, projectID)
		if err != nil {
			costCh <- sectionOutcome{err: err}
			return
		}
		costCh <- sectionOutcome{section: costSection(costs)}
	}()
	go func() {
		since := time.Now().AddDate(0, 0, -windowDays)
		records, err := a.db.ListSafetyRecords(ctx, projectID, since)
		if err != nil {
			safetyCh <- sectionOutcome{err: err}
			return
		}
		reports, err := a.db.ListQualityReports(ctx, projectID, since)
		if err != nil {
			safetyCh <- sectionOutcome{err: err}
			return
		}
		safetyCh <- sectionOutcome{section: safetySection(projectID, windowDays, records, reports)}
	}()

	progressOut, costOut, safetyOut := <-progressCh, <-costCh, <-safetyCh
	for _, o := range []sectionOutcome{progressOut, costOut, safetyOut} {
		if o.err != nil {
			return WeeklyReport{}, fmt.Errorf("weekly report agent: %w", o.err)
		}
	}

	report := WeeklyReport{
		ProjectID: projectID,
		Progress:  progressOut.section,
		Cost:      costOut.section,
		Safety:    safetyOut.section,
	}
	report.OverallScore = sectionWeights.progress*colorScore(report.Progress.Level) +
		sectionWeights.cost*colorScore(report.Cost.Level) +
		sectionWeights.safety*colorScore(report.Safety.Level)
	report.OverallLevel = scoreToColor(report.OverallScore)
	if report.Progress.Level == ColorRed || report.Cost.Level == ColorRed || report.Safety.Level == ColorRed {
		if report.OverallLevel == ColorGreen {
			report.OverallLevel = ColorYellow
		}
	}
	report.ActionItems = buildActionItems(report)
	report.NextWeekPlan = buildNextWeekPlan(report)

	if opts.IncludeAIInsights {
		report.AIInsights = aiInsights(ctx, a.insighter, a.log,
			fmt.Sprintf("Summarize this week's status for project %s across schedule, cost and safety.", projectID),
			fmt.Sprintf("overall=%s progress=%s cost=%s safety=%s", report.OverallLevel, report.Progress.Level, report.Cost.Level, report.Safety.Level))
	}

	return report, nil
}

func colorScore(level string) float64 {
	switch level {
	case ColorGreen:
		return 100
	case ColorYellow:
		return 70
	default:
		return 40
	}
}

func scoreToColor(score float64) string {
	switch {
	case score >= 85:
		return ColorGreen
	case score >= 55:
		return ColorYellow
	default:
		return ColorRed
	}
}

func riskLevelToColor(level string) string {
	switch level {
	case LevelCritical, LevelHigh:
		return ColorRed
	case LevelMedium:
		return ColorYellow
	default:
		return ColorGreen
	}
}

func progressSection(tasks []relational.Task) SectionStatus {
	ov := tools.ProjectOverview("", tasks)
	sec := SectionStatus{Level: riskLevelToColor(spiLevel(ov.OverallSPI))}
	sec.Highlights = append(sec.Highlights, fmt.Sprintf("overall SPI is %.2f across %d tasks", ov.OverallSPI, ov.TaskCount))
	if ov.CompletedCount > 0 {
		sec.Highlights = append(sec.Highlights, fmt.Sprintf("%d tasks completed", ov.CompletedCount))
	}
	if ov.DelayedCount > 0 {
		sec.Issues = append(sec.Issues, fmt.Sprintf("%d tasks delayed", ov.DelayedCount))
	}
	bottlenecks := tools.Bottlenecks(tasks)
	if len(bottlenecks) > 0 {
		sec.Issues = append(sec.Issues, fmt.Sprintf("%d critical-path bottlenecks", len(bottlenecks)))
	}
	return sec
}

func costSection(costs []relational.Cost) SectionStatus {
	ov := tools.CostProjectOverview("", costs)
	sec := SectionStatus{Level: riskLevelToColor(cpiLevel(ov.CPI))}
	sec.Highlights = append(sec.Highlights, fmt.Sprintf("overall CPI is %.2f", ov.CPI))
	overruns := tools.IdentifyOverruns(costs)
	if len(overruns) > 0 {
		sec.Issues = append(sec.Issues, fmt.Sprintf("%d cost line(s) over budget, worst at %.1f%%", len(overruns), overruns[0].Rate))
	} else {
		sec.Highlights = append(sec.Highlights, "no cost overruns recorded")
	}
	return sec
}

func safetySection(projectID string, windowDays int, records []relational.SafetyRecord, reports []relational.QualityReport) SectionStatus {
	ov := tools.SafetyProjectOverview(projectID, windowDays, records, reports)
	level := ColorGreen
	if len(reports) > 0 {
		level = riskLevelToColor(passRateLevel(ov.PassRate))
	}
	if worse := riskLevelToColor(safetyDefectLevel(ov)); levelRankColor(worse) > levelRankColor(level) {
		level = worse
	}
	sec := SectionStatus{Level: level}
	if len(reports) > 0 {
		sec.Highlights = append(sec.Highlights, fmt.Sprintf("inspection pass rate is %.1f%%", ov.PassRate))
	}
	if ov.OpenCount > 0 {
		sec.Issues = append(sec.Issues, fmt.Sprintf("%d open defect(s)", ov.OpenCount))
	} else {
		sec.Highlights = append(sec.Highlights, "no open defects")
	}
	return sec
}

func levelRankColor(color string) int {
	switch color {
	case ColorRed:
		return 2
	case ColorYellow:
		return 1
	default:
		return 0
	}
}

func buildActionItems(r WeeklyReport) []string {
	var out []string
	for _, s := range []struct {
		name    string
		section SectionStatus
	}{{"schedule", r.Progress}, {"cost", r.Cost}, {"safety", r.Safety}} {
		if s.section.Level == ColorGreen {
			continue
		}
		for _, issue := range s.section.Issues {
			out = append(out, fmt.Sprintf("%s: address %s", s.name, issue))
		}
	}
	return out
}

func buildNextWeekPlan(r WeeklyReport) []string {
	var out []string
	if r.Progress.Level != ColorGreen {
		out = append(out, "re-baseline schedule recovery actions for delayed and critical-path tasks")
	}
	if r.Cost.Level != ColorGreen {
		out = append(out, "review cost control measures for over-budget categories")
	}
	if r.Safety.Level != ColorGreen {
		out = append(out, "follow up on open safety and quality defects before the next inspection")
	}
	if len(out) == 0 {
		out = append(out, "maintain current execution pace; no corrective action required")
	}
	return out
}

// RenderMarkdown formats the report as a Markdown document.
func (r WeeklyReport) RenderMarkdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Weekly Report: %s\n\n", r.ProjectID)
	fmt.Fprintf(&sb, "Overall status: **%s** (%.0f/100)\n\n", r.OverallLevel, r.OverallScore)
	renderSection(&sb, "Schedule", r.Progress)
	renderSection(&sb, "Cost", r.Cost)
	renderSection(&sb, "Safety & Quality", r.Safety)
	renderList(&sb, "Action Items", r.ActionItems)
	renderList(&sb, "Next Week Plan", r.NextWeekPlan)
	return sb.String()
}

func renderSection(sb *strings.Builder, title string, s SectionStatus) {
	fmt.Fprintf(sb, "## %s — %s\n\n", title, s.Level)
	for _, h := range s.Highlights {
		fmt.Fprintf(sb, "- %s\n", h)
	}
	for _, i := range s.Issues {
		fmt.Fprintf(sb, "- issue: %s\n", i)
	}
	sb.WriteString("\n")
}

func renderList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "## %s\n\n", title)
	for _, it := range items {
		fmt.Fprintf(sb, "- %s\n", it)
	}
	sb.WriteString("\n")
}
