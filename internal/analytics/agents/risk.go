package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ragengine/internal/analytics/tools"
	"ragengine/internal/persistence/relational"
)

// thresholds collects the named cutoffs the Risk
// Agent feature pins to the original's THRESHOLDS table. Grouped by scan
// dimension so each scan function reads its own slice only.
var progressThresholds = struct {
	spiCritical, spiHigh, spiMedium   float64
	delayedCritical, delayedHigh      int
	criticalPathDelayed               int
}{
	spiCritical: 0.75, spiHigh: 0.85, spiMedium: 0.95,
	delayedCritical: 10, delayedHigh: 5,
	criticalPathDelayed: 2,
}

var costThresholds = struct {
	cpiCritical, cpiHigh, cpiMedium          float64
	varianceCritical, varianceHigh, varianceMedium float64
}{
	cpiCritical: 0.75, cpiHigh: 0.85, cpiMedium: 0.95,
	varianceCritical: 15, varianceHigh: 10, varianceMedium: 5,
}

var safetyThresholds = struct {
	highDefectsCritical, highDefectsHigh int
	openDefectsCritical, openDefectsHigh int
	passRateCritical, passRateHigh       float64
}{
	highDefectsCritical: 5, highDefectsHigh: 3,
	openDefectsCritical: 15, openDefectsHigh: 10,
	passRateCritical: 80, passRateHigh: 90,
}

// RiskItem is one identified risk from a single scan pass.
type RiskItem struct {
	Category    string // progress, cost, safety
	Description string
	Probability float64
	Impact      float64
	Score       float64 // Probability * Impact
	Level       string
}

func newRiskItem(category, description string, probability float64, level string) RiskItem {
	probability = clamp01(probability)
	impact := levelWeight(level)
	return RiskItem{
		Category:    category,
		Description: description,
		Probability: probability,
		Impact:      impact,
		Score:       probability * impact,
		Level:       level,
	}
}

// MitigationAction is one top-ranked risk's remediation assignment.
type MitigationAction struct {
	Category     string
	Description  string
	Priority     string // P0..P3
	DeadlineDays int
	Owner        string
}

// RiskReport is the Risk Agent's full output.
type RiskReport struct {
	ProjectID      string
	Items          []RiskItem
	LevelCounts    map[string]int
	OverallScore   float64 // 0-100
	OverallLevel   string
	Alerts         []string
	MitigationPlan []MitigationAction
	AIInsights     []string
}

// RiskOptions configures one Analyze call.
type RiskOptions struct {
	SafetyWindowDays  int // default 30
	IncludeAIInsights bool
}

// RiskAgent implements the risk-analysis workflow:
// three parallel scan passes over progress, cost and
// safety data, aggregated into an overall score/level with an alert list and
// a top-5 mitigation plan.
type RiskAgent struct {
	db        ProjectData
	wlog      Logger
	log       *logrus.Logger
	insighter Insighter
}

// NewRiskAgent wires a RiskAgent against its backing store, workflow log,
// and optional AI-insights provider. wlog or insighter may be nil.
func NewRiskAgent(db ProjectData, wlog Logger, log *logrus.Logger, insighter Insighter) *RiskAgent {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RiskAgent{db: db, wlog: wlog, log: log, insighter: insighter}
}

// Analyze runs the three scan passes concurrently, aggregates results, and
// brackets the whole run in a workflow log entry.
func (a *RiskAgent) Analyze(ctx context.Context, projectID string, opts RiskOptions) (RiskReport, error) {
	var report RiskReport
	err := run(ctx, a.wlog, projectID, "risk_analysis", fmt.Sprintf("project_id=%s", projectID), func(ctx context.Context) (string, error) {
		if ferr := ensureProject(ctx, a.db, projectID); ferr != nil {
			return "", ferr
		}
		r, ferr := a.analyze(ctx, projectID, opts)
		if ferr != nil {
			return "", ferr
		}
		report = r
		return fmt.Sprintf("overall=%s score=%.1f items=%d", r.OverallLevel, r.OverallScore, len(r.Items)), nil
	})
	return report, err
}

type scanResult struct {
	items []RiskItem
	err   error
}

func (a *RiskAgent) analyze(ctx context.Context, projectID string, opts RiskOptions) (RiskReport, error) {
	windowDays := opts.SafetyWindowDays
	if windowDays <= 0 {
		windowDays = 30
	}

	progressCh := make(chan scanResult, 1)
	costCh := make(chan scanResult, 1)
	safetyCh := make(chan scanResult, 1)

	go func() {
		tasks, err := a.db.ListTasks(ctx, projectID)
		if err != nil {
			progressCh <- scanResult{err: err}
			return
		}
		progressCh <- scanResult{items: scanProgress(tasks)}
	}()
	go func() {
		costs, err := a.db.ListCosts(ctx, projectID)
		if err != nil {
			costCh <- scanResult{err: err}
			return
		}
		costCh <- scanResult{items: scanCost(costs)}
	}()
	go func() {
		since := time.Now().AddDate(0, 0, -windowDays)
		records, err := a.db.ListSafetyRecords(ctx, projectID, since)
		if err != nil {
			safetyCh <- scanResult{err: err}
			return
		}
		reports, err := a.db.ListQualityReports(ctx, projectID, since)
		if err != nil {
			safetyCh <- scanResult{err: err}
			return
		}
		safetyCh <- scanResult{items: scanSafety(projectID, windowDays, records, reports, time.Now())}
	}()

	var items []RiskItem
	for _, res := range []scanResult{<-progressCh, <-costCh, <-safetyCh} {
		if res.err != nil {
			return RiskReport{}, fmt.Errorf("risk agent scan: %w", res.err)
		}
		items = append(items, res.items...)
	}

	report := aggregateRisk(projectID, items)

	if opts.IncludeAIInsights {
		report.AIInsights = aiInsights(ctx, a.insighter, a.log,
			fmt.Sprintf("Summarize the key risk drivers for project %s and what should be done first.", projectID),
			fmt.Sprintf("overall_level=%s overall_score=%.1f top_risks=%v", report.OverallLevel, report.OverallScore, report.Items))
	}

	return report, nil
}

// scanProgress is the progress scan pass: overall SPI, delayed-task count,
// and critical-path delay count against progressThresholds.
func scanProgress(tasks []relational.Task) []RiskItem {
	ov := tools.ProjectOverview("", tasks)
	var out []RiskItem

	out = append(out, newRiskItem("progress",
		fmt.Sprintf("overall schedule performance index is %.2f", ov.OverallSPI),
		clamp01(1-ov.OverallSPI), spiLevel(ov.OverallSPI)))

	if ov.DelayedCount >= progressThresholds.delayedHigh {
		level := LevelHigh
		if ov.DelayedCount >= progressThresholds.delayedCritical {
			level = LevelCritical
		}
		out = append(out, newRiskItem("progress",
			fmt.Sprintf("%d of %d tasks are delayed", ov.DelayedCount, ov.TaskCount),
			float64(ov.DelayedCount)/float64(maxInt(ov.TaskCount, 1)), level))
	}

	criticalDelayed := 0
	for _, t := range tools.CriticalPathTasks(tasks) {
		if tools.IsDelayed(t) {
			criticalDelayed++
		}
	}
	if criticalDelayed >= progressThresholds.criticalPathDelayed {
		out = append(out, newRiskItem("progress",
			fmt.Sprintf("%d critical-path tasks are delayed", criticalDelayed),
			clamp01(float64(criticalDelayed)/float64(progressThresholds.criticalPathDelayed)), LevelHigh))
	}

	return out
}

func spiLevel(spi float64) string {
	switch {
	case spi < progressThresholds.spiCritical:
		return LevelCritical
	case spi < progressThresholds.spiHigh:
		return LevelHigh
	case spi < progressThresholds.spiMedium:
		return LevelMedium
	default:
		return LevelLow
	}
}

// scanCost is the cost scan pass: overall CPI and the worst cost overrun
// variance rate against costThresholds.
func scanCost(costs []relational.Cost) []RiskItem {
	ov := tools.CostProjectOverview("", costs)
	var out []RiskItem

	out = append(out, newRiskItem("cost",
		fmt.Sprintf("overall cost performance index is %.2f", ov.CPI),
		clamp01(1-ov.CPI), cpiLevel(ov.CPI)))

	overruns := tools.IdentifyOverruns(costs)
	if len(overruns) > 0 {
		worst := overruns[0].Rate
		if worst >= costThresholds.varianceHigh {
			level := LevelHigh
			if worst >= costThresholds.varianceCritical {
				level = LevelCritical
			}
			out = append(out, newRiskItem("cost",
				fmt.Sprintf("worst cost variance rate is %.1f%% over budget", worst),
				clamp01(worst/100), level))
		}
	}

	return out
}

func cpiLevel(cpi float64) string {
	switch {
	case cpi < costThresholds.cpiCritical:
		return LevelCritical
	case cpi < costThresholds.cpiHigh:
		return LevelHigh
	case cpi < costThresholds.cpiMedium:
		return LevelMedium
	default:
		return LevelLow
	}
}

// scanSafety is the safety scan pass: high-severity defect count, open
// defect count, and inspection pass rate against safetyThresholds.
func scanSafety(projectID string, windowDays int, records []relational.SafetyRecord, reports []relational.QualityReport, now time.Time) []RiskItem {
	ov := tools.SafetyProjectOverview(projectID, windowDays, records, reports)
	var out []RiskItem

	highCount := ov.DefectsByLevel["high"]
	if highCount >= safetyThresholds.highDefectsHigh {
		level := LevelHigh
		if highCount >= safetyThresholds.highDefectsCritical {
			level = LevelCritical
		}
		out = append(out, newRiskItem("safety",
			fmt.Sprintf("%d high-severity defects recorded in the last %d days", highCount, windowDays),
			clamp01(float64(highCount)/float64(safetyThresholds.highDefectsCritical)), level))
	}

	if ov.OpenCount >= safetyThresholds.openDefectsHigh {
		level := LevelHigh
		if ov.OpenCount >= safetyThresholds.openDefectsCritical {
			level = LevelCritical
		}
		out = append(out, newRiskItem("safety",
			fmt.Sprintf("%d defects remain open", ov.OpenCount),
			clamp01(float64(ov.OpenCount)/float64(safetyThresholds.openDefectsCritical)), level))
	}

	if len(reports) > 0 {
		out = append(out, newRiskItem("safety",
			fmt.Sprintf("inspection pass rate is %.1f%%", ov.PassRate),
			clamp01((100-ov.PassRate)/100), passRateLevel(ov.PassRate)))
	}

	return out
}

func passRateLevel(rate float64) string {
	switch {
	case rate < safetyThresholds.passRateCritical:
		return LevelCritical
	case rate < safetyThresholds.passRateHigh:
		return LevelHigh
	default:
		return LevelLow
	}
}

// aggregateRisk applies the overall scoring and leveling rules, the
// alert list, and the top-5 mitigation plan.
func aggregateRisk(projectID string, items []RiskItem) RiskReport {
	counts := map[string]int{LevelCritical: 0, LevelHigh: 0, LevelMedium: 0, LevelLow: 0}
	var weightedSum float64
	var alerts []string
	for _, it := range items {
		counts[it.Level]++
		weightedSum += it.Score * levelWeight(it.Level)
		if it.Level == LevelCritical || it.Level == LevelHigh {
			alerts = append(alerts, fmt.Sprintf("[%s] %s: %s", it.Level, it.Category, it.Description))
		}
	}

	var normalized01 float64
	if len(items) > 0 {
		normalized01 = clamp01(weightedSum / float64(len(items)))
	}

	overallLevel := LevelLow
	switch {
	case counts[LevelCritical] >= 2 || (counts[LevelCritical] >= 1 && counts[LevelHigh] >= 2):
		overallLevel = LevelCritical
	case counts[LevelCritical] >= 1 || counts[LevelHigh] >= 3:
		overallLevel = LevelHigh
	case counts[LevelHigh] >= 1 || normalized01 > 0.4:
		overallLevel = LevelMedium
	}

	plan := buildMitigationPlan(items)

	return RiskReport{
		ProjectID:      projectID,
		Items:          items,
		LevelCounts:    counts,
		OverallScore:   normalized01 * 100,
		OverallLevel:   overallLevel,
		Alerts:         alerts,
		MitigationPlan: plan,
	}
}

// buildMitigationPlan ranks the top 5 risks by score and assigns each a
// priority/deadline/owner by severity and category.
func buildMitigationPlan(items []RiskItem) []MitigationAction {
	ranked := append([]RiskItem(nil), items...)
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].Score > ranked[j-1].Score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}
	if len(ranked) > 5 {
		ranked = ranked[:5]
	}

	plan := make([]MitigationAction, 0, len(ranked))
	for _, it := range ranked {
		priority, deadline := priorityFor(it.Level)
		plan = append(plan, MitigationAction{
			Category:     it.Category,
			Description:  it.Description,
			Priority:     priority,
			DeadlineDays: deadline,
			Owner:        ownerFor(it.Category),
		})
	}
	return plan
}

func priorityFor(level string) (string, int) {
	switch level {
	case LevelCritical:
		return "P0", 1
	case LevelHigh:
		return "P1", 3
	case LevelMedium:
		return "P2", 7
	default:
		return "P3", 14
	}
}

func ownerFor(category string) string {
	switch category {
	case "progress":
		return "project manager"
	case "cost":
		return "cost controller"
	case "safety":
		return "site safety officer"
	default:
		return "project manager"
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
