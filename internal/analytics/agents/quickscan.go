package agents

import (
	"context"
	"fmt"
)

// QuickScanResult is a terse, mitigation-plan-free summary of RiskReport
// for callers that just need a go/no-go read.
type QuickScanResult struct {
	ProjectID    string
	OverallLevel string
	OverallScore float64
	TopAlerts    []string
}

// QuickScan runs the same three scan passes as Analyze without AI insights
// and returns only the overall verdict and up to 3 alerts; the mitigation
// plan the scan builds is not part of the result.
func (a *RiskAgent) QuickScan(ctx context.Context, projectID string) (QuickScanResult, error) {
	var out QuickScanResult
	err := run(ctx, a.wlog, projectID, "quick_scan", fmt.Sprintf("project_id=%s", projectID), func(ctx context.Context) (string, error) {
		if ferr := ensureProject(ctx, a.db, projectID); ferr != nil {
			return "", ferr
		}
		report, ferr := a.analyze(ctx, projectID, RiskOptions{})
		if ferr != nil {
			return "", ferr
		}
		alerts := report.Alerts
		if len(alerts) > 3 {
			alerts = alerts[:3]
		}
		out = QuickScanResult{
			ProjectID:    projectID,
			OverallLevel: report.OverallLevel,
			OverallScore: report.OverallScore,
			TopAlerts:    alerts,
		}
		return fmt.Sprintf("overall=%s score=%.1f", out.OverallLevel, out.OverallScore), nil
	})
	return out, err
}
