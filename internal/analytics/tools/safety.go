package tools

import (
	"sort"
	"time"

	"ragengine/internal/persistence/relational"
)

// Urgency labels, kept in the original's Chinese terms since they are
// domain vocabulary shown directly to site safety officers, not internal
// identifiers.
const (
	UrgencyCritical = "紧急"
	UrgencyMajor    = "重要"
	UrgencyRoutine  = "一般"
)

const (
	urgentDaysOpenThreshold = 7
	majorDaysOpenThreshold  = 14
)

// SafetyOverview summarizes inspection pass rate and defect/closure counts
// over a trailing window.
type SafetyOverview struct {
	ProjectID      string
	WindowDays     int
	PassRate       float64
	DefectsByLevel map[string]int
	OpenCount      int
	ClosedCount    int
	ClosureRate    float64
}

func SafetyProjectOverview(projectID string, windowDays int, records []relational.SafetyRecord, reports []relational.QualityReport) SafetyOverview {
	ov := SafetyOverview{ProjectID: projectID, WindowDays: windowDays, DefectsByLevel: map[string]int{}}
	for _, r := range records {
		ov.DefectsByLevel[r.Level]++
		if r.Status == "open" {
			ov.OpenCount++
		} else {
			ov.ClosedCount++
		}
	}
	total := ov.OpenCount + ov.ClosedCount
	if total > 0 {
		ov.ClosureRate = float64(ov.ClosedCount) / float64(total)
	}
	if len(reports) > 0 {
		var sum float64
		for _, rep := range reports {
			sum += rep.PassRate
		}
		ov.PassRate = sum / float64(len(reports))
	}
	return ov
}

// FrequentIssue is a defect type ranked by occurrence count, with a trend
// comparing the first half of the window to the second half.
type FrequentIssue struct {
	DefectType string
	Count      int
	Trend      string // rising, falling, stable
}

func IdentifyFrequentIssues(records []relational.SafetyRecord, windowStart, windowEnd time.Time) []FrequentIssue {
	counts := map[string]int{}
	firstHalf := map[string]int{}
	secondHalf := map[string]int{}
	mid := windowStart.Add(windowEnd.Sub(windowStart) / 2)
	for _, r := range records {
		counts[r.DefectType]++
		if r.RecordedAt.Before(mid) {
			firstHalf[r.DefectType]++
		} else {
			secondHalf[r.DefectType]++
		}
	}
	out := make([]FrequentIssue, 0, len(counts))
	for dt, n := range counts {
		trend := "stable"
		if secondHalf[dt] > firstHalf[dt] {
			trend = "rising"
		} else if secondHalf[dt] < firstHalf[dt] {
			trend = "falling"
		}
		out = append(out, FrequentIssue{DefectType: dt, Count: n, Trend: trend})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].DefectType < out[j].DefectType
	})
	return out
}

// DefectDistribution counts defects per level, descending.
type LevelCount struct {
	Level string
	Count int
}

func DefectDistribution(records []relational.SafetyRecord) []LevelCount {
	counts := map[string]int{}
	for _, r := range records {
		counts[r.Level]++
	}
	out := make([]LevelCount, 0, len(counts))
	for lvl, n := range counts {
		out = append(out, LevelCount{Level: lvl, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// OpenDefect is one unresolved safety record, annotated with its urgency.
type OpenDefect struct {
	relational.SafetyRecord
	DaysOpen int
	Urgency  string
}

func OpenDefects(records []relational.SafetyRecord, now time.Time) []OpenDefect {
	var out []OpenDefect
	for _, r := range records {
		if r.Status != "open" {
			continue
		}
		days := r.DaysOpen(now)
		out = append(out, OpenDefect{SafetyRecord: r, DaysOpen: days, Urgency: defectUrgency(r.Level, days)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DaysOpen > out[j].DaysOpen })
	return out
}

func defectUrgency(level string, daysOpen int) string {
	if level == "high" && daysOpen > urgentDaysOpenThreshold {
		return UrgencyCritical
	}
	if level == "high" || daysOpen > majorDaysOpenThreshold {
		return UrgencyMajor
	}
	return UrgencyRoutine
}

// RectificationPlan buckets open defects into deadline phases.
type RectificationPlan struct {
	Within3Days  []string
	Within7Days  []string
	Within14Days []string
}

func BuildRectificationPlan(open []OpenDefect) RectificationPlan {
	var plan RectificationPlan
	for _, d := range open {
		switch d.Urgency {
		case UrgencyCritical:
			plan.Within3Days = append(plan.Within3Days, d.ID)
		case UrgencyMajor:
			plan.Within7Days = append(plan.Within7Days, d.ID)
		default:
			plan.Within14Days = append(plan.Within14Days, d.ID)
		}
	}
	return plan
}
