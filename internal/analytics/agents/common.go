// Package agents implements the analytics agents that orchestrate the
// tool facades into workflow-logged, optionally AI-annotated analyses: the
// risk agent, the weekly-report agent, and the narrower
// progress/cost/safety agents. Every run is bracketed by a workflow-log
// start/finalize pair, and the weekly report and risk agents collect their
// sections concurrently.
package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ragengine/internal/persistence/relational"
	"ragengine/internal/workflow"
)

// Insighter is the narrow answer-pipeline surface an agent needs to attach optional AI
// commentary to a deterministic result. Defined here rather than importing
// internal/ragpipeline directly so agents can be tested without a live LLM
// and so the dependency direction runs analytics -> interface, not
// analytics -> ragpipeline -> analytics.
type Insighter interface {
	Ask(ctx context.Context, query, extraContext string) (string, error)
}

// Logger is the subset of workflow.Log an agent run brackets itself with.
type Logger interface {
	Start(ctx context.Context, id, projectID, workflowType, inputParams string) string
	Complete(ctx context.Context, id, summary string)
	Fail(ctx context.Context, id string, err error)
}

var _ Logger = (*workflow.Log)(nil)

// ProjectData is the narrow slice of relational.Pool every agent reads
// from, pulled out as an interface so agents can be exercised against a
// fake in tests without a live Postgres instance.
type ProjectData interface {
	GetProject(ctx context.Context, id string) (relational.Project, error)
	ListTasks(ctx context.Context, projectID string) ([]relational.Task, error)
	ListCosts(ctx context.Context, projectID string) ([]relational.Cost, error)
	ListSafetyRecords(ctx context.Context, projectID string, since time.Time) ([]relational.SafetyRecord, error)
	ListQualityReports(ctx context.Context, projectID string, since time.Time) ([]relational.QualityReport, error)
}

var _ ProjectData = (*relational.Pool)(nil)

// ErrProjectNotFound is the structured failure an agent reports for a
// project id with no row behind it; the workflow log carries this message.
var ErrProjectNotFound = errors.New("Project not found")

// ensureProject resolves projectID before any tool runs, translating a
// missing row into the structured not-found error.
func ensureProject(ctx context.Context, db ProjectData, projectID string) error {
	if _, err := db.GetProject(ctx, projectID); err != nil {
		if errors.Is(err, relational.ErrProjectNotFound) {
			return ErrProjectNotFound
		}
		return err
	}
	return nil
}

// run brackets fn with a workflow-log start/finalize pair: the log always
// ends completed or failed, and a
// logging failure (including a nil log) never prevents fn from running or
// propagates back to the caller as a separate error. A panic inside fn is
// recovered, recorded as a failed run, and re-raised so it still surfaces to
// the caller the way an uncaught Go panic normally would — only the
// bookkeeping around it is swallowed, not the defect itself.
func run(ctx context.Context, log Logger, projectID, workflowType, inputParams string, fn func(ctx context.Context) (summary string, err error)) (err error) {
	var logID string
	if log != nil {
		logID = log.Start(ctx, uuid.NewString(), projectID, workflowType, inputParams)
	}
	defer func() {
		if r := recover(); r != nil {
			if log != nil {
				log.Fail(ctx, logID, fmt.Errorf("panic: %v", r))
			}
			panic(r)
		}
	}()
	summary, ferr := fn(ctx)
	if ferr != nil {
		if log != nil {
			log.Fail(ctx, logID, ferr)
		}
		return ferr
	}
	if log != nil {
		log.Complete(ctx, logID, summary)
	}
	return nil
}

// aiInsights calls ins with query and extraContext, splitting the answer
// into non-empty lines. Any failure is logged and yields an empty slice;
// insights must never fail the surrounding analysis.
func aiInsights(ctx context.Context, ins Insighter, log *logrus.Logger, query, extraContext string) []string {
	if ins == nil {
		return nil
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	answer, err := ins.Ask(ctx, query, extraContext)
	if err != nil {
		log.WithError(err).Warn("agents: ai insights call failed, continuing without them")
		return nil
	}
	var out []string
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// clamp01 bounds v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// levelWeight maps a risk level to the weight used when aggregating an
// overall score.
func levelWeight(level string) float64 {
	switch level {
	case LevelCritical:
		return 1.0
	case LevelHigh:
		return 0.7
	case LevelMedium:
		return 0.4
	default:
		return 0.1
	}
}

// Risk levels shared by every agent's per-dimension and overall scoring.
const (
	LevelCritical = "critical"
	LevelHigh     = "high"
	LevelMedium   = "medium"
	LevelLow      = "low"
)
