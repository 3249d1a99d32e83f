// Package app wires the engine's long-lived handles into one application
// context: every stateful client (graph, vector, cache, relational, LLM) is
// opened here, passed explicitly into the components that need it, and
// closed by a single Shutdown call.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ragengine/internal/analytics/agents"
	"ragengine/internal/cache"
	"ragengine/internal/config"
	"ragengine/internal/drawing"
	"ragengine/internal/embedding"
	"ragengine/internal/graphretrieve"
	"ragengine/internal/ingest"
	"ragengine/internal/lexical"
	"ragengine/internal/llm/providers"
	"ragengine/internal/obs"
	"ragengine/internal/persistence/graphstore"
	"ragengine/internal/persistence/relational"
	"ragengine/internal/persistence/vectorstore"
	"ragengine/internal/ragpipeline"
	"ragengine/internal/retrieve"
	"ragengine/internal/textanalysis"
	"ragengine/internal/workflow"
)

// App owns every long-lived handle and the assembled pipelines.
type App struct {
	Config config.Config
	Log    *logrus.Logger

	Relational *relational.Pool
	Graph      *graphstore.Client
	GraphRepo  *graphstore.Repository
	Vector     vectorstore.Store
	Cache      *cache.Cache

	Analyzer *textanalysis.Analyzer
	Lexical  *lexical.Index

	Ingest    *ingest.Service
	Drawing   *drawing.Processor
	Retriever *retrieve.Retriever
	Pipeline  *ragpipeline.Pipeline

	WorkflowLog *workflow.Log

	ProgressAgent *agents.ProgressAgent
	CostAgent     *agents.CostAgent
	SafetyAgent   *agents.SafetyAgent
	RiskAgent     *agents.RiskAgent
	WeeklyAgent   *agents.WeeklyReportAgent

	closers []func(context.Context) error
}

// New opens every client and assembles the pipelines. Optional backends
// (graph store, cache, ClickHouse, Kafka) degrade to nil handles with a
// warning rather than failing startup; the components built over them
// already tolerate their absence.
func New(ctx context.Context, cfg config.Config, log *logrus.Logger) (*App, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	a := &App{Config: cfg, Log: log}
	metrics := obs.NewOtel(cfg.Obs.ServiceName)

	rel, err := relational.Open(ctx, cfg.Relational.DSN,
		cfg.Relational.MaxConns, cfg.Relational.MaxOverflow,
		time.Duration(cfg.Relational.ConnMaxLifeMins)*time.Minute,
		cfg.Relational.PrePing, log)
	if err != nil {
		return nil, fmt.Errorf("open relational store: %w", err)
	}
	a.Relational = rel
	a.closers = append(a.closers, func(context.Context) error { rel.Close(); return nil })

	vec, err := vectorstore.NewQdrant(cfg.VectorDB.DSN, log)
	if err != nil {
		a.shutdownPartial(ctx)
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	a.Vector = vec
	a.closers = append(a.closers, func(context.Context) error { return vec.Close() })
	for _, name := range cfg.VectorDB.HierarchicalOrder {
		spec := vectorstore.CollectionSpec{
			Name:      name,
			Dimension: cfg.VectorDB.Dimension,
			Metric:    vectorstore.Metric(cfg.VectorDB.Metric),
		}
		if err := vec.CreateCollection(ctx, spec); err != nil {
			log.WithError(err).WithField("collection", name).Warn("app: ensure collection failed")
		}
	}

	if graph, err := graphstore.NewClient(cfg.GraphDB.URI, cfg.GraphDB.Username,
		cfg.GraphDB.Password, cfg.GraphDB.Database, 0, log); err != nil {
		log.WithError(err).Warn("app: graph store unavailable, graph channel degrades to empty")
	} else {
		a.Graph = graph
		a.GraphRepo = graphstore.NewRepository(graph)
		a.closers = append(a.closers, graph.Close)
	}

	if c, err := cache.New(cache.Config{
		Addr:              cfg.Cache.Addr,
		Password:          cfg.Cache.Password,
		DB:                cfg.Cache.DB,
		DefaultTTL:        time.Duration(cfg.Cache.DefaultTTLSeconds) * time.Second,
		PermissionTTL:     time.Duration(cfg.Cache.PermissionTTLSecs) * time.Second,
		HistoryTTL:        time.Duration(cfg.Cache.HistoryTTLDays) * 24 * time.Hour,
		HistoryMaxLen:     int64(cfg.Cache.HistoryMaxLen),
	}, log); err != nil {
		log.WithError(err).Warn("app: cache unavailable, callers degrade to misses")
	} else {
		a.Cache = c
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	}

	a.WorkflowLog = workflow.New(rel.DB(), log)
	if cfg.ClickHouse.Enabled {
		if sink, err := workflow.NewClickHouseSink(ctx, cfg.ClickHouse.DSN, cfg.ClickHouse.Table); err != nil {
			log.WithError(err).Warn("app: clickhouse sink unavailable, workflow log stays postgres-only")
		} else {
			a.WorkflowLog.WithSink(sink)
			a.closers = append(a.closers, func(context.Context) error { return sink.Close() })
		}
	}

	a.Analyzer = textanalysis.New(nil)
	a.Lexical = lexical.New(a.Analyzer, lexical.WithLogger(log))

	embedder := embedding.NewClient(cfg.Embedding)

	var drawingOpts []drawing.ProcessorOption
	drawingOpts = append(drawingOpts, drawing.WithProcessorLogger(log),
		drawing.WithRecordStore(drawing.NewPostgresRecordStore(rel.DB())))
	if cfg.Kafka.Enabled {
		sink := drawing.NewKafkaSink(strings.Split(cfg.Kafka.Brokers, ","), cfg.Kafka.DrawingEventsTopic, log)
		drawingOpts = append(drawingOpts, drawing.WithEventSink(sink))
		a.closers = append(a.closers, func(context.Context) error { return sink.Close() })
	}
	var graphWriter drawing.GraphWriter
	if a.GraphRepo != nil {
		graphWriter = a.GraphRepo
	}
	a.Drawing = drawing.NewProcessor(graphWriter, drawingOpts...)

	ingestOpts := []ingest.Option{
		ingest.WithLogger(log),
		ingest.WithMetrics(metrics),
		ingest.WithDrawingProcessor(a.Drawing),
	}
	if a.GraphRepo != nil {
		ingestOpts = append(ingestOpts, ingest.WithGraphCascade(a.GraphRepo))
	}
	a.Ingest = ingest.New(a.Analyzer, rel, a.Lexical, vec, embedder, ingestOpts...)

	var graphChannel retrieve.GraphChannel
	if a.GraphRepo != nil {
		graphChannel = graphretrieve.New(a.GraphRepo, log)
	}
	a.Retriever = retrieve.New(
		a.Lexical,
		embedder,
		retrieve.NewTieredVectorChannel(vec, cfg.VectorDB.HierarchicalOrder),
		graphChannel,
		rel,
		retrieve.WithLogger(log),
		retrieve.WithMetrics(metrics),
	)

	httpClient := &http.Client{Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second}
	provider, err := providers.Build(cfg, httpClient)
	if err != nil {
		a.shutdownPartial(ctx)
		return nil, fmt.Errorf("build llm provider: %w", err)
	}

	pipelineOpts := []ragpipeline.Option{
		ragpipeline.WithLogger(log),
		ragpipeline.WithMetrics(metrics),
		ragpipeline.WithMaxRetries(cfg.LLM.MaxRetries),
		ragpipeline.WithMaxContextChars(cfg.MaxContextChars),
		ragpipeline.WithGraphPreambleChars(cfg.GraphPreambleChars),
		ragpipeline.WithFusionDefaults(retrieve.Options{
			Method: retrieve.Method(cfg.Fusion.Method),
			Weights: retrieve.Weights{
				BM25:   cfg.Fusion.BM25Weight,
				Vector: cfg.Fusion.VectorWeight,
				Graph:  cfg.Fusion.GraphWeight,
			},
			RRFK:               cfg.Fusion.RRFK,
			GraphRelationDepth: cfg.Fusion.GraphRelationDepth,
			GraphFanoutCap:     cfg.Fusion.GraphFanoutCap,
		}),
	}
	if a.Cache != nil {
		pipelineOpts = append(pipelineOpts,
			ragpipeline.WithCache(a.Cache, time.Duration(cfg.CacheTTLHours)*time.Hour))
	}
	a.Pipeline = ragpipeline.New(a.Retriever, provider, cfg.LLM.Model, pipelineOpts...)

	a.ProgressAgent = agents.NewProgressAgent(rel, a.WorkflowLog, log, a.Pipeline)
	a.CostAgent = agents.NewCostAgent(rel, a.WorkflowLog, log, a.Pipeline)
	a.SafetyAgent = agents.NewSafetyAgent(rel, a.WorkflowLog, log, a.Pipeline)
	a.RiskAgent = agents.NewRiskAgent(rel, a.WorkflowLog, log, a.Pipeline)
	a.WeeklyAgent = agents.NewWeeklyReportAgent(rel, a.WorkflowLog, log, a.Pipeline)

	return a, nil
}

// Shutdown closes every handle in reverse open order.
func (a *App) Shutdown(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Log.WithError(err).Warn("app: close failed during shutdown")
		}
	}
	a.closers = nil
}

func (a *App) shutdownPartial(ctx context.Context) { a.Shutdown(ctx) }
