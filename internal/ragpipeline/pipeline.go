// Package ragpipeline implements the end-to-end question-answering
// pipeline: query preprocessing and fingerprinting, cache lookup, hybrid
// retrieval, prompt assembly with graph context, the LLM call with bounded
// retry, result assembly, and the cache write-back.
package ragpipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ragengine/internal/cache"
	"ragengine/internal/llm"
	"ragengine/internal/obs"
	"ragengine/internal/retrieve"
)

// Request is one question-answering invocation.
type Request struct {
	Query        string
	TopK         int
	ProjectID    string
	ExtraContext string
	UseRerank    bool
	UseGraph     bool
	SkipCache    bool
}

// Source is one retrieved context returned to the caller, its text
// truncated for transport.
type Source struct {
	ChunkID string   `json:"chunk_id"`
	DocID   string   `json:"doc_id"`
	Text    string   `json:"text"`
	Score   float64  `json:"score"`
	Sources []string `json:"retrieval_sources"`
}

// Metadata describes how an answer was produced.
type Metadata struct {
	RetrievalCount int       `json:"retrieval_count"`
	ResponseTimeMS int64     `json:"response_time_ms"`
	Model          string    `json:"model"`
	Timestamp      time.Time `json:"timestamp"`
	GraphEnhanced  bool      `json:"graph_enhanced"`
	NoResult       bool      `json:"no_result,omitempty"`
	LLMFailed      bool      `json:"llm_failed,omitempty"`
}

// Response is the answer returned to the caller.
type Response struct {
	Answer       string   `json:"answer"`
	Sources      []Source `json:"sources"`
	Query        string   `json:"query"`
	Cached       bool     `json:"cached"`
	GraphContext string   `json:"graph_context,omitempty"`
	Metadata     Metadata `json:"metadata"`
}

// cachedEntry is what the cache stores per fingerprint: answer plus
// sources, never metadata, so a hit is rebuilt with fresh metadata and
// cached=true.
type cachedEntry struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Retriever is the hybrid-retrieval surface the pipeline calls.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opt retrieve.Options) (retrieve.Result, error)
}

// ResultCache is the slice of the cache the pipeline reads and writes. Both
// operations are best-effort; a miss and a backend failure look the same.
type ResultCache interface {
	GetCachedQueryResult(ctx context.Context, fingerprint string, out any) bool
	CacheQueryResult(ctx context.Context, fingerprint string, result any, ttl time.Duration)
}

// Pipeline owns the retrieval and generation flow. Safe for concurrent use:
// distinct queries share nothing mutable beyond the cache.
type Pipeline struct {
	retriever Retriever
	provider  llm.Provider
	model     string
	cache     ResultCache

	cacheTTL           time.Duration
	maxRetries         int
	backoffBase        time.Duration
	maxContextChars    int
	graphPreambleChars int
	sourceTextChars    int

	fusion retrieve.Options // per-call knobs overlay onto this base

	log     *logrus.Logger
	metrics obs.Metrics
}

// Option configures the Pipeline during construction.
type Option func(*Pipeline)

func WithCache(c ResultCache, ttl time.Duration) Option {
	return func(p *Pipeline) { p.cache = c; p.cacheTTL = ttl }
}
func WithMaxRetries(n int) Option            { return func(p *Pipeline) { p.maxRetries = n } }
func WithBackoffBase(d time.Duration) Option { return func(p *Pipeline) { p.backoffBase = d } }
func WithMaxContextChars(n int) Option       { return func(p *Pipeline) { p.maxContextChars = n } }
func WithGraphPreambleChars(n int) Option    { return func(p *Pipeline) { p.graphPreambleChars = n } }
func WithLogger(l *logrus.Logger) Option     { return func(p *Pipeline) { p.log = l } }
func WithMetrics(m obs.Metrics) Option       { return func(p *Pipeline) { p.metrics = m } }

func WithFusionDefaults(o retrieve.Options) Option {
	return func(p *Pipeline) { p.fusion = o }
}

// New constructs a Pipeline over a retriever and an LLM provider.
func New(r Retriever, provider llm.Provider, model string, opts ...Option) *Pipeline {
	p := &Pipeline{
		retriever:          r,
		provider:           provider,
		model:              model,
		cacheTTL:           6 * time.Hour,
		maxRetries:         3,
		backoffBase:        500 * time.Millisecond,
		maxContextChars:    3000,
		graphPreambleChars: 500,
		sourceTextChars:    200,
		log:                logrus.StandardLogger(),
		metrics:            obs.Noop{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ErrEmptyQuery is the input-invalid failure for a blank query.
var ErrEmptyQuery = fmt.Errorf("query must not be empty")

// Answer runs the full pipeline for one request.
func (p *Pipeline) Answer(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	normalized := normalizeQuery(req.Query)
	if normalized == "" {
		return Response{}, ErrEmptyQuery
	}
	fingerprint := cache.Fingerprint(normalized)

	if p.cache != nil && !req.SkipCache {
		var entry cachedEntry
		if p.cache.GetCachedQueryResult(ctx, fingerprint, &entry) {
			p.metrics.IncCounter("qa_cache_hits_total", nil)
			return Response{
				Answer:  entry.Answer,
				Sources: entry.Sources,
				Query:   normalized,
				Cached:  true,
				Metadata: Metadata{
					RetrievalCount: len(entry.Sources),
					ResponseTimeMS: time.Since(start).Milliseconds(),
					Model:          p.model,
					Timestamp:      time.Now().UTC(),
				},
			}, nil
		}
	}

	opt := p.fusion
	opt.TopK = req.TopK
	opt.UseRerank = req.UseRerank
	opt.EnhanceWithGraph = req.UseGraph
	if req.ProjectID != "" {
		opt.Filter = map[string]string{"doc_id": req.ProjectID}
		opt.DocID = req.ProjectID
	}
	opt.DisableGraph = !req.UseGraph

	t0 := time.Now()
	result, err := p.retriever.Retrieve(ctx, normalized, opt)
	if err != nil {
		return Response{}, err
	}
	p.metrics.ObserveHistogram("qa_stage_ms", float64(time.Since(t0).Milliseconds()), map[string]string{"stage": "retrieve"})

	if len(result.Candidates) == 0 {
		return Response{
			Answer: noResultFallback(normalized),
			Query:  normalized,
			Metadata: Metadata{
				ResponseTimeMS: time.Since(start).Milliseconds(),
				Model:          p.model,
				Timestamp:      time.Now().UTC(),
				NoResult:       true,
			},
		}, nil
	}

	prompt, graphContext := assemblePrompt(normalized, req.ExtraContext, result, p.maxContextChars, p.graphPreambleChars)

	t0 = time.Now()
	answer, err := p.generate(ctx, prompt)
	p.metrics.ObserveHistogram("qa_stage_ms", float64(time.Since(t0).Milliseconds()), map[string]string{"stage": "generate"})
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		p.log.WithError(err).Error("ragpipeline: generation failed after retries")
		return Response{
			Answer: unavailableFallback(normalized),
			Query:  normalized,
			Metadata: Metadata{
				RetrievalCount: len(result.Candidates),
				ResponseTimeMS: time.Since(start).Milliseconds(),
				Model:          p.model,
				Timestamp:      time.Now().UTC(),
				LLMFailed:      true,
			},
		}, nil
	}

	sources := make([]Source, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		sources = append(sources, Source{
			ChunkID: c.ChunkID,
			DocID:   c.DocID,
			Text:    truncate(c.Text, p.sourceTextChars),
			Score:   c.FusionScore,
			Sources: c.RetrievalSources,
		})
	}

	resp := Response{
		Answer:       answer,
		Sources:      sources,
		Query:        normalized,
		GraphContext: graphContext,
		Metadata: Metadata{
			RetrievalCount: len(result.Candidates),
			ResponseTimeMS: time.Since(start).Milliseconds(),
			Model:          p.model,
			Timestamp:      time.Now().UTC(),
			GraphEnhanced:  graphContext != "",
		},
	}

	if p.cache != nil && ctx.Err() == nil {
		p.cache.CacheQueryResult(ctx, fingerprint, cachedEntry{Answer: answer, Sources: sources}, p.cacheTTL)
	}
	return resp, nil
}

// Ask is the narrow surface the analytics agents attach AI insights with:
// a short templated query plus the structured result as extra context.
func (p *Pipeline) Ask(ctx context.Context, query, extraContext string) (string, error) {
	resp, err := p.Answer(ctx, Request{
		Query:        query,
		TopK:         5,
		ExtraContext: extraContext,
		UseGraph:     true,
	})
	if err != nil {
		return "", err
	}
	return resp.Answer, nil
}

// generate calls the LLM once per attempt with exponential backoff between
// attempts, honoring the request deadline.
func (p *Pipeline) generate(ctx context.Context, prompt string) (string, error) {
	msgs := []llm.Message{
		{Role: "system", Content: systemRole},
		{Role: "user", Content: prompt},
	}
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.backoffBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
		msg, err := p.provider.Chat(ctx, msgs, nil, p.model)
		if err == nil {
			return msg.Content, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		p.log.WithError(err).WithField("attempt", attempt+1).Warn("ragpipeline: llm call failed, retrying")
	}
	return "", lastErr
}

// normalizeQuery trims and collapses internal whitespace, the same
// canonical form the cache fingerprint is computed over.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
