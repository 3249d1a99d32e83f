// Package retrieve implements the three-way hybrid retriever: parallel
// fan-out over the lexical index, the tiered vector store, and the graph
// retriever, reciprocal-rank or weighted-score fusion, optional
// cross-encoder rerank, and graph-context enhancement of the fused list.
package retrieve

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"ragengine/internal/graphretrieve"
	"ragengine/internal/lexical"
	"ragengine/internal/obs"
	"ragengine/internal/persistence/relational"
	"ragengine/internal/persistence/vectorstore"
)

// Lexical is the BM25 surface the retriever fans out to.
type Lexical interface {
	Search(query string, topK int) []lexical.Result
}

// Embedder turns the query into the vector the vector channel searches
// with.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorChannel is the vector-store surface: a filtered ANN search across the tier
// hierarchy. Implementations usually wrap vectorstore.HierarchicalSearch.
type VectorChannel interface {
	Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]vectorstore.Hit, error)
}

// GraphChannel is the graph-retrieval surface. Its Search never errors; unavailability
// degrades to an empty result inside the channel.
type GraphChannel interface {
	Search(ctx context.Context, query string, opts graphretrieve.Options) graphretrieve.Result
}

// ChunkLookup resolves candidate chunk ids to their stored text so fusion
// output carries the text rerank and prompt assembly need.
type ChunkLookup interface {
	GetChunksByIDs(ctx context.Context, ids []string) ([]relational.Chunk, error)
}

// Method selects the fusion rule.
type Method string

const (
	MethodRRF      Method = "rrf"
	MethodWeighted Method = "weighted"
)

// Weights are the per-channel fusion weights. Zero value falls back to the
// defaults {bm25:0.3, vector:0.4, graph:0.3}.
type Weights struct {
	BM25   float64
	Vector float64
	Graph  float64
}

func (w Weights) orDefaults() Weights {
	if w.BM25 == 0 && w.Vector == 0 && w.Graph == 0 {
		return Weights{BM25: 0.3, Vector: 0.4, Graph: 0.3}
	}
	return w
}

// Options configures one Retrieve call.
type Options struct {
	TopK int

	// Per-channel candidate caps. Zero means the default multiple of TopK:
	// BM25 and vector 3x, graph 2x.
	BM25K   int
	VectorK int
	GraphK  int

	// Filter is passed to the vector channel as exact-match payload
	// constraints. DocID scopes the graph channel.
	Filter map[string]string
	DocID  string

	UseRerank        bool
	EnhanceWithGraph bool

	// DisableGraph turns the graph channel off entirely for this call.
	DisableGraph bool

	Method  Method
	Weights Weights
	RRFK    int // default 60

	// Graph expansion knobs, forwarded to the graph channel.
	GraphRelationDepth int
	GraphFanoutCap     int
}

// Candidate is one fused retrieval result with full provenance.
type Candidate struct {
	ChunkID string
	DocID   string
	Text    string

	BM25Rank    int // 1-based; 0 if absent from the channel
	BM25Score   float64
	VectorRank  int
	VectorScore float64
	GraphRank   int
	GraphScore  float64

	FusionScore float64
	RerankScore *float64

	// RetrievalSources is the subset of {bm25, vector, graph} that
	// produced this candidate.
	RetrievalSources []string

	GraphContext       string
	GlobalGraphContext string
}

// Result is the full retrieval output: the ranked candidates plus the raw
// graph result so the answer pipeline can render a knowledge preamble.
type Result struct {
	Candidates []Candidate
	Graph      graphretrieve.Result
}

// Retriever owns the three channels and the fusion configuration.
type Retriever struct {
	lex     Lexical
	embed   Embedder
	vec     VectorChannel
	graph   GraphChannel
	chunks  ChunkLookup
	rerank  Reranker
	log     *logrus.Logger
	metrics obs.Metrics
}

// New constructs a Retriever. Any channel may be nil; a nil channel simply
// contributes an empty candidate list, the same degradation as a failing
// one.
func New(lex Lexical, embed Embedder, vec VectorChannel, graph GraphChannel, chunks ChunkLookup, opts ...Option) *Retriever {
	r := &Retriever{
		lex:     lex,
		embed:   embed,
		vec:     vec,
		graph:   graph,
		chunks:  chunks,
		log:     logrus.StandardLogger(),
		metrics: obs.Noop{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Option configures the Retriever during construction.
type Option func(*Retriever)

func WithLogger(l *logrus.Logger) Option { return func(r *Retriever) { r.log = l } }
func WithMetrics(m obs.Metrics) Option   { return func(r *Retriever) { r.metrics = m } }
func WithReranker(rr Reranker) Option    { return func(r *Retriever) { r.rerank = rr } }

// channelOut carries one channel's outcome through the fan-out.
type channelOut struct {
	lex   []lexical.Result
	vec   []vectorstore.Hit
	graph graphretrieve.Result
	dur   time.Duration
	err   error
}

// Retrieve runs the full hybrid search. A failing channel degrades to empty
// and is logged; only context cancellation surfaces as an error, so callers
// can distinguish "nothing found" from "caller gave up".
func (r *Retriever) Retrieve(ctx context.Context, query string, opt Options) (Result, error) {
	if opt.TopK <= 0 {
		return Result{}, nil
	}
	bm25K := opt.BM25K
	if bm25K <= 0 {
		bm25K = 3 * opt.TopK
	}
	vectorK := opt.VectorK
	if vectorK <= 0 {
		vectorK = 3 * opt.TopK
	}
	graphK := opt.GraphK
	if graphK <= 0 {
		graphK = 2 * opt.TopK
	}

	lexCh := make(chan channelOut, 1)
	vecCh := make(chan channelOut, 1)
	graphCh := make(chan channelOut, 1)

	go func() {
		t0 := time.Now()
		var res []lexical.Result
		if r.lex != nil {
			res = r.lex.Search(query, bm25K)
		}
		lexCh <- channelOut{lex: res, dur: time.Since(t0)}
	}()

	go func() {
		t0 := time.Now()
		out := channelOut{}
		if r.vec != nil && r.embed != nil {
			qvec, err := r.embed.Embed(ctx, query)
			if err != nil {
				out.err = err
			} else {
				out.vec, out.err = r.vec.Search(ctx, qvec, vectorK, opt.Filter)
			}
		}
		out.dur = time.Since(t0)
		vecCh <- out
	}()

	go func() {
		t0 := time.Now()
		out := channelOut{}
		if r.graph != nil && !opt.DisableGraph {
			out.graph = r.graph.Search(ctx, query, graphretrieve.Options{
				TopK:          graphK,
				DocID:         opt.DocID,
				RelationDepth: opt.GraphRelationDepth,
				FanoutCap:     opt.GraphFanoutCap,
			})
		}
		out.dur = time.Since(t0)
		graphCh <- out
	}()

	lexOut := <-lexCh
	vecOut := <-vecCh
	graphOut := <-graphCh

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if vecOut.err != nil {
		r.log.WithError(vecOut.err).Warn("retrieve: vector channel failed, degrading to empty")
		vecOut.vec = nil
	}
	r.metrics.ObserveHistogram("retrieval_stage_ms", float64(lexOut.dur.Milliseconds()), map[string]string{"stage": "bm25"})
	r.metrics.ObserveHistogram("retrieval_stage_ms", float64(vecOut.dur.Milliseconds()), map[string]string{"stage": "vector"})
	r.metrics.ObserveHistogram("retrieval_stage_ms", float64(graphOut.dur.Milliseconds()), map[string]string{"stage": "graph"})

	t0 := time.Now()
	fused := fuse(lexOut.lex, vecOut.vec, graphOut.graph.Hits, opt)
	r.metrics.ObserveHistogram("retrieval_stage_ms", float64(time.Since(t0).Milliseconds()), map[string]string{"stage": "fusion"})

	fused = r.resolveTexts(ctx, fused)

	if opt.UseRerank && r.rerank != nil && len(fused) > 0 {
		t0 = time.Now()
		fused = rerankCandidates(ctx, r.rerank, query, fused, r.log)
		r.metrics.ObserveHistogram("retrieval_stage_ms", float64(time.Since(t0).Milliseconds()), map[string]string{"stage": "rerank"})
	}

	if len(fused) > opt.TopK {
		fused = fused[:opt.TopK]
	}

	if opt.EnhanceWithGraph {
		enhanceWithGraphContext(fused, graphOut.graph.Hits)
	}

	for range fused {
		r.metrics.IncCounter("retrieval_results_total", nil)
	}
	return Result{Candidates: fused, Graph: graphOut.graph}, nil
}

// resolveTexts fills candidate text from the chunk store. Graph-sourced
// candidates already carry their rendered context as text. Chunks missing
// from the store are dropped rather than surfaced with empty text.
func (r *Retriever) resolveTexts(ctx context.Context, cands []Candidate) []Candidate {
	if r.chunks == nil {
		return cands
	}
	var need []string
	for _, c := range cands {
		if c.Text == "" {
			need = append(need, c.ChunkID)
		}
	}
	if len(need) == 0 {
		return cands
	}
	rows, err := r.chunks.GetChunksByIDs(ctx, need)
	if err != nil {
		r.log.WithError(err).Warn("retrieve: chunk text lookup failed, keeping candidates without text")
		return cands
	}
	texts := make(map[string]relational.Chunk, len(rows))
	for _, row := range rows {
		texts[row.ID] = row
	}
	out := cands[:0]
	for _, c := range cands {
		if c.Text == "" {
			row, ok := texts[c.ChunkID]
			if !ok {
				r.log.WithField("chunk_id", c.ChunkID).Warn("retrieve: chunk missing from store, dropping candidate")
				continue
			}
			c.Text = row.Text
			if c.DocID == "" {
				c.DocID = row.DocumentID
			}
		}
		out = append(out, c)
	}
	return out
}
