// Package lexical implements an in-memory BM25 Okapi index over
// tokenized chunks, with persistence. The ranking algorithm and its failure
// model (empty corpus returns empty results, a bad chunk is skipped rather
// than aborting the build) are grounded on the BM25Okapi wrapper in the
// construction-RAG original this module reimplements
// (services/retrieval/bm25/bm25_engine.py), which itself wraps the
// well-known rank_bm25.BM25Okapi reference algorithm.
package lexical

import (
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"ragengine/internal/textanalysis"
)

// Tokenizer is the subset of textanalysis.Analyzer the index depends on, so
// tests can substitute a trivial stub.
type Tokenizer interface {
	Tokenize(text string, mode textanalysis.Mode) []string
}

// Doc is one chunk to be indexed.
type Doc struct {
	ID   string
	Text string
}

// Result is one ranked hit.
type Result struct {
	ID    string
	Score float64
	Rank  int // 1-based
}

// epsilon sets the idf floor for terms in half or more of the documents,
// whose raw idf would be zero or negative: as in rank_bm25.BM25Okapi they
// get epsilon * average idf, or epsilon itself when the average idf is not
// positive (one- and two-document corpora), so a matching term always adds
// a positive score.
const epsilon = 0.25

// Index is a BM25 Okapi index. It is safe for concurrent use: readers take
// a snapshot of the built index under a read lock, and Build/AddDocuments
// swap in a new snapshot under a write lock, so a search in flight during a
// rebuild observes either the old or the new state, never a partial one.
type Index struct {
	log *logrus.Logger
	tok Tokenizer

	k1 float64
	b  float64

	mu  sync.RWMutex
	idx *builtIndex
}

type builtIndex struct {
	ids        []string
	tokenized  [][]string
	docLen     []int
	avgDocLen  float64
	idf        map[string]float64
	avgIDF     float64
	postings   map[string][]int // term -> doc indices containing it
}

// Option configures an Index at construction.
type Option func(*Index)

// WithK1 sets the term-frequency saturation parameter (recommended 1.2-2.0).
func WithK1(k1 float64) Option {
	return func(i *Index) { i.k1 = k1 }
}

// WithB sets the document-length normalization parameter.
func WithB(b float64) Option {
	return func(i *Index) { i.b = b }
}

// WithLogger overrides the default logger.
func WithLogger(l *logrus.Logger) Option {
	return func(i *Index) { i.log = l }
}

// New constructs an empty Index with default k1=1.5, b=0.75.
func New(tok Tokenizer, opts ...Option) *Index {
	idx := &Index{tok: tok, k1: 1.5, b: 0.75, log: logrus.StandardLogger()}
	for _, o := range opts {
		o(idx)
	}
	if idx.k1 < 1.2 {
		idx.k1 = 1.2
	}
	if idx.k1 > 2.0 {
		idx.k1 = 2.0
	}
	return idx
}

// Build tokenizes every doc and forms a new BM25 index, replacing any
// previous one atomically. A doc with empty text or an empty token list is
// skipped (logged), not an error.
func (i *Index) Build(docs []Doc) {
	ids := make([]string, 0, len(docs))
	tokenized := make([][]string, 0, len(docs))
	for n, d := range docs {
		if len(d.Text) == 0 {
			i.log.WithField("doc_index", n).Warn("lexical: empty text, skipping")
			continue
		}
		toks := i.tok.Tokenize(d.Text, textanalysis.ModeSearch)
		if len(toks) == 0 {
			i.log.WithField("doc_index", n).Warn("lexical: empty tokens after tokenization, skipping")
			continue
		}
		ids = append(ids, d.ID)
		tokenized = append(tokenized, toks)
	}
	i.swap(ids, tokenized)
}

// AddDocuments is contract-equivalent to Build(union(existing, new)): it
// rebuilds over the union of previously indexed documents and newDocs. The
// caller passes only the new documents: the prior tokenized corpus is
// reused directly (no re-tokenization), which keeps it indistinguishable
// from a from-scratch rebuild over the same input for ranking purposes.
func (i *Index) AddDocuments(newDocs []Doc) {
	i.mu.RLock()
	var ids []string
	var tokenized [][]string
	if i.idx != nil {
		ids = append(ids, i.idx.ids...)
		tokenized = append(tokenized, i.idx.tokenized...)
	}
	i.mu.RUnlock()

	for n, d := range newDocs {
		if len(d.Text) == 0 {
			i.log.WithField("doc_index", n).Warn("lexical: empty text, skipping")
			continue
		}
		toks := i.tok.Tokenize(d.Text, textanalysis.ModeSearch)
		if len(toks) == 0 {
			i.log.WithField("doc_index", n).Warn("lexical: empty tokens after tokenization, skipping")
			continue
		}
		ids = append(ids, d.ID)
		tokenized = append(tokenized, toks)
	}
	i.swap(ids, tokenized)
}

func (i *Index) swap(ids []string, tokenized [][]string) {
	if len(tokenized) == 0 {
		i.mu.Lock()
		i.idx = nil
		i.mu.Unlock()
		i.log.Warn("lexical: no valid documents, index is empty")
		return
	}

	docLen := make([]int, len(tokenized))
	var totalLen int
	postings := map[string][]int{}
	docFreq := map[string]int{}
	for di, toks := range tokenized {
		docLen[di] = len(toks)
		totalLen += len(toks)
		seen := map[string]bool{}
		for _, t := range toks {
			if !seen[t] {
				seen[t] = true
				docFreq[t]++
				postings[t] = append(postings[t], di)
			}
		}
	}
	n := float64(len(tokenized))
	avgDocLen := float64(totalLen) / n

	idf := make(map[string]float64, len(docFreq))
	var idfSum float64
	for term, df := range docFreq {
		v := math.Log(float64(n)-float64(df)+0.5) - math.Log(float64(df)+0.5)
		idf[term] = v
		idfSum += v
	}
	avgIDF := idfSum / float64(len(docFreq))
	if len(docFreq) == 0 {
		avgIDF = 0
	}
	floor := epsilon * avgIDF
	if floor <= 0 {
		floor = epsilon
	}
	for term, v := range idf {
		if v <= 0 {
			idf[term] = floor
		}
	}

	next := &builtIndex{
		ids:       ids,
		tokenized: tokenized,
		docLen:    docLen,
		avgDocLen: avgDocLen,
		idf:       idf,
		avgIDF:    avgIDF,
		postings:  postings,
	}
	i.mu.Lock()
	i.idx = next
	i.mu.Unlock()
	i.log.WithFields(logrus.Fields{"docs": len(ids), "avg_doc_length": avgDocLen}).Info("lexical: index built")
}

// Search scores query against the built index and returns up to topK
// results with score > 0, ranked descending. Tokens with zero postings
// contribute zero. An unbuilt index or an empty query returns empty, not
// an error.
func (i *Index) Search(query string, topK int) []Result {
	i.mu.RLock()
	idx := i.idx
	i.mu.RUnlock()
	if idx == nil {
		i.log.Warn("lexical: search on unbuilt index")
		return nil
	}
	if topK <= 0 {
		return nil
	}
	qtoks := i.tok.Tokenize(query, textanalysis.ModeSearch)
	if len(qtoks) == 0 {
		i.log.Warn("lexical: query tokenized to empty")
		return nil
	}

	scores := make([]float64, len(idx.ids))
	for _, term := range qtoks {
		docs, ok := idx.postings[term]
		if !ok {
			continue
		}
		termIDF := idx.idf[term]
		for _, di := range docs {
			tf := float64(termFreq(idx.tokenized[di], term))
			denom := tf + i.k1*(1-i.b+i.b*float64(idx.docLen[di])/idx.avgDocLen)
			scores[di] += termIDF * (tf * (i.k1 + 1)) / denom
		}
	}

	type ranked struct {
		idx   int
		score float64
	}
	cands := make([]ranked, 0, len(scores))
	for di, s := range scores {
		if s > 0 {
			cands = append(cands, ranked{di, s})
		}
	}
	sort.Slice(cands, func(a, b int) bool {
		if cands[a].score != cands[b].score {
			return cands[a].score > cands[b].score
		}
		return idx.ids[cands[a].idx] < idx.ids[cands[b].idx]
	})
	if topK < len(cands) {
		cands = cands[:topK]
	}
	out := make([]Result, len(cands))
	for r, c := range cands {
		out[r] = Result{ID: idx.ids[c.idx], Score: c.score, Rank: r + 1}
	}
	return out
}

func termFreq(toks []string, term string) int {
	n := 0
	for _, t := range toks {
		if t == term {
			n++
		}
	}
	return n
}

// Stats is the diagnostic surface mirroring the original's get_stats().
type Stats struct {
	TotalDocs    int
	AvgDocLength float64
	MinDocLength int
	MaxDocLength int
	K1           float64
	B            float64
}

// GetStats reports corpus statistics, or TotalDocs=0 if unbuilt.
func (i *Index) GetStats() Stats {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.idx == nil {
		return Stats{}
	}
	minL, maxL := i.idx.docLen[0], i.idx.docLen[0]
	for _, l := range i.idx.docLen {
		if l < minL {
			minL = l
		}
		if l > maxL {
			maxL = l
		}
	}
	return Stats{
		TotalDocs:    len(i.idx.ids),
		AvgDocLength: i.idx.avgDocLen,
		MinDocLength: minL,
		MaxDocLength: maxL,
		K1:           i.k1,
		B:            i.b,
	}
}

// persisted is the on-disk encoding of an Index, carrying enough state
// (corpus, ids, and k1/b) to reproduce identical Search output after
// Load.
type persisted struct {
	IDs       []string
	Tokenized [][]string
	K1        float64
	B         float64
}

// Save persists the tokenized corpus, id list, and BM25 parameters.
func (i *Index) Save(path string) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	p := persisted{K1: i.k1, B: i.b}
	if i.idx != nil {
		p.IDs = i.idx.ids
		p.Tokenized = i.idx.tokenized
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(p)
}

// Load restores an index previously written by Save, rebuilding the BM25
// model (idf table and document-length statistics) from the persisted
// tokenized corpus so that Search reproduces the same output for the same
// query.
func (i *Index) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var p persisted
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		return err
	}
	i.mu.Lock()
	i.k1, i.b = p.K1, p.B
	i.mu.Unlock()
	i.swap(p.IDs, p.Tokenized)
	return nil
}
