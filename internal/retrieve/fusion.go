package retrieve

import (
	"sort"

	"ragengine/internal/graphretrieve"
	"ragengine/internal/lexical"
	"ragengine/internal/persistence/vectorstore"
)

// graphContextBonusRRF multiplies a graph hit's RRF contribution when it
// carries rendered context; graphContextBonusWeighted is the additive
// equivalent for weighted fusion.
const (
	defaultRRFK               = 60
	graphContextBonusRRF      = 1.2
	graphContextBonusWeighted = 0.1
)

// fuse merges the three channels' candidates under the configured fusion
// rule. Graph hits enter the union keyed by their entity id; their rendered
// context doubles as the candidate text.
func fuse(lexRes []lexical.Result, vecRes []vectorstore.Hit, graphRes []graphretrieve.Hit, opt Options) []Candidate {
	w := opt.Weights.orDefaults()
	byID := map[string]*Candidate{}
	var order []string

	get := func(id string) *Candidate {
		if c, ok := byID[id]; ok {
			return c
		}
		c := &Candidate{ChunkID: id}
		byID[id] = c
		order = append(order, id)
		return c
	}

	for i, res := range lexRes {
		c := get(res.ID)
		c.BM25Rank = i + 1
		c.BM25Score = res.Score
		c.RetrievalSources = append(c.RetrievalSources, "bm25")
	}
	for i, hit := range vecRes {
		c := get(hit.ChunkID)
		c.VectorRank = i + 1
		c.VectorScore = float64(hit.Distance)
		if c.DocID == "" {
			c.DocID = hit.DocID
		}
		c.RetrievalSources = append(c.RetrievalSources, "vector")
	}
	graphHasContext := map[string]bool{}
	for i, hit := range graphRes {
		c := get(hit.Entity.ID)
		c.GraphRank = i + 1
		c.GraphScore = hit.Score
		c.Text = hit.Text
		graphHasContext[hit.Entity.ID] = hit.Text != ""
		c.RetrievalSources = append(c.RetrievalSources, "graph")
	}

	switch opt.Method {
	case MethodWeighted:
		fuseWeighted(byID, order, w, graphHasContext, lexRes, vecRes, graphRes)
	default:
		fuseRRF(byID, order, w, opt.RRFK, graphHasContext)
	}

	out := make([]Candidate, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	// Deterministic order: fusion score, then vector score, then chunk id.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusionScore != out[j].FusionScore {
			return out[i].FusionScore > out[j].FusionScore
		}
		if out[i].VectorScore != out[j].VectorScore {
			return out[i].VectorScore > out[j].VectorScore
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

// fuseRRF applies reciprocal-rank fusion: each channel a candidate appears
// in contributes weight/(k+rank), and a graph hit with rendered context has
// its graph contribution multiplied by the context bonus.
func fuseRRF(byID map[string]*Candidate, order []string, w Weights, k int, graphHasContext map[string]bool) {
	if k <= 0 {
		k = defaultRRFK
	}
	for _, id := range order {
		c := byID[id]
		var score float64
		if c.BM25Rank > 0 {
			score += w.BM25 / float64(k+c.BM25Rank)
		}
		if c.VectorRank > 0 {
			score += w.Vector / float64(k+c.VectorRank)
		}
		if c.GraphRank > 0 {
			g := w.Graph / float64(k+c.GraphRank)
			if graphHasContext[id] {
				g *= graphContextBonusRRF
			}
			score += g
		}
		c.FusionScore = score
	}
}

// fuseWeighted min-max normalizes each channel's raw scores to [0,1], sums
// the weighted contributions, and adds a flat context bonus for graph hits
// that carry rendered context.
func fuseWeighted(byID map[string]*Candidate, order []string, w Weights, graphHasContext map[string]bool, lexRes []lexical.Result, vecRes []vectorstore.Hit, graphRes []graphretrieve.Hit) {
	bmNorm := minMax(len(lexRes), func(i int) float64 { return lexRes[i].Score })
	vecNorm := minMax(len(vecRes), func(i int) float64 { return float64(vecRes[i].Distance) })
	grNorm := minMax(len(graphRes), func(i int) float64 { return graphRes[i].Score })

	for _, id := range order {
		c := byID[id]
		var score float64
		if c.BM25Rank > 0 {
			score += w.BM25 * bmNorm(c.BM25Score)
		}
		if c.VectorRank > 0 {
			score += w.Vector * vecNorm(c.VectorScore)
		}
		if c.GraphRank > 0 {
			score += w.Graph * grNorm(c.GraphScore)
			if graphHasContext[id] {
				score += graphContextBonusWeighted
			}
		}
		c.FusionScore = score
	}
}

// minMax returns a normalizer over the channel's observed score range. A
// single-element or constant channel normalizes to 1 so its weight still
// counts.
func minMax(n int, score func(int) float64) func(float64) float64 {
	if n == 0 {
		return func(float64) float64 { return 0 }
	}
	lo, hi := score(0), score(0)
	for i := 1; i < n; i++ {
		s := score(i)
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	if hi == lo {
		return func(float64) float64 { return 1 }
	}
	span := hi - lo
	return func(v float64) float64 { return (v - lo) / span }
}
