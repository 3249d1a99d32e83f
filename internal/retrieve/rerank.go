package retrieve

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"
)

// Reranker scores (query, text) pairs with a cross-encoder. Scores are
// returned in input order; higher means more relevant.
type Reranker interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// rerankCandidates re-sorts the fused list by cross-encoder score,
// preserving all fusion metadata on each candidate. A scoring failure (or a
// score list of the wrong length) leaves the fusion order untouched.
func rerankCandidates(ctx context.Context, rr Reranker, query string, cands []Candidate, log *logrus.Logger) []Candidate {
	texts := make([]string, len(cands))
	for i, c := range cands {
		texts[i] = c.Text
	}
	scores, err := rr.Score(ctx, query, texts)
	if err != nil {
		log.WithError(err).Warn("retrieve: rerank failed, keeping fusion order")
		return cands
	}
	if len(scores) != len(cands) {
		log.WithFields(logrus.Fields{"want": len(cands), "got": len(scores)}).
			Warn("retrieve: rerank returned wrong score count, keeping fusion order")
		return cands
	}
	for i := range cands {
		s := scores[i]
		cands[i].RerankScore = &s
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if *cands[i].RerankScore != *cands[j].RerankScore {
			return *cands[i].RerankScore > *cands[j].RerankScore
		}
		if cands[i].FusionScore != cands[j].FusionScore {
			return cands[i].FusionScore > cands[j].FusionScore
		}
		return cands[i].ChunkID < cands[j].ChunkID
	})
	return cands
}
