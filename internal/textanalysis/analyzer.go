// Package textanalysis implements language-aware tokenization, normalization
// and keyword extraction over mixed CJK/ASCII technical text (specifications,
// drawing annotations, contract language). It backs the lexical index and
// the graph retriever's entity-linking pass.
package textanalysis

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Mode controls how Tokenize segments text.
type Mode string

const (
	// ModeDefault yields one token per CJK character and one token per ASCII
	// word, suitable for display and for exact structural matching.
	ModeDefault Mode = "default"
	// ModeSearch emits, for each CJK run of two or more characters, the whole
	// run and its overlapping bigrams instead of single characters, so BM25
	// can recall compound technical terms from a partial match. A
	// one-character CJK run yields no token in this mode.
	ModeSearch Mode = "search"
	// ModeAll emits everything ModeDefault and ModeSearch produce; duplicates
	// (such as a two-character run and its single bigram) are kept.
	ModeAll Mode = "all"
)

// Analyzer tokenizes and normalizes text and extracts keywords. It is
// stateless and safe for concurrent use; any stopword set is fixed at
// construction (hot-reload of dictionaries is out of scope, per design
// notes).
type Analyzer struct {
	stopwords map[string]struct{}
}

// DefaultStopwords is a small, illustrative stopword set covering common
// English and Chinese function words found in construction-domain prose.
var DefaultStopwords = []string{
	"the", "a", "an", "of", "to", "in", "on", "for", "and", "or", "is", "are",
	"this", "that", "with", "as", "by", "at", "be", "it",
	"的", "了", "和", "是", "在", "与", "及", "或", "对", "等", "中", "为",
}

// New builds an Analyzer with the given stopword list. A nil slice uses
// DefaultStopwords.
func New(stopwords []string) *Analyzer {
	if stopwords == nil {
		stopwords = DefaultStopwords
	}
	set := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		set[strings.ToLower(w)] = struct{}{}
	}
	return &Analyzer{stopwords: set}
}

var (
	urlRe        = regexp.MustCompile(`https?://\S+|www\.\S+`)
	emailRe      = regexp.MustCompile(`[[:alnum:]._%+-]+@[[:alnum:].-]+\.[[:alpha:]]{2,}`)
	zeroWidthRe  = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

var fullwidthToHalfwidth = map[rune]rune{
	'，': ',', '。': '.', '：': ':', '；': ';', '！': '!', '？': '?',
	'（': '(', '）': ')', '【': '[', '】': ']', '“': '"', '”': '"',
	'‘': '\'', '’': '\'', '、': ',', '　': ' ',
}

// Normalize lowercases, strips URLs/emails/zero-width characters, maps
// full-width punctuation to half-width, and collapses whitespace.
func Normalize(text string) string {
	s := strings.ToLower(text)
	s = urlRe.ReplaceAllString(s, " ")
	s = emailRe.ReplaceAllString(s, " ")
	s = zeroWidthRe.ReplaceAllString(s, "")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if rep, ok := fullwidthToHalfwidth[r]; ok {
			b.WriteRune(rep)
			continue
		}
		b.WriteRune(r)
	}
	s = whitespaceRe.ReplaceAllString(b.String(), " ")
	return strings.TrimSpace(s)
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-'
}

// run is a maximal span of the normalized text that is either all-CJK or
// all-ASCII-word characters.
type run struct {
	text string
	cjk  bool
}

func splitRuns(s string) []run {
	var runs []run
	var cur []rune
	var curCJK bool
	flush := func() {
		if len(cur) > 0 {
			runs = append(runs, run{text: string(cur), cjk: curCJK})
			cur = cur[:0]
		}
	}
	for _, r := range s {
		switch {
		case isCJK(r):
			if len(cur) > 0 && !curCJK {
				flush()
			}
			curCJK = true
			cur = append(cur, r)
		case isWordRune(r):
			if len(cur) > 0 && curCJK {
				flush()
			}
			curCJK = false
			cur = append(cur, r)
		default:
			flush()
		}
	}
	flush()
	return runs
}

// Tokenize normalizes then segments text per mode. Token order is the
// left-to-right order the spans occur in the source text; within a CJK run
// in search/all mode, the whole run and its bigrams are emitted before
// advancing to the next run.
func (a *Analyzer) Tokenize(text string, mode Mode) []string {
	norm := Normalize(text)
	if norm == "" {
		return nil
	}
	var toks []string
	for _, rn := range splitRuns(norm) {
		chars := []rune(rn.text)
		if rn.cjk {
			switch mode {
			case ModeSearch, ModeAll:
				if len(chars) > 1 {
					toks = append(toks, rn.text)
				}
				for i := 0; i < len(chars)-1; i++ {
					toks = append(toks, string(chars[i:i+2]))
				}
				if mode == ModeAll {
					for _, c := range chars {
						toks = append(toks, string(c))
					}
				}
			default: // ModeDefault
				for _, c := range chars {
					toks = append(toks, string(c))
				}
			}
		} else {
			toks = append(toks, rn.text)
		}
	}
	return a.filter(toks)
}

func (a *Analyzer) filter(toks []string) []string {
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if t == "" {
			continue
		}
		if _, stop := a.stopwords[t]; stop {
			continue
		}
		if isPurePunct(t) {
			continue
		}
		runes := []rune(t)
		if len(runes) == 1 && !isCJK(runes[0]) && !unicode.IsLetter(runes[0]) {
			// bare single digit/punct token: drop unless CJK or ASCII letter
			continue
		}
		out = append(out, t)
	}
	return out
}

func isPurePunct(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// KeywordMethod selects the keyword-extraction algorithm.
type KeywordMethod string

const (
	MethodTFIDF    KeywordMethod = "tfidf"
	MethodTextRank KeywordMethod = "textrank"
)

// ExtractKeywords returns up to topK tokens ranked by the chosen method.
// tfidf scores a token by its in-document frequency share plus an
// inverse-count term 1/(1+count) (no external corpus is assumed); textrank builds a
// co-occurrence graph over a sliding window and scores nodes with a
// bounded number of PageRank-style iterations.
func (a *Analyzer) ExtractKeywords(text string, topK int, method KeywordMethod) []string {
	toks := a.Tokenize(text, ModeDefault)
	if len(toks) == 0 || topK <= 0 {
		return nil
	}
	switch method {
	case MethodTextRank:
		return textRank(toks, topK)
	default:
		return tfidfRank(toks, topK)
	}
}

func tfidfRank(toks []string, topK int) []string {
	freq := map[string]int{}
	for _, t := range toks {
		freq[t]++
	}
	type scored struct {
		tok   string
		score float64
	}
	scores := make([]scored, 0, len(freq))
	n := float64(len(toks))
	for tok, c := range freq {
		// Rarer-but-present terms score slightly higher than pure frequency
		// through a bonus that shrinks as the token's count grows.
		tf := float64(c) / n
		idfLike := 1.0 / (1.0 + float64(c))
		scores = append(scores, scored{tok, tf + idfLike})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].tok < scores[j].tok
	})
	return topToks(scores, topK, func(s scored) string { return s.tok })
}

func textRank(toks []string, topK int) []string {
	const window = 4
	const iterations = 20
	const damping = 0.85

	index := map[string]int{}
	var vocab []string
	for _, t := range toks {
		if _, ok := index[t]; !ok {
			index[t] = len(vocab)
			vocab = append(vocab, t)
		}
	}
	n := len(vocab)
	adj := make([]map[int]float64, n)
	for i := range adj {
		adj[i] = map[int]float64{}
	}
	for i := range toks {
		for j := i + 1; j < len(toks) && j <= i+window; j++ {
			a, b := index[toks[i]], index[toks[j]]
			if a == b {
				continue
			}
			adj[a][b]++
			adj[b][a]++
		}
	}
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = 1.0
	}
	outWeight := make([]float64, n)
	for i := range adj {
		var sum float64
		for _, w := range adj[i] {
			sum += w
		}
		outWeight[i] = sum
	}
	for iter := 0; iter < iterations; iter++ {
		next := make([]float64, n)
		for i := range next {
			var incoming float64
			for j, w := range adj[i] {
				if outWeight[j] > 0 {
					incoming += (w / outWeight[j]) * scores[j]
				}
			}
			next[i] = (1 - damping) + damping*incoming
		}
		scores = next
	}
	type scored struct {
		tok   string
		score float64
	}
	ranked := make([]scored, n)
	for i, tok := range vocab {
		ranked[i] = scored{tok, scores[i]}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].tok < ranked[j].tok
	})
	return topToks(ranked, topK, func(s scored) string { return s.tok })
}

func topToks[T any](items []T, topK int, get func(T) string) []string {
	if topK > len(items) {
		topK = len(items)
	}
	out := make([]string, topK)
	for i := 0; i < topK; i++ {
		out[i] = get(items[i])
	}
	return out
}
