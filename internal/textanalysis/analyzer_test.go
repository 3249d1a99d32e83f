package textanalysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	got := Normalize("Visit HTTPS://Example.com  now！​")
	assert.Equal(t, "visit now!", got)
}

func TestTokenizeSearchModeOverlap(t *testing.T) {
	a := New(nil)
	toks := a.Tokenize("混凝土强度", ModeSearch)
	require.NotEmpty(t, toks)
	assert.Contains(t, toks, "混凝土强度")
	assert.Contains(t, toks, "混凝")
	assert.Contains(t, toks, "凝土")
	assert.Contains(t, toks, "土强")
	assert.Contains(t, toks, "强度")
}

func TestTokenizeMixedCJKASCII(t *testing.T) {
	a := New(nil)
	toks := a.Tokenize("KL-1 混凝土 C30", ModeDefault)
	assert.Contains(t, toks, "kl-1")
	assert.Contains(t, toks, "c30")
	assert.Contains(t, toks, "混")
	assert.Contains(t, toks, "凝")
	assert.Contains(t, toks, "土")
}

func TestTokenizeDropsStopwordsAndPunct(t *testing.T) {
	a := New(nil)
	toks := a.Tokenize("this is a test, of, the, system.", ModeDefault)
	assert.NotContains(t, toks, "the")
	assert.NotContains(t, toks, ",")
	assert.Contains(t, toks, "test")
	assert.Contains(t, toks, "system")
}

func TestExtractKeywordsTFIDF(t *testing.T) {
	a := New(nil)
	kws := a.ExtractKeywords("concrete concrete concrete beam column beam slab", 2, MethodTFIDF)
	require.Len(t, kws, 2)
}

func TestExtractKeywordsTextRank(t *testing.T) {
	a := New(nil)
	kws := a.ExtractKeywords("beam column beam slab column beam foundation", 3, MethodTextRank)
	assert.Len(t, kws, 3)
}

func TestExtractKeywordsEmptyText(t *testing.T) {
	a := New(nil)
	assert.Empty(t, a.ExtractKeywords("", 5, MethodTFIDF))
	assert.Empty(t, a.ExtractKeywords("word", 0, MethodTFIDF))
}
