package ingest

import "strings"

// ChunkingOptions drives how page text is split. MaxChars is the target
// chunk size in bytes of UTF-8 text; Overlap, also in bytes, is carried back
// from the previous chunk's tail.
type ChunkingOptions struct {
	MaxChars int // default 800
	Overlap  int // default 100
}

// TextChunk is one produced chunk, tagged with the page it came from.
type TextChunk struct {
	Index   int
	PageNum int
	Text    string
}

// chunkPages splits each page into contiguous chunks of roughly MaxChars,
// preferring paragraph then whitespace boundaries, with Overlap bytes
// carried between sequential chunks. Chunk indices are dense and 0-based
// across the whole document.
func chunkPages(pages []string, opt ChunkingOptions) []TextChunk {
	maxChars := opt.MaxChars
	if maxChars <= 0 {
		maxChars = 800
	}
	overlap := opt.Overlap
	if overlap < 0 || overlap >= maxChars {
		overlap = 0
	}
	var out []TextChunk
	idx := 0
	for pageNum, page := range pages {
		for _, piece := range splitPage(page, maxChars, overlap) {
			out = append(out, TextChunk{Index: idx, PageNum: pageNum + 1, Text: piece})
			idx++
		}
	}
	return out
}

func splitPage(text string, maxChars, overlap int) []string {
	var out []string
	start := 0
	for start < len(text) {
		end := start + maxChars
		if end >= len(text) {
			end = len(text)
		} else {
			end = cutPoint(text, start, end)
		}
		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			out = append(out, piece)
		}
		if end == len(text) {
			break
		}
		next := end - overlap
		for next < end && !isRuneStart(text[next]) {
			next++
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// cutPoint picks a boundary at or before end: a paragraph break if one
// falls in the second half of the window, else the last whitespace, else a
// clean rune boundary so multi-byte text never splits mid-character.
func cutPoint(text string, start, end int) int {
	window := text[start:end]
	if i := strings.LastIndex(window, "\n\n"); i > len(window)/2 {
		return start + i
	}
	if i := strings.LastIndexAny(window, " \n\t"); i > len(window)/2 {
		return start + i
	}
	for end > start && !isRuneStart(text[end]) {
		end--
	}
	return end
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
