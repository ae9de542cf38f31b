package chunker

import (
	"slices"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxChunkSize = 1500
	DefaultOverlap      = 200
)

// DefaultSeparators are tried in order: paragraphs, lines, sentences, words,
// then a hard character cut.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", " ", ""}

// Piece is a chunk of text together with its byte offsets in the text it was
// split from. Text == source[Start:End] always holds.
type Piece struct {
	Text  string `json:"text"`
	Start int    `json:"start_index"`
	End   int    `json:"end_index"`
}

// Splitter is a recursive separator splitter. Sizes are measured in characters
// (runes); offsets are byte positions so that callers can slice the source.
// A Splitter is immutable and safe for concurrent use.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// New returns a Splitter. An overlap that does not leave room for new text is
// reduced to a quarter of the chunk size.
func New(size, overlap int, separators ...string) *Splitter {
	if size <= 0 {
		size = DefaultMaxChunkSize
	}

	if overlap < 0 {
		overlap = 0
	}

	if overlap >= size {
		overlap = size / 4
	}

	if len(separators) == 0 {
		separators = DefaultSeparators
	}

	seps := make([]string, len(separators))
	copy(seps, separators)

	return &Splitter{
		size:       size,
		overlap:    overlap,
		separators: seps,
	}
}

func (s *Splitter) Size() int {
	return s.size
}

func (s *Splitter) Overlap() int {
	return s.overlap
}

// atom is a span no longer than the chunk size. Chunks end on atom
// boundaries whenever a whole atom fits.
type atom struct {
	start, end int
	runes      int
}

// Split cuts text into chunks of at most Size characters. Chunks end on the
// coarsest boundary that fits and each chunk after the first repeats at least
// Overlap characters of its predecessor, starting on a separator boundary when
// one is close enough. Whitespace-only chunks are dropped.
func (s *Splitter) Split(text string) []Piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	atoms := s.atomize(text, 0, len(text), s.separators, nil)

	var marks []int
	if s.overlap > 0 {
		marks = boundaries(text, atoms, s.separators)
	}

	var pieces []Piece
	start, prevEnd := 0, 0
	for {
		end := s.chunkEnd(text, atoms, marks, start, prevEnd)
		if chunk := text[start:end]; strings.TrimSpace(chunk) != "" {
			pieces = append(pieces, Piece{
				Text:  chunk,
				Start: start,
				End:   end,
			})
		}

		if end >= len(text) {
			break
		}

		prevEnd = end
		start = s.nextStart(text, marks, start, end)
	}

	return pieces
}

// chunkEnd extends a chunk beginning at start over whole atoms. When no whole
// atom fits past prevEnd the chunk is cut inside the next atom, on the last
// boundary within Size characters, or on the character limit itself.
func (s *Splitter) chunkEnd(text string, atoms []atom, marks []int, start, prevEnd int) int {
	k := sort.Search(len(atoms), func(i int) bool {
		return atoms[i].end > start
	})

	end := atoms[k].end
	total := utf8.RuneCountInString(text[start:end])
	for k++; k < len(atoms) && total+atoms[k].runes <= s.size; k++ {
		total += atoms[k].runes
		end = atoms[k].end
	}

	if end > prevEnd {
		return end
	}

	limit := advance(text, start, s.size)
	if i := sort.SearchInts(marks, limit+1) - 1; i >= 0 && marks[i] > prevEnd {
		return marks[i]
	}

	return limit
}

// nextStart picks where the chunk after text[start:end] begins: the last
// boundary leaving at least Overlap characters of tail, or a plain character
// cut when that boundary would repeat more than twice the overlap.
func (s *Splitter) nextStart(text string, marks []int, start, end int) int {
	if s.overlap == 0 {
		return end
	}

	if utf8.RuneCountInString(text[start:end]) <= s.overlap {
		if i := sort.SearchInts(marks, start+1); i < len(marks) && marks[i] < end {
			return marks[i]
		}

		return end
	}

	cut := retreat(text, end, s.overlap)

	i := sort.SearchInts(marks, cut+1) - 1
	if i >= 0 && marks[i] > start && utf8.RuneCountInString(text[marks[i]:end]) <= 2*s.overlap {
		return marks[i]
	}

	return cut
}

// boundaries lists every byte offset that follows a separator or begins an
// atom, in ascending order.
func boundaries(text string, atoms []atom, separators []string) []int {
	marks := make([]int, 0, len(atoms))
	for _, a := range atoms {
		marks = append(marks, a.start)
	}

	for _, sep := range separators {
		if sep == "" {
			continue
		}

		pos := 0
		for {
			idx := strings.Index(text[pos:], sep)
			if idx < 0 {
				break
			}

			pos += idx + len(sep)
			marks = append(marks, pos)
		}
	}

	sort.Ints(marks)
	return slices.Compact(marks)
}

// advance returns the offset n characters after pos, or the end of text.
func advance(text string, pos, n int) int {
	for ; n > 0 && pos < len(text); n-- {
		_, w := utf8.DecodeRuneInString(text[pos:])
		pos += w
	}

	return pos
}

// retreat returns the offset n characters before pos, or 0.
func retreat(text string, pos, n int) int {
	for ; n > 0 && pos > 0; n-- {
		_, w := utf8.DecodeLastRuneInString(text[:pos])
		pos -= w
	}

	return pos
}

// atomize breaks text[start:end] into spans of at most Size characters using
// the first separator that occurs in the span. Spans still too long recurse
// with the remaining separators. The separator stays at the end of the span it
// terminates, so the spans tile the input exactly.
func (s *Splitter) atomize(text string, start, end int, seps []string, out []atom) []atom {
	n := utf8.RuneCountInString(text[start:end])
	if n <= s.size {
		if n > 0 {
			out = append(out, atom{start, end, n})
		}

		return out
	}

	for i, sep := range seps {
		if sep == "" {
			break
		}

		if !strings.Contains(text[start:end], sep) {
			continue
		}

		pos := start
		for pos < end {
			idx := strings.Index(text[pos:end], sep)

			next := end
			if idx >= 0 {
				next = pos + idx + len(sep)
			}

			out = s.atomize(text, pos, next, seps[i+1:], out)
			pos = next
		}

		return out
	}

	return s.hardCut(text, start, end, out)
}

// hardCut splits text[start:end] every Size characters.
func (s *Splitter) hardCut(text string, start, end int, out []atom) []atom {
	pos, count := start, 0
	for i := range text[start:end] {
		if count == s.size {
			out = append(out, atom{pos, start + i, count})
			pos, count = start+i, 0
		}

		count++
	}

	if pos < end {
		out = append(out, atom{pos, end, count})
	}

	return out
}

// PagePiece is a chunk of one page. The embedded Piece offsets are relative to
// the page; DocStart and DocEnd index the concatenation of all pages.
type PagePiece struct {
	Piece

	Page     int `json:"page_number"`
	DocStart int `json:"doc_start_index"`
	DocEnd   int `json:"doc_end_index"`
}

// SplitPages splits every page independently, numbering pages from 1. Empty
// pages yield no chunks but still advance the running document offset.
func (s *Splitter) SplitPages(pages []string) []PagePiece {
	var (
		out  []PagePiece
		base int
	)

	for i, page := range pages {
		for _, p := range s.Split(page) {
			out = append(out, PagePiece{
				Piece:    p,
				Page:     i + 1,
				DocStart: base + p.Start,
				DocEnd:   base + p.End,
			})
		}

		base += len(page)
	}

	return out
}
