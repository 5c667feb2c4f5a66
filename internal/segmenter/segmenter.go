package segmenter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// DefaultMaxTokens is the default chunk size budget.
	DefaultMaxTokens = 1000
	// DefaultOverlapTokens is the default overlap between adjacent chunks.
	DefaultOverlapTokens = 100
	// ApproxTokensPerChar approximates token counts for English text without a
	// tokenizer dependency. Chunk size is a soft budget, not a protocol limit.
	ApproxTokensPerChar = 0.25
)

// ErrEmptyInput is returned when the text contains no segmentable content.
// Callers must treat it as an ingestion-abort condition, not a silent success.
var ErrEmptyInput = errors.New("no segmentable content")

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

// Chunk is a contiguous span of a document's extracted text.
type Chunk struct {
	Content         string // Chunk text content
	Index           int    // Position within the document (starts at 0, no gaps)
	StartPosition   int    // Approximate character offset into the original text
	EndPosition     int    // StartPosition + len(Content)
	EstimatedTokens int    // Derived from ApproxTokensPerChar
}

// Options controls how text is segmented.
type Options struct {
	// MaxTokens is the chunk size budget. Must be greater than OverlapTokens.
	MaxTokens int
	// OverlapTokens is the amount of trailing text repeated at the start of
	// the next chunk so facts straddling a boundary survive retrieval.
	OverlapTokens int
	// PreserveStructure splits on paragraph and sentence boundaries instead
	// of a fixed-size sliding window.
	PreserveStructure bool
}

// DefaultOptions returns the segmentation policy used at ingestion time.
func DefaultOptions() Options {
	return Options{
		MaxTokens:         DefaultMaxTokens,
		OverlapTokens:     DefaultOverlapTokens,
		PreserveStructure: true,
	}
}

// Segmenter splits document text into bounded, overlapping chunks.
type Segmenter struct{}

// New creates a new Segmenter.
func New() *Segmenter {
	return &Segmenter{}
}

// Segment splits text into ordered chunks bounded by opts.MaxTokens with
// opts.OverlapTokens of controlled overlap. Output order is the document's
// reading order; indices are dense and start at 0.
func (s *Segmenter) Segment(text string, opts Options) ([]Chunk, error) {
	if opts.MaxTokens <= 0 || opts.OverlapTokens < 0 || opts.MaxTokens <= opts.OverlapTokens {
		return nil, fmt.Errorf("invalid segment options: maxTokens=%d overlapTokens=%d", opts.MaxTokens, opts.OverlapTokens)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	maxChars := int(float64(opts.MaxTokens) / ApproxTokensPerChar)
	overlapChars := int(float64(opts.OverlapTokens) / ApproxTokensPerChar)

	var chunks []Chunk
	if opts.PreserveStructure {
		chunks = semanticChunks(text, maxChars, overlapChars)
	} else {
		chunks = slidingChunks(text, maxChars, overlapChars)
	}

	if len(chunks) == 0 {
		return nil, ErrEmptyInput
	}
	return chunks, nil
}

// EstimateTokenCount approximates the token count of text.
func EstimateTokenCount(text string) int {
	return int(float64(len(text))*ApproxTokensPerChar + 0.999999)
}

func newChunk(content string, index, startPos int) Chunk {
	return Chunk{
		Content:         content,
		Index:           index,
		StartPosition:   startPos,
		EndPosition:     startPos + len(content),
		EstimatedTokens: EstimateTokenCount(content),
	}
}

// semanticChunks greedily accumulates paragraphs into chunks. Paragraphs that
// alone exceed the budget fall back to sentence splitting; sentences that
// still exceed it are force-split at the character boundary.
func semanticChunks(text string, maxChars, overlapChars int) []Chunk {
	raw := paragraphSplit.Split(text, -1)
	paragraphs := make([]string, 0, len(raw))
	for _, p := range raw {
		if strings.TrimSpace(p) != "" {
			paragraphs = append(paragraphs, strings.TrimSpace(p))
		}
	}

	var chunks []Chunk
	var current string
	currentStart := 0
	globalPos := 0
	index := 0

	emit := func(content string, startPos int) {
		chunks = append(chunks, newChunk(content, index, startPos))
		index++
	}

	for _, paragraph := range paragraphs {
		potential := paragraph
		if current != "" {
			potential = current + "\n\n" + paragraph
		}

		switch {
		case len(potential) <= maxChars:
			if current == "" {
				currentStart = globalPos
			}
			current = potential

		case current != "":
			emit(current, currentStart)

			// Seed the next chunk with the overlap tail of the emitted one.
			overlap := overlapTail(current, overlapChars)
			if overlap != "" {
				current = overlap + "\n\n" + paragraph
				currentStart = globalPos - len(overlap) - 2
			} else {
				current = paragraph
				currentStart = globalPos
			}
			// The seeded chunk may itself exceed the budget when the new
			// paragraph is oversized; resolve on the next overflow or flush.
			if len(current) > maxChars {
				pos := currentStart
				for _, piece := range splitLongParagraph(current, maxChars, overlapChars) {
					emit(piece, pos)
					pos += len(piece)
				}
				current = ""
			}

		default:
			// A single paragraph exceeds the budget: sentence-level split.
			pos := globalPos
			for _, piece := range splitLongParagraph(paragraph, maxChars, overlapChars) {
				emit(piece, pos)
				pos += len(piece)
			}
			current = ""
		}

		globalPos += len(paragraph) + 2
	}

	if current != "" {
		emit(current, currentStart)
	}

	return chunks
}

// slidingChunks is pure fixed-window segmentation with overlap.
func slidingChunks(text string, maxChars, overlapChars int) []Chunk {
	var chunks []Chunk
	pos := 0
	index := 0

	for pos < len(text) {
		end := pos + maxChars
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, newChunk(text[pos:end], index, pos))
		index++

		pos = end - overlapChars
		if pos >= len(text) || end == len(text) {
			break
		}
	}

	return chunks
}

// splitLongParagraph splits an oversized paragraph at sentence boundaries
// using the same greedy-accumulate-and-overlap policy, force-splitting at the
// character boundary when a single sentence exceeds the budget.
func splitLongParagraph(paragraph string, maxChars, overlapChars int) []string {
	sentences := splitSentences(paragraph)

	var pieces []string
	var current string

	for _, sentence := range sentences {
		potential := sentence
		if current != "" {
			potential = current + ". " + sentence
		}

		switch {
		case len(potential) <= maxChars:
			current = potential

		case current != "":
			pieces = append(pieces, current+".")
			overlap := overlapTail(current, overlapChars)
			if overlap != "" {
				current = overlap + ". " + sentence
			} else {
				current = sentence
			}

		default:
			// Single sentence exceeds the budget and nothing is accumulated
			// (the previous case drains current first). Force split at the
			// character boundary. No structure preserved, last resort.
			rest := sentence
			for len(rest) > maxChars {
				pieces = append(pieces, rest[:maxChars])
				rest = rest[maxChars-overlapChars:]
			}
			current = rest
		}
	}

	if current != "" {
		pieces = append(pieces, current+".")
	}

	return pieces
}

// splitSentences splits on terminal punctuation and drops empty fragments.
func splitSentences(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	sentences := make([]string, 0, len(fields))
	for _, f := range fields {
		if s := strings.TrimSpace(f); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// overlapTail returns the last overlapChars characters of text, trimmed
// forward to the nearest word boundary so the seam never splits a word.
func overlapTail(text string, overlapChars int) string {
	if overlapChars <= 0 {
		return ""
	}
	if overlapChars >= len(text) {
		return text
	}

	tail := text[len(text)-overlapChars:]
	if space := strings.IndexByte(tail, ' '); space > 0 {
		return tail[space+1:]
	}
	return tail
}
