// Package chunker splits document text into bounded, overlapping
// retrievable units. It is a pure function of its input so re-chunking
// the same text is deterministic.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/docchat-ai/docchat/internal/core"
)

// Chunk is one retrievable span of the source text.
type Chunk struct {
	Index      int
	Text       string
	TokenCount int
}

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

// Split breaks text into chunks of at most maxTokens tokens each,
// preferring paragraph boundaries and falling back to hard token cuts
// when a single paragraph exceeds maxTokens. overlapTokens controls how
// much trailing context from one chunk is repeated at the start of the
// next, to preserve meaning across chunk boundaries.
//
// Non-empty input always yields at least one chunk. overlapTokens must
// be smaller than maxTokens; violating that is ErrInvalidConfiguration.
func Split(text string, maxTokens, overlapTokens int) ([]Chunk, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: max tokens must be positive, got %d", core.ErrInvalidConfiguration, maxTokens)
	}
	if overlapTokens < 0 {
		return nil, fmt.Errorf("%w: overlap tokens must not be negative, got %d", core.ErrInvalidConfiguration, overlapTokens)
	}
	if overlapTokens >= maxTokens {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than max tokens %d", core.ErrInvalidConfiguration, overlapTokens, maxTokens)
	}

	units := splitUnits(text, maxTokens)
	if len(units) == 0 {
		return nil, nil
	}

	var (
		chunks []Chunk
		buf    []string
		tokSum int
	)

	for _, u := range units {
		t := TokenCount(u)
		if tokSum > 0 && tokSum+t > maxTokens {
			emitted := strings.Join(buf, "\n\n")
			chunks = append(chunks, Chunk{Index: len(chunks), Text: emitted, TokenCount: tokSum})
			buf = buf[:0]
			tokSum = 0

			// Seed the next chunk with the trailing words of the one
			// just emitted, capped so the seed plus the incoming unit
			// still fits inside maxTokens.
			keep := overlapTokens
			if room := maxTokens - t; keep > room {
				keep = room
			}
			if keep > 0 {
				words := strings.Fields(emitted)
				if keep > len(words) {
					keep = len(words)
				}
				buf = append(buf, strings.Join(words[len(words)-keep:], " "))
				tokSum = keep
			}
		}
		buf = append(buf, u)
		tokSum += t
	}
	if tokSum > 0 {
		chunks = append(chunks, Chunk{Index: len(chunks), Text: strings.Join(buf, "\n\n"), TokenCount: tokSum})
	}

	return chunks, nil
}

// TokenCount estimates tokens as whitespace-separated words, matching
// how overlap math and embedding batch sizing count them.
func TokenCount(s string) int {
	return len(strings.Fields(s))
}

// splitUnits breaks text into paragraph units; paragraphs larger than
// maxTokens are hard-cut into word runs of at most maxTokens each so a
// single unit always fits inside one chunk.
func splitUnits(text string, maxTokens int) []string {
	var units []string
	for _, p := range paragraphSplit.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if TokenCount(p) <= maxTokens {
			units = append(units, p)
			continue
		}
		words := strings.Fields(p)
		for start := 0; start < len(words); start += maxTokens {
			end := start + maxTokens
			if end > len(words) {
				end = len(words)
			}
			units = append(units, strings.Join(words[start:end], " "))
		}
	}
	return units
}
