package chunking

import (
	"strings"

	"github.com/kirillkom/pdf-qa/internal/core/domain"
)

const (
	pageBreak = "\f"

	DefaultChunkWords = 300
	DefaultMaxPages   = 400
)

// Segmenter splits extracted text into page units. Form feeds are treated as
// real page boundaries; text without them is grouped into fixed word chunks.
// The zero value uses the default sizes.
type Segmenter struct {
	chunkWords int
	maxPages   int
}

func NewSegmenter(chunkWords, maxPages int) *Segmenter {
	return &Segmenter{
		chunkWords: chunkWords,
		maxPages:   maxPages,
	}
}

func (s *Segmenter) limits() (chunkWords, maxPages int) {
	chunkWords, maxPages = s.chunkWords, s.maxPages
	if chunkWords <= 0 {
		chunkWords = DefaultChunkWords
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return chunkWords, maxPages
}

func (s *Segmenter) Segment(text string) []domain.PageUnit {
	chunkWords, maxPages := s.limits()

	var parts []string
	if strings.Contains(text, pageBreak) {
		parts = splitPages(text)
	} else {
		parts = splitWords(text, chunkWords, maxPages)
	}

	if len(parts) == 0 {
		parts = []string{text}
	}
	if len(parts) > maxPages {
		parts = parts[:maxPages]
	}

	out := make([]domain.PageUnit, len(parts))
	for i, part := range parts {
		out[i] = domain.PageUnit{PageNumber: i + 1, Text: part}
	}
	return out
}

func splitPages(text string) []string {
	raw := strings.Split(text, pageBreak)
	out := make([]string, 0, len(raw))
	for _, page := range raw {
		page = strings.TrimSpace(page)
		if page != "" {
			out = append(out, page)
		}
	}
	return out
}

func splitWords(text string, chunkWords, maxPages int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	out := make([]string, 0, min(len(words)/chunkWords+1, maxPages))
	for start := 0; start < len(words); start += chunkWords {
		end := min(start+chunkWords, len(words))
		out = append(out, strings.Join(words[start:end], " "))
		if len(out) == maxPages {
			break
		}
	}
	return out
}
