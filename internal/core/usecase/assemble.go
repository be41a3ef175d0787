package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/pdf-qa/internal/core/domain"
)

const (
	defaultExcerptChars = 1500

	NotFoundAnswer = "Not found in the document."

	contextPreamble = `You answer questions about the uploaded PDF documents.
Use ONLY the excerpts below. Do not use outside knowledge.
Cite the originating document and page number for every claim in the form (Doc: <name> — Page <n>).
If the answer is not present in the excerpts, reply exactly: ` + NotFoundAnswer
)

// ContextAssembler renders ranked units of several documents into one
// citation-tagged prompt body.
type ContextAssembler struct {
	ExcerptChars int
}

func NewContextAssembler(excerptChars int) *ContextAssembler {
	if excerptChars <= 0 {
		excerptChars = defaultExcerptChars
	}
	return &ContextAssembler{ExcerptChars: excerptChars}
}

func (a *ContextAssembler) Assemble(docs []domain.RankedDocument) string {
	blocks := make([]string, 0, len(docs))
	for _, doc := range docs {
		excerpts := make([]string, 0, len(doc.Units))
		for _, unit := range doc.Units {
			excerpts = append(excerpts, a.renderUnit(doc.DisplayName, unit))
		}
		if len(excerpts) > 0 {
			blocks = append(blocks, strings.Join(excerpts, "\n\n"))
		}
	}

	var b strings.Builder
	b.WriteString(contextPreamble)
	b.WriteString("\n\nExcerpts:\n\n")
	b.WriteString(strings.Join(blocks, "\n\n"))
	return b.String()
}

func (a *ContextAssembler) renderUnit(document string, unit domain.ScoredUnit) string {
	return fmt.Sprintf(
		"[Doc: %s | Page %d | Score %.4f]\n%s",
		document,
		unit.PageNumber,
		unit.Score,
		truncateRunes(unit.Text, a.ExcerptChars),
	)
}

// BuildPrompt appends the question to an assembled context block.
func BuildPrompt(contextBlock, question string) string {
	return fmt.Sprintf("%s\n\nQuestion:\n%s\n\nAnswer:", contextBlock, question)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
