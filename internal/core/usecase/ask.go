package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/pdf-qa/internal/core/domain"
	"github.com/kirillkom/pdf-qa/internal/core/ports"
)

const DefaultQuestion = "summarize the uploaded documents"

type AskOptions struct {
	TopK int
	// DocumentConcurrency bounds per-request document fan-out; 1 keeps the
	// pipeline sequential.
	DocumentConcurrency int
}

type AskUseCase struct {
	sessions  *SessionManager
	extractor ports.TextExtractor
	segmenter ports.Segmenter
	gateway   *EmbeddingGateway
	assembler *ContextAssembler
	completer ports.Completer
	observer  ports.AskObserver
	opts      AskOptions
}

func NewAskUseCase(
	sessions *SessionManager,
	extractor ports.TextExtractor,
	segmenter ports.Segmenter,
	gateway *EmbeddingGateway,
	assembler *ContextAssembler,
	completer ports.Completer,
	observer ports.AskObserver,
	opts AskOptions,
) *AskUseCase {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.DocumentConcurrency <= 0 {
		opts.DocumentConcurrency = 1
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &AskUseCase{
		sessions:  sessions,
		extractor: extractor,
		segmenter: segmenter,
		gateway:   gateway,
		assembler: assembler,
		completer: completer,
		observer:  observer,
		opts:      opts,
	}
}

func (uc *AskUseCase) Ask(ctx context.Context, req domain.AskRequest) (*domain.AskResult, error) {
	if _, err := uc.sessions.Branch(req.Uploads, req.UploadID); err != nil {
		return nil, err
	}
	if req.Question == nil {
		return nil, domain.WrapError(domain.ErrMissingQuestion, "ask", errors.New("question field is absent"))
	}
	question := strings.TrimSpace(*req.Question)
	if question == "" {
		question = DefaultQuestion
	}

	session, branch, err := uc.sessions.Resolve(ctx, req.Uploads, req.UploadID)
	if err != nil {
		return nil, fmt.Errorf("resolve documents: %w", err)
	}
	uc.observer.ObserveSession(branch)
	if len(session.Documents) == 0 {
		return nil, domain.WrapError(domain.ErrNoDocuments, "resolve documents", fmt.Errorf("upload id %q has no stored files", session.ID))
	}

	queryVector, err := uc.gateway.EmbedOne(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	ranked, err := uc.rankDocuments(ctx, session.Documents, queryVector)
	if err != nil {
		return nil, err
	}

	prompt := BuildPrompt(uc.assembler.Assemble(ranked), question)
	answer, err := uc.completer.Complete(ctx, prompt)
	if err != nil {
		if domain.IsKind(err, domain.ErrCompletionProvider) {
			return nil, fmt.Errorf("generate answer: %w", err)
		}
		return nil, domain.WrapError(domain.ErrCompletionProvider, "generate answer", err)
	}

	uploadID := session.ID
	return &domain.AskResult{
		Answer:   answer,
		Sources:  buildSources(ranked),
		UploadID: &uploadID,
	}, nil
}

// rankDocuments processes documents with bounded concurrency. Results are
// written by index so the output keeps submission order.
func (uc *AskUseCase) rankDocuments(ctx context.Context, docs []domain.Document, queryVector []float32) ([]domain.RankedDocument, error) {
	out := make([]domain.RankedDocument, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.opts.DocumentConcurrency)
	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ranked, err := uc.processDocument(gctx, doc, queryVector)
			if err != nil {
				return fmt.Errorf("process %q: %w", doc.DisplayName, err)
			}
			out[i] = ranked
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (uc *AskUseCase) processDocument(ctx context.Context, doc domain.Document, queryVector []float32) (domain.RankedDocument, error) {
	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		if !domain.IsKind(err, domain.ErrExtraction) {
			err = domain.WrapError(domain.ErrExtraction, "extract text", err)
		}
		return domain.RankedDocument{}, err
	}

	units := uc.segmenter.Segment(text)
	texts := make([]string, len(units))
	for i, unit := range units {
		texts[i] = unit.Text
	}

	vectors, err := uc.gateway.Embed(ctx, texts)
	if err != nil {
		return domain.RankedDocument{}, fmt.Errorf("embed pages: %w", err)
	}

	scored := RankUnits(units, vectors, queryVector, uc.opts.TopK, doc.DisplayName)
	uc.observer.ObserveDocument(len(units), len(scored))
	slog.Debug("document_processed", "document", doc.DisplayName, "pages", len(units), "ranked", len(scored))

	return domain.RankedDocument{
		DisplayName: doc.DisplayName,
		Units:       scored,
	}, nil
}

func buildSources(ranked []domain.RankedDocument) []domain.Source {
	sources := make([]domain.Source, 0, len(ranked))
	for _, doc := range ranked {
		pages := make([]domain.PageScore, 0, len(doc.Units))
		for _, unit := range doc.Units {
			pages = append(pages, domain.PageScore{Page: unit.PageNumber, Score: unit.Score})
		}
		sources = append(sources, domain.Source{Filename: doc.DisplayName, Pages: pages})
	}
	return sources
}

type noopObserver struct{}

func (noopObserver) ObserveSession(domain.SessionBranch) {}
func (noopObserver) ObserveDocument(int, int)            {}
