package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/voss/murmur/internal/apperr"
	"github.com/voss/murmur/internal/enrich"
	"github.com/voss/murmur/internal/models"
	"github.com/voss/murmur/internal/repo"
)

// InsightService coordinates the insight collaborator with the store.
// GeneratedContent is replaced wholesale on every (re)generation.
type InsightService struct {
	insights *repo.Insights
	gen      enrich.InsightGenerator
	logger   *slog.Logger
}

// NewInsightService creates the service.
func NewInsightService(insights *repo.Insights, gen enrich.InsightGenerator, logger *slog.Logger) *InsightService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InsightService{insights: insights, gen: gen, logger: logger}
}

// Generate runs the collaborator over the insight's resolvable notes and
// stores the returned structure without interpreting it. Returns nil when
// the insight does not exist.
func (s *InsightService) Generate(ctx context.Context, id, locale string) (*models.Insight, error) {
	ins, err := s.insights.Get(ctx, id)
	if err != nil || ins == nil {
		return nil, err
	}
	contexts, err := s.noteContexts(ctx, ins)
	if err != nil {
		return nil, err
	}
	if len(contexts) == 0 {
		return nil, fmt.Errorf("%w: insight has no resolvable notes", apperr.ErrValidationFailed)
	}

	content, err := s.gen.Generate(ctx, contexts, locale)
	if err != nil {
		return nil, err
	}
	// Keep Q&A history across regenerations; everything else is replaced.
	if ins.GeneratedContent != nil {
		content.CustomSections = ins.GeneratedContent.CustomSections
	}

	now := time.Now().UnixMilli()
	ins.GeneratedContent = content
	ins.LastGeneratedAt = &now
	ins.UpdatedAt = now
	if err := s.insights.Put(ctx, ins); err != nil {
		return nil, err
	}
	s.logger.Info("insight generated",
		slog.String("insight_id", ins.ID),
		slog.Int("notes", len(contexts)))
	return ins, nil
}

// Ask answers one question over the insight's notes and appends the
// exchange as a custom section. Returns nil when the insight does not
// exist.
func (s *InsightService) Ask(ctx context.Context, id, prompt, locale string) (*models.Insight, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", apperr.ErrValidationFailed)
	}
	ins, err := s.insights.Get(ctx, id)
	if err != nil || ins == nil {
		return nil, err
	}
	contexts, err := s.noteContexts(ctx, ins)
	if err != nil {
		return nil, err
	}

	answer, err := s.gen.Ask(ctx, contexts, ins.Name, prompt, locale)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	if ins.GeneratedContent == nil {
		ins.GeneratedContent = &models.InsightContent{}
	}
	ins.GeneratedContent.CustomSections = append(ins.GeneratedContent.CustomSections, models.CustomSection{
		Prompt:      prompt,
		Content:     answer,
		GeneratedAt: now,
	})
	ins.UpdatedAt = now
	if err := s.insights.Put(ctx, ins); err != nil {
		return nil, err
	}
	return ins, nil
}

// noteContexts resolves the insight's notes (skipping dangling ids) into
// collaborator input, oldest first.
func (s *InsightService) noteContexts(ctx context.Context, ins *models.Insight) ([]enrich.NoteContext, error) {
	notes, err := s.insights.ResolveNotes(ctx, ins)
	if err != nil {
		return nil, err
	}
	sort.Slice(notes, func(i, j int) bool {
		return notes[i].CreatedAt < notes[j].CreatedAt
	})
	out := make([]enrich.NoteContext, 0, len(notes))
	for _, n := range notes {
		title := n.Title
		if title == "" {
			title = n.DefaultTitle
		}
		transcript := ""
		if n.Transcription != nil {
			transcript = *n.Transcription
		}
		out = append(out, enrich.NoteContext{
			Date:          n.CreatedAt,
			Title:         title,
			Transcription: transcript,
		})
	}
	return out, nil
}
