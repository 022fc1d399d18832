package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stemsi/exstem-papers/internal/repository"
)

// AdminListPapers lists all papers, newest first.
func (s *PaperService) AdminListPapers(ctx context.Context, skip, limit int) ([]model.PaperSummary, error) {
	recs, err := s.repo.GetAll(ctx, repository.EntityPaper, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	papers, err := decodePapers(recs)
	if err != nil {
		s.logCorruption(err, "")
		return nil, err
	}
	slices.SortStableFunc(papers, func(a, b *model.Paper) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	papers = repository.Window(papers, skip, limit)
	out := make([]model.PaperSummary, 0, len(papers))
	for _, p := range papers {
		out = append(out, paperSummary(p))
	}
	return out, nil
}

// AdminPaperDetail returns the full stored paper, answers and correctness
// partition included.
func (s *PaperService) AdminPaperDetail(ctx context.Context, paperID string) (*model.Paper, error) {
	return s.loadPaper(ctx, paperID)
}

// AdminDeletePaper removes a paper. It reports false when nothing was deleted.
func (s *PaperService) AdminDeletePaper(ctx context.Context, paperID string) (bool, error) {
	paper, err := s.loadPaper(ctx, paperID)
	if err != nil {
		return false, err
	}
	deleted, err := s.repo.Delete(ctx, repository.EntityPaper, paperID)
	if err != nil {
		return false, fmt.Errorf("delete paper: %w", err)
	}
	if deleted {
		s.events.Emit(ctx, model.PaperEvent{
			PaperID: paperID,
			UserUID: paper.UserUID,
			Kind:    model.EventPaperDeleted,
		}, "")
		s.log.Info().Str("paper_id", paperID).Msg("Paper deleted")
	}
	return deleted, nil
}

// PendingManualGrading lists papers waiting for essay grading, oldest
// submission first.
func (s *PaperService) PendingManualGrading(ctx context.Context, skip, limit int) ([]model.PendingPaper, error) {
	recs, err := s.repo.Query(ctx, repository.EntityPaper,
		repository.Record{"status": string(model.PaperStatusPendingManualGrading)}, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("query pending papers: %w", err)
	}
	papers, err := decodePapers(recs)
	if err != nil {
		s.logCorruption(err, "")
		return nil, err
	}
	slices.SortStableFunc(papers, func(a, b *model.Paper) int {
		return activityTime(a).Compare(activityTime(b))
	})

	papers = repository.Window(papers, skip, limit)
	out := make([]model.PendingPaper, 0, len(papers))
	for _, p := range papers {
		item := model.PendingPaper{PaperSummary: paperSummary(p)}
		for _, q := range p.PaperQuestions {
			if !q.QuestionType.IsSubjective() {
				continue
			}
			item.SubjectiveCount++
			if q.IsGraded {
				item.GradedSubjectiveCount++
			}
		}
		item.PendingCount = item.SubjectiveCount - item.GradedSubjectiveCount
		out = append(out, item)
	}
	return out, nil
}
