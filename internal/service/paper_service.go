package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/config"
	"github.com/stemsi/exstem-papers/internal/events"
	"github.com/stemsi/exstem-papers/internal/grading"
	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stemsi/exstem-papers/internal/observability"
	"github.com/stemsi/exstem-papers/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// QuestionSource provides the difficulty registry and the question pools
// papers are drawn from.
type QuestionSource interface {
	Difficulty(id string) (model.LibraryIndexItem, bool)
	Difficulties() []model.LibraryIndexItem
	Pool(ctx context.Context, id string) ([]model.Question, error)
}

// PaperService runs the paper lifecycle: creation, progress saves, grading
// and the read-only projections. Every mutation is a single repository call.
type PaperService struct {
	repo     repository.Repository
	source   QuestionSource
	events   *events.Emitter
	settings *config.Settings
	log      zerolog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewPaperService creates a new PaperService.
func NewPaperService(
	repo repository.Repository,
	source QuestionSource,
	emitter *events.Emitter,
	settings *config.Settings,
	log zerolog.Logger,
) *PaperService {
	return &PaperService{
		repo:     repo,
		source:   source,
		events:   emitter,
		settings: settings,
		log:      log.With().Str("component", "paper_service").Logger(),
		tracer:   observability.Tracer("paper_service"),
		now:      time.Now,
	}
}

// CreatePaperInput carries a paper creation request.
type CreatePaperInput struct {
	UserUID    string
	Difficulty string
	// Count overrides the difficulty's default question count when positive.
	Count    int
	ClientIP string
}

// GradeSubjectiveInput carries one manual grade.
type GradeSubjectiveInput struct {
	PaperID    string
	QuestionID string
	Score      float64
	Comment    string
}

// Difficulties lists the configured difficulties.
func (s *PaperService) Difficulties() []model.LibraryIndexItem {
	return s.source.Difficulties()
}

// CreatePaper draws a new randomized paper for the user and stores it.
// Nothing is persisted when the draw fails.
func (s *PaperService) CreatePaper(ctx context.Context, in CreatePaperInput) (*model.PaperView, error) {
	ctx, span := s.tracer.Start(ctx, "paper.create")
	span.SetAttributes(
		attribute.String("paper.difficulty", in.Difficulty),
		attribute.Int("paper.count", in.Count),
	)
	defer span.End()

	item, ok := s.source.Difficulty(in.Difficulty)
	if !ok {
		span.SetStatus(codes.Error, "unknown_difficulty")
		return nil, fmt.Errorf("%w: %q", ErrUnknownDifficulty, in.Difficulty)
	}

	count := in.Count
	switch {
	case count < 0:
		return nil, ErrInvalidQuestionCount
	case count == 0:
		count = item.DefaultQuestions
		if count <= 0 {
			count = s.settings.Paper().DefaultQuestionCount
		}
	}

	drawn, err := s.draw(ctx, item, count)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "draw_failed")
		return nil, err
	}

	ids := newIDSet(s.settings.Paper().CodeLengthBytes)
	questions := make([]model.PaperQuestion, 0, len(drawn))
	for _, q := range drawn {
		pq, err := s.renderQuestion(q, ids)
		if err != nil {
			return nil, err
		}
		questions = append(questions, pq)
	}

	now := s.now().UTC()
	paper := &model.Paper{
		PaperID:        uuid.NewString(),
		UserUID:        in.UserUID,
		Difficulty:     item.ID,
		PaperQuestions: questions,
		Answers:        model.Answers{},
		Status:         model.PaperStatusInProgress,
		CreatedAt:      now,
		UpdatedAt:      now,
		CreationIP:     in.ClientIP,
	}

	rec, err := repository.Encode(paper)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.Create(ctx, repository.EntityPaper, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create_failed")
		return nil, fmt.Errorf("create paper: %w", err)
	}

	observability.PapersCreated().WithLabelValues(item.ID).Inc()
	s.events.Emit(ctx, model.PaperEvent{
		PaperID: paper.PaperID,
		UserUID: paper.UserUID,
		Kind:    model.EventPaperCreated,
	}, in.ClientIP)

	s.log.Info().
		Str("paper_id", paper.PaperID).
		Str("user_uid", paper.UserUID).
		Str("difficulty", item.ID).
		Int("questions", len(questions)).
		Msg("Paper created")

	span.SetAttributes(attribute.String("paper.id", paper.PaperID))
	return paperView(paper), nil
}

// draw samples count questions for the difficulty. A hybrid difficulty
// takes the ceiling half from its first pool and the rest from its second.
func (s *PaperService) draw(ctx context.Context, item model.LibraryIndexItem, count int) ([]model.Question, error) {
	if count < 1 {
		return nil, ErrInvalidQuestionCount
	}
	if !item.IsHybrid() {
		return s.drawFrom(ctx, item.ID, count)
	}

	first, err := s.drawFrom(ctx, item.HybridOf[0], (count+1)/2)
	if err != nil {
		return nil, err
	}
	second, err := s.drawFrom(ctx, item.HybridOf[1], count/2)
	if err != nil {
		return nil, err
	}
	return append(first, second...), nil
}

func (s *PaperService) drawFrom(ctx context.Context, difficulty string, n int) ([]model.Question, error) {
	if n == 0 {
		return nil, nil
	}
	pool, err := s.source.Pool(ctx, difficulty)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInsufficientQuestions, difficulty, err)
	}
	if len(pool) < n {
		return nil, fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientQuestions, difficulty, len(pool), n)
	}
	return sample(pool, n), nil
}

// UpdateProgress merges an answers delta into an in-progress paper.
func (s *PaperService) UpdateProgress(ctx context.Context, paperID, userUID string, delta model.Answers) (*model.ProgressResult, error) {
	ctx, span := s.tracer.Start(ctx, "paper.progress")
	span.SetAttributes(attribute.String("paper.id", paperID))
	defer span.End()

	result := &model.ProgressResult{PaperID: paperID}
	var updatedAt time.Time

	_, err := s.repo.Modify(ctx, repository.EntityPaper, paperID, func(current repository.Record) (repository.Record, error) {
		paper, err := decodePaper(current)
		if err != nil {
			return nil, err
		}
		if paper.UserUID != userUID {
			return nil, abortWith(model.OutcomeNotFound)
		}
		if paper.Status.Submitted() {
			return nil, abortWith(model.OutcomeAlreadyCompleted)
		}
		if !knownKeys(paper, delta) {
			return nil, abortWith(model.OutcomeInvalidAnswers)
		}

		answers := paper.Answers
		if answers == nil {
			answers = model.Answers{}
		}
		for k, v := range delta {
			answers[k] = v
		}
		updatedAt = s.now().UTC()

		partial, err := repository.Encode(struct {
			Answers   model.Answers `json:"answers"`
			UpdatedAt time.Time     `json:"updated_at"`
		}{answers, updatedAt})
		if err != nil {
			return nil, err
		}
		return partial, nil
	})

	switch outcome, isOutcome := outcomeOf(err); {
	case err == nil:
		result.Outcome = model.OutcomeProgressSaved
		result.UpdatedAt = &updatedAt
	case errors.Is(err, repository.ErrNotFound):
		result.Outcome = model.OutcomeNotFound
	case isOutcome:
		result.Outcome = outcome
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "progress_failed")
		s.logCorruption(err, paperID)
		return nil, fmt.Errorf("update progress: %w", err)
	}

	observability.ProgressSaves().WithLabelValues(string(result.Outcome)).Inc()
	return result, nil
}

// GradeSubmission merges the final answers, scores every objective question
// and finalizes the paper. Grading an already submitted paper changes
// nothing and returns the stored result.
func (s *PaperService) GradeSubmission(ctx context.Context, paperID, userUID string, final model.Answers, clientIP string) (*model.GradeResult, error) {
	ctx, span := s.tracer.Start(ctx, "paper.grade")
	span.SetAttributes(attribute.String("paper.id", paperID))
	defer span.End()

	var (
		graded   *model.Paper
		previous *model.Paper
		pending  int
	)

	_, err := s.repo.Modify(ctx, repository.EntityPaper, paperID, func(current repository.Record) (repository.Record, error) {
		paper, err := decodePaper(current)
		if err != nil {
			return nil, err
		}
		if paper.UserUID != userUID {
			return nil, abortWith(model.OutcomeNotFound)
		}
		if paper.Status.Submitted() {
			previous = paper
			return nil, abortWith(model.OutcomeAlreadyGraded)
		}
		if err := checkStructure(paper); err != nil {
			return nil, err
		}
		if !knownKeys(paper, final) {
			return nil, abortWith(model.OutcomeInvalidSubmission)
		}

		if paper.Answers == nil {
			paper.Answers = model.Answers{}
		}
		for k, v := range final {
			paper.Answers[k] = v
		}
		// Every question needs an answer once saved progress is merged in.
		if len(paper.Answers) != len(paper.PaperQuestions) {
			return nil, abortWith(model.OutcomeInvalidSubmission)
		}

		pending = 0
		for i := range paper.PaperQuestions {
			q := &paper.PaperQuestions[i]
			r := grading.Score(*q, paper.Answers[q.InternalID])
			if r.NeedsManual {
				pending++
				continue
			}
			q.ScoreObtained = r.Obtained
			q.IsGraded = true
		}

		now := s.now().UTC()
		paper.SubmittedAt = &now
		paper.UpdatedAt = now
		paper.SubmissionIP = clientIP
		if pending > 0 {
			paper.Status = model.PaperStatusPendingManualGrading
		} else if err := s.finalize(paper); err != nil {
			return nil, err
		}

		graded = paper
		return pickFields(paper,
			"answers", "paper_questions", "status", "score", "score_percentage",
			"pass_status", "passcode", "submitted_at", "updated_at", "submission_ip")
	})

	outcome, isOutcome := outcomeOf(err)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound), isOutcome && outcome == model.OutcomeNotFound:
		return &model.GradeResult{Outcome: model.OutcomeNotFound, PaperID: paperID}, nil
	case isOutcome && outcome == model.OutcomeAlreadyGraded:
		res := gradeResult(previous, pendingEssays(previous))
		res.PreviousResult = res.Outcome
		res.Outcome = model.OutcomeAlreadyGraded
		return res, nil
	case isOutcome:
		return &model.GradeResult{Outcome: outcome, PaperID: paperID}, nil
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "grade_failed")
		s.logCorruption(err, paperID)
		return nil, fmt.Errorf("grade paper: %w", err)
	}

	res := gradeResult(graded, pending)
	observability.PapersGraded().WithLabelValues(graded.Difficulty, string(res.Outcome)).Inc()
	if graded.ScorePercentage != nil {
		observability.ScorePercentage().WithLabelValues(graded.Difficulty).Observe(*graded.ScorePercentage)
	}
	s.events.Emit(ctx, model.PaperEvent{
		PaperID: graded.PaperID,
		UserUID: graded.UserUID,
		Kind:    model.EventPaperGraded,
		Outcome: res.Outcome,
		Score:   graded.Score,
	}, clientIP)

	s.log.Info().
		Str("paper_id", paperID).
		Str("outcome", string(res.Outcome)).
		Int("pending_manual", pending).
		Msg("Paper graded")

	span.SetAttributes(attribute.String("paper.outcome", string(res.Outcome)))
	return res, nil
}

// GradeSubjective records a manual score for one essay question. Grading
// the last ungraded essay completes the paper.
func (s *PaperService) GradeSubjective(ctx context.Context, in GradeSubjectiveInput) (*model.SubjectiveGradeResult, error) {
	ctx, span := s.tracer.Start(ctx, "paper.grade_subjective")
	span.SetAttributes(
		attribute.String("paper.id", in.PaperID),
		attribute.String("paper.question_id", in.QuestionID),
	)
	defer span.End()

	var graded *model.Paper
	var pending int

	_, err := s.repo.Modify(ctx, repository.EntityPaper, in.PaperID, func(current repository.Record) (repository.Record, error) {
		paper, err := decodePaper(current)
		if err != nil {
			return nil, err
		}

		idx := slices.IndexFunc(paper.PaperQuestions, func(q model.PaperQuestion) bool {
			return q.InternalID == in.QuestionID
		})
		if idx < 0 {
			return nil, ErrNotFoundOrForbidden
		}
		q := &paper.PaperQuestions[idx]
		if !q.QuestionType.IsSubjective() {
			return nil, ErrNotSubjective
		}
		switch paper.Status {
		case model.PaperStatusInProgress:
			return nil, ErrPaperNotSubmitted
		case model.PaperStatusCompleted:
			return nil, ErrAlreadyTerminal
		}
		if in.Score < 0 || in.Score > q.ScoreValue {
			return nil, fmt.Errorf("%w: %v not in [0, %v]", ErrScoreOutOfRange, in.Score, q.ScoreValue)
		}

		q.ScoreObtained = in.Score
		q.TeacherComment = in.Comment
		q.IsGraded = true
		paper.UpdatedAt = s.now().UTC()

		pending = pendingEssays(paper)
		if pending == 0 {
			if err := s.finalize(paper); err != nil {
				return nil, err
			}
		}

		graded = paper
		return pickFields(paper,
			"paper_questions", "status", "score", "score_percentage", "pass_status", "passcode", "updated_at")
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFoundOrForbidden
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "manual_grade_failed")
		s.logCorruption(err, in.PaperID)
		return nil, err
	}

	observability.ManualGrades().Inc()
	res := &model.SubjectiveGradeResult{
		PaperID:            graded.PaperID,
		QuestionID:         in.QuestionID,
		Status:             graded.Status,
		PendingManualCount: pending,
		Finalized:          graded.Status == model.PaperStatusCompleted,
		Score:              graded.Score,
		ScorePercentage:    graded.ScorePercentage,
		PassStatus:         graded.PassStatus,
	}
	if res.Finalized {
		outcome := model.OutcomeFailed
		if graded.PassStatus != nil && *graded.PassStatus {
			outcome = model.OutcomePassed
		}
		observability.PapersGraded().WithLabelValues(graded.Difficulty, string(outcome)).Inc()
		observability.ScorePercentage().WithLabelValues(graded.Difficulty).Observe(*graded.ScorePercentage)
		s.events.Emit(ctx, model.PaperEvent{
			PaperID: graded.PaperID,
			UserUID: graded.UserUID,
			Kind:    model.EventPaperManuallyGraded,
			Outcome: outcome,
			Score:   graded.Score,
		}, "")
	}

	s.log.Info().
		Str("paper_id", in.PaperID).
		Str("question_id", in.QuestionID).
		Int("pending_manual", pending).
		Bool("finalized", res.Finalized).
		Msg("Essay question graded")
	return res, nil
}

// History lists the user's papers, most recent first.
func (s *PaperService) History(ctx context.Context, userUID string) ([]model.HistoryItem, error) {
	ctx, span := s.tracer.Start(ctx, "paper.history")
	defer span.End()

	recs, err := s.repo.Query(ctx, repository.EntityPaper, repository.Record{"user_uid": userUID}, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("query papers: %w", err)
	}

	papers, err := decodePapers(recs)
	if err != nil {
		s.logCorruption(err, "")
		return nil, err
	}
	slices.SortStableFunc(papers, func(a, b *model.Paper) int {
		return activityTime(b).Compare(activityTime(a))
	})

	items := make([]model.HistoryItem, 0, len(papers))
	for _, p := range papers {
		items = append(items, historyItem(p))
	}
	return items, nil
}

// Detail returns the user's view of one of their papers. A paper owned by
// someone else is reported exactly like a missing one.
func (s *PaperService) Detail(ctx context.Context, paperID, userUID string) (*model.PaperDetail, error) {
	ctx, span := s.tracer.Start(ctx, "paper.detail")
	span.SetAttributes(attribute.String("paper.id", paperID))
	defer span.End()

	paper, err := s.loadPaper(ctx, paperID)
	if err != nil {
		return nil, err
	}
	if paper.UserUID != userUID {
		return nil, ErrNotFoundOrForbidden
	}
	return paperDetail(paper), nil
}

// finalize computes the aggregate score and completes the paper. A passcode
// is issued only on a pass and never replaced.
func (s *PaperService) finalize(p *model.Paper) error {
	var obtained, possible float64
	for _, q := range p.PaperQuestions {
		possible += q.ScoreValue
		obtained += q.ScoreObtained
	}
	if possible <= 0 {
		return fmt.Errorf("%w: total possible score is %v", ErrCorruptedPaper, possible)
	}

	pct := min(max(100*obtained/possible, 0), 100)
	passed := pct >= s.settings.Paper().PassingScorePercentage

	p.Score = &obtained
	p.ScorePercentage = &pct
	p.PassStatus = &passed
	p.Status = model.PaperStatusCompleted

	if passed && p.Passcode == nil {
		code, err := newCode(s.settings.Paper().CodeLengthBytes)
		if err != nil {
			return err
		}
		p.Passcode = &code
	}
	return nil
}

func (s *PaperService) loadPaper(ctx context.Context, paperID string) (*model.Paper, error) {
	rec, err := s.repo.GetByID(ctx, repository.EntityPaper, paperID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFoundOrForbidden
	}
	if err != nil {
		return nil, fmt.Errorf("get paper: %w", err)
	}
	paper, err := decodePaper(rec)
	if err != nil {
		s.logCorruption(err, paperID)
		return nil, err
	}
	return paper, nil
}

func (s *PaperService) logCorruption(err error, paperID string) {
	if errors.Is(err, ErrCorruptedPaper) {
		s.log.Error().Err(err).Str("paper_id", paperID).Msg("Corrupted paper structure")
	}
}

func gradeResult(p *model.Paper, pending int) *model.GradeResult {
	res := &model.GradeResult{
		PaperID:            p.PaperID,
		Score:              p.Score,
		ScorePercentage:    p.ScorePercentage,
		PassStatus:         p.PassStatus,
		Passcode:           p.Passcode,
		PendingManualCount: pending,
	}
	switch {
	case p.Status == model.PaperStatusPendingManualGrading:
		res.Outcome = model.OutcomePendingManualGrading
	case p.PassStatus != nil && *p.PassStatus:
		res.Outcome = model.OutcomePassed
	default:
		res.Outcome = model.OutcomeFailed
	}
	return res
}

func decodePaper(rec repository.Record) (*model.Paper, error) {
	var p model.Paper
	if err := rec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedPaper, err)
	}
	return &p, nil
}

func decodePapers(recs []repository.Record) ([]*model.Paper, error) {
	out := make([]*model.Paper, 0, len(recs))
	for _, rec := range recs {
		p, err := decodePaper(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// checkStructure rejects stored papers that break the paper invariants.
func checkStructure(p *model.Paper) error {
	if len(p.PaperQuestions) == 0 {
		return fmt.Errorf("%w: paper has no questions", ErrCorruptedPaper)
	}
	seen := make(map[string]struct{}, len(p.PaperQuestions))
	for i, q := range p.PaperQuestions {
		if q.InternalID == "" {
			return fmt.Errorf("%w: question %d has no id", ErrCorruptedPaper, i)
		}
		if _, dup := seen[q.InternalID]; dup {
			return fmt.Errorf("%w: duplicate question id %s", ErrCorruptedPaper, q.InternalID)
		}
		seen[q.InternalID] = struct{}{}
		if !q.QuestionType.Valid() {
			return fmt.Errorf("%w: question %s has type %q", ErrCorruptedPaper, q.InternalID, q.QuestionType)
		}
		if q.ScoreValue < 0 {
			return fmt.Errorf("%w: question %s has negative score value", ErrCorruptedPaper, q.InternalID)
		}
		if q.QuestionType == model.QuestionTypeSingleChoice && len(q.CorrectChoicesMap) != 1 {
			return fmt.Errorf("%w: single-choice question %s has %d correct choices",
				ErrCorruptedPaper, q.InternalID, len(q.CorrectChoicesMap))
		}
	}
	return nil
}

func knownKeys(p *model.Paper, answers model.Answers) bool {
	if len(answers) == 0 {
		return true
	}
	ids := make(map[string]struct{}, len(p.PaperQuestions))
	for _, q := range p.PaperQuestions {
		ids[q.InternalID] = struct{}{}
	}
	for k := range answers {
		if _, ok := ids[k]; !ok {
			return false
		}
	}
	return true
}

func pendingEssays(p *model.Paper) int {
	n := 0
	for _, q := range p.PaperQuestions {
		if q.QuestionType.IsSubjective() && !q.IsGraded {
			n++
		}
	}
	return n
}

func activityTime(p *model.Paper) time.Time {
	if p.SubmittedAt != nil {
		return *p.SubmittedAt
	}
	return p.CreatedAt
}

// pickFields encodes p and keeps only the named top-level fields.
func pickFields(p *model.Paper, fields ...string) (repository.Record, error) {
	full, err := repository.Encode(p)
	if err != nil {
		return nil, err
	}
	out := make(repository.Record, len(fields))
	for _, f := range fields {
		out[f] = full[f]
	}
	return out, nil
}
