package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/lwald/semgrade/internal/model"
	appErr "github.com/lwald/semgrade/internal/pkg/errors"
	"github.com/lwald/semgrade/internal/pkg/timeutil"
	"github.com/lwald/semgrade/internal/repo"
)

// AssessmentService owns the assessment lifecycle: locking a submission for a
// correction round, saving and submitting feedback, and the two read paths
// (assessor view and participation view) that must agree on block identity.
type AssessmentService struct {
	db          *sqlx.DB
	submissions *repo.SubmissionRepo
	results     *repo.ResultRepo
	blocks      *repo.TextBlockRepo
	feedbacks   *repo.FeedbackRepo
	suggestions *SuggestionService
	conflicts   *ConflictService
}

func NewAssessmentService(
	db *sqlx.DB,
	submissions *repo.SubmissionRepo,
	results *repo.ResultRepo,
	blocks *repo.TextBlockRepo,
	feedbacks *repo.FeedbackRepo,
	suggestions *SuggestionService,
	conflicts *ConflictService,
) *AssessmentService {
	return &AssessmentService{
		db:          db,
		submissions: submissions,
		results:     results,
		blocks:      blocks,
		feedbacks:   feedbacks,
		suggestions: suggestions,
		conflicts:   conflicts,
	}
}

// AssessmentBundle is everything an assessor needs for one submission: the
// text, its blocks in reading order, the lock result, and the feedback
// attached to that result.
type AssessmentBundle struct {
	Submission model.Submission  `json:"submission"`
	Result     *model.Result     `json:"result,omitempty"`
	Blocks     []model.TextBlock `json:"blocks"`
	Feedbacks  []model.Feedback  `json:"feedbacks"`
}

// BlockInput is a tutor-defined span sent along a feedback save. Its identity
// is derived server-side from the submission and the span.
type BlockInput struct {
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
	Text       string `json:"text"`
}

type FeedbackInput struct {
	ID                    string  `json:"id"`
	Reference             *string `json:"reference,omitempty"`
	Credits               float64 `json:"credits"`
	DetailText            string  `json:"detail_text"`
	Type                  string  `json:"type"`
	OriginFeedbackRef     *string `json:"suggested_feedback_reference,omitempty"`
	OriginSubmissionID    *string `json:"suggested_feedback_origin_submission,omitempty"`
	OriginParticipationID *string `json:"suggested_feedback_origin_participation,omitempty"`
}

type SaveFeedbackRequest struct {
	Blocks    []BlockInput    `json:"blocks"`
	Feedbacks []FeedbackInput `json:"feedbacks"`
}

// LockNext picks the oldest unassessed submission of the exercise for the
// given correction round and locks it for the caller. Pending feedback
// suggestions for that submission are adopted into the new result so the
// assessor sees them from the first fetch.
func (s *AssessmentService) LockNext(ctx context.Context, user model.User, exerciseID string, round int) (*AssessmentBundle, error) {
	if !user.CanAssess() {
		return nil, appErr.ErrForbidden
	}
	submission, err := s.submissions.FindNextUnassessed(ctx, exerciseID, round)
	if err != nil {
		return nil, err
	}
	return s.lock(ctx, user, submission, round)
}

// Lock locks one specific submission for the given correction round.
func (s *AssessmentService) Lock(ctx context.Context, user model.User, submissionID string, round int) (*AssessmentBundle, error) {
	if !user.CanAssess() {
		return nil, appErr.ErrForbidden
	}
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if !submission.Submitted {
		return nil, fmt.Errorf("%w: submission %s is not submitted", appErr.ErrInvalid, submissionID)
	}
	return s.lock(ctx, user, submission, round)
}

func (s *AssessmentService) lock(ctx context.Context, user model.User, submission *model.Submission, round int) (*AssessmentBundle, error) {
	if round < 0 {
		return nil, fmt.Errorf("%w: correction round must not be negative", appErr.ErrInvalid)
	}
	if round > 0 {
		previous, err := s.results.GetBySubmissionAndRound(ctx, submission.ID, round-1)
		if err != nil {
			if appErr.IsNotFound(err) {
				return nil, fmt.Errorf("%w: correction round %d requires a completed round %d", appErr.ErrConflict, round, round-1)
			}
			return nil, err
		}
		if !previous.Completed() {
			return nil, fmt.Errorf("%w: correction round %d requires a completed round %d", appErr.ErrConflict, round, round-1)
		}
	}
	now := timeutil.NowUnix()
	result := &model.Result{
		ID:              uuid.NewString(),
		SubmissionID:    submission.ID,
		AssessorID:      user.ID,
		CorrectionRound: round,
		Ctime:           now,
		Mtime:           now,
	}
	if err := s.results.Create(ctx, result); err != nil {
		return nil, err
	}
	if err := s.feedbacks.AdoptPending(ctx, submission.ID, result.ID); err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("submission locked for assessment",
		zap.String("submission_id", submission.ID),
		zap.String("assessor_id", user.ID),
		zap.Int("correction_round", round))
	return s.bundle(ctx, submission, result)
}

// GetForAssessment returns the assessor view of a submission: its blocks plus
// the open result (or the result of the given round) and its feedback.
func (s *AssessmentService) GetForAssessment(ctx context.Context, user model.User, submissionID string, round int) (*AssessmentBundle, error) {
	if !user.CanAssess() {
		return nil, appErr.ErrForbidden
	}
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	result, err := s.results.GetBySubmissionAndRound(ctx, submissionID, round)
	if err != nil && !appErr.IsNotFound(err) {
		return nil, err
	}
	return s.bundle(ctx, submission, result)
}

// GetParticipationSubmission is the student-facing fetch: the participation's
// latest submission with its blocks, and the feedback of the latest completed
// assessment if one exists. Block content and ids are identical to what the
// assessor path serves.
func (s *AssessmentService) GetParticipationSubmission(ctx context.Context, participationID string) (*AssessmentBundle, error) {
	submission, err := s.submissions.GetByParticipation(ctx, participationID)
	if err != nil {
		return nil, err
	}
	results, err := s.results.ListBySubmission(ctx, submission.ID)
	if err != nil {
		return nil, err
	}
	var latest *model.Result
	for i := range results {
		if results[i].Completed() {
			latest = &results[i]
		}
	}
	return s.bundle(ctx, submission, latest)
}

func (s *AssessmentService) bundle(ctx context.Context, submission *model.Submission, result *model.Result) (*AssessmentBundle, error) {
	blocks, err := s.blocks.ListBySubmission(ctx, submission.ID)
	if err != nil {
		return nil, err
	}
	feedbacks := make([]model.Feedback, 0)
	if result != nil {
		feedbacks, err = s.feedbacks.ListByResult(ctx, result.ID)
		if err != nil {
			return nil, err
		}
	}
	return &AssessmentBundle{
		Submission: *submission,
		Result:     result,
		Blocks:     blocks,
		Feedbacks:  feedbacks,
	}, nil
}

// Cancel releases a lock without submitting. Suggested feedback is detached
// so it survives for the next assessor; everything else entered under the
// result is dropped with it.
func (s *AssessmentService) Cancel(ctx context.Context, user model.User, resultID string) error {
	result, err := s.results.GetByID(ctx, resultID)
	if err != nil {
		return err
	}
	if result.Completed() {
		return fmt.Errorf("%w: assessment is already submitted", appErr.ErrConflict)
	}
	if result.AssessorID != user.ID && !user.IsInstructor() {
		return appErr.ErrForbidden
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	feedbackRepo := repo.NewFeedbackRepo(tx)
	resultRepo := repo.NewResultRepo(tx)
	if err := feedbackRepo.ReleaseSuggestions(ctx, resultID); err != nil {
		return err
	}
	if err := feedbackRepo.DeleteByResult(ctx, resultID); err != nil {
		return err
	}
	if err := resultRepo.Delete(ctx, resultID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("assessment canceled",
		zap.String("result_id", resultID),
		zap.String("submission_id", result.SubmissionID))
	return nil
}

// CancelBySubmission cancels the open assessment of a submission for the
// given correction round.
func (s *AssessmentService) CancelBySubmission(ctx context.Context, user model.User, submissionID string, round int) error {
	result, err := s.results.GetBySubmissionAndRound(ctx, submissionID, round)
	if err != nil {
		return err
	}
	return s.Cancel(ctx, user, result.ID)
}

// Save replaces the result's feedback with the incoming set. Tutor-defined
// blocks are stored first; a referenced feedback whose block is unknown even
// then rejects the whole save. Cluster metadata of existing blocks is never
// touched here, so a save/fetch round trip cannot degrade suggestions.
func (s *AssessmentService) Save(ctx context.Context, user model.User, resultID string, req *SaveFeedbackRequest) (*AssessmentBundle, error) {
	result, err := s.authorizedOpenResult(ctx, user, resultID)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, result, req); err != nil {
		return nil, err
	}
	submission, err := s.submissions.GetByID(ctx, result.SubmissionID)
	if err != nil {
		return nil, err
	}
	return s.bundle(ctx, submission, result)
}

// Submit finalizes the assessment: the feedback is saved, the result is
// completed, and each manual referenced feedback fans out into suggestion
// propagation and conflict detection.
func (s *AssessmentService) Submit(ctx context.Context, user model.User, resultID string, req *SaveFeedbackRequest) (*AssessmentBundle, error) {
	result, err := s.authorizedOpenResult(ctx, user, resultID)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, result, req); err != nil {
		return nil, err
	}
	now := timeutil.NowUnix()
	if err := s.results.Complete(ctx, resultID, now, now); err != nil {
		return nil, err
	}
	result.CompletionDate = &now
	result.Mtime = now

	saved, err := s.feedbacks.ListByResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	for _, feedback := range saved {
		if !feedback.IsManualReferenced() {
			continue
		}
		if err := s.suggestions.Propagate(ctx, feedback); err != nil {
			logutil.GetLogger(ctx).Error("suggestion propagation failed",
				zap.String("feedback_id", feedback.ID), zap.Error(err))
		}
		if err := s.conflicts.Detect(ctx, feedback, result.AssessorID); err != nil {
			logutil.GetLogger(ctx).Error("conflict detection failed",
				zap.String("feedback_id", feedback.ID), zap.Error(err))
		}
	}
	submission, err := s.submissions.GetByID(ctx, result.SubmissionID)
	if err != nil {
		return nil, err
	}
	return s.bundle(ctx, submission, result)
}

func (s *AssessmentService) authorizedOpenResult(ctx context.Context, user model.User, resultID string) (*model.Result, error) {
	result, err := s.results.GetByID(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if result.Completed() {
		return nil, fmt.Errorf("%w: assessment is already submitted", appErr.ErrConflict)
	}
	if result.AssessorID != user.ID && !user.IsInstructor() {
		return nil, appErr.ErrForbidden
	}
	return result, nil
}

func (s *AssessmentService) save(ctx context.Context, result *model.Result, req *SaveFeedbackRequest) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	blockRepo := repo.NewTextBlockRepo(tx)
	feedbackRepo := repo.NewFeedbackRepo(tx)
	now := timeutil.NowUnix()

	for _, input := range req.Blocks {
		if input.StartIndex < 0 || input.EndIndex <= input.StartIndex {
			return fmt.Errorf("%w: block span [%d,%d) is empty or negative", appErr.ErrInvalid, input.StartIndex, input.EndIndex)
		}
		block := &model.TextBlock{
			ID:           model.ComputeTextBlockID(result.SubmissionID, input.StartIndex, input.EndIndex),
			SubmissionID: result.SubmissionID,
			StartIndex:   input.StartIndex,
			EndIndex:     input.EndIndex,
			Text:         input.Text,
			Type:         model.TextBlockTypeManual,
			Ctime:        now,
			Mtime:        now,
		}
		if err := blockRepo.UpsertManual(ctx, block); err != nil {
			return err
		}
	}

	if err := feedbackRepo.DeleteByResult(ctx, result.ID); err != nil {
		return err
	}
	for _, input := range req.Feedbacks {
		if input.Reference != nil {
			if _, err := blockRepo.GetByID(ctx, *input.Reference); err != nil {
				if appErr.IsNotFound(err) {
					return fmt.Errorf("%w: feedback references unknown block %s", appErr.ErrInvalid, *input.Reference)
				}
				return err
			}
		}
		feedback := &model.Feedback{
			ID:                    input.ID,
			SubmissionID:          result.SubmissionID,
			ResultID:              &result.ID,
			Reference:             input.Reference,
			Credits:               input.Credits,
			DetailText:            input.DetailText,
			Type:                  input.Type,
			OriginFeedbackRef:     input.OriginFeedbackRef,
			OriginSubmissionID:    input.OriginSubmissionID,
			OriginParticipationID: input.OriginParticipationID,
			Ctime:                 now,
		}
		if feedback.ID == "" {
			feedback.ID = uuid.NewString()
		}
		if feedback.Type == "" {
			if feedback.Reference != nil {
				feedback.Type = model.FeedbackTypeManual
			} else {
				feedback.Type = model.FeedbackTypeManualUnreferenced
			}
		}
		if err := feedbackRepo.Create(ctx, feedback); err != nil {
			return err
		}
	}
	return tx.Commit()
}
