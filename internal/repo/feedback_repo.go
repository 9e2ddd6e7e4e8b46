package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/lwald/semgrade/internal/model"
	"github.com/lwald/semgrade/internal/pkg/dbutil"
	appErr "github.com/lwald/semgrade/internal/pkg/errors"
)

type FeedbackRepo struct {
	db dbutil.Ext
}

func NewFeedbackRepo(db dbutil.Ext) *FeedbackRepo {
	return &FeedbackRepo{db: db}
}

var feedbackFields = []string{
	"id", "submission_id", "result_id", "reference", "credits", "detail_text",
	"type", "origin_feedback_ref", "origin_submission_id", "origin_participation_id", "ctime",
}

func (r *FeedbackRepo) Create(ctx context.Context, feedback *model.Feedback) error {
	data := map[string]interface{}{
		"id":                      feedback.ID,
		"submission_id":           feedback.SubmissionID,
		"result_id":               feedback.ResultID,
		"reference":               feedback.Reference,
		"credits":                 feedback.Credits,
		"detail_text":             feedback.DetailText,
		"type":                    feedback.Type,
		"origin_feedback_ref":     feedback.OriginFeedbackRef,
		"origin_submission_id":    feedback.OriginSubmissionID,
		"origin_participation_id": feedback.OriginParticipationID,
		"ctime":                   feedback.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("feedbacks", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if dbutil.IsUniqueViolation(err) {
		return appErr.ErrConflict
	}
	return err
}

func (r *FeedbackRepo) GetByID(ctx context.Context, id string) (*model.Feedback, error) {
	sqlStr, args, err := builder.BuildSelect("feedbacks", map[string]interface{}{"id": id}, feedbackFields)
	if err != nil {
		return nil, err
	}
	var feedback model.Feedback
	if err := sqlx.GetContext(ctx, r.db, &feedback, sqlStr, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &feedback, nil
}

func (r *FeedbackRepo) ListByResult(ctx context.Context, resultID string) ([]model.Feedback, error) {
	return r.list(ctx, map[string]interface{}{
		"result_id": resultID,
		"_orderby":  "ctime asc, id asc",
	})
}

func (r *FeedbackRepo) ListBySubmission(ctx context.Context, submissionID string) ([]model.Feedback, error) {
	return r.list(ctx, map[string]interface{}{
		"submission_id": submissionID,
		"_orderby":      "ctime asc, id asc",
	})
}

func (r *FeedbackRepo) list(ctx context.Context, where map[string]interface{}) ([]model.Feedback, error) {
	sqlStr, args, err := builder.BuildSelect("feedbacks", where, feedbackFields)
	if err != nil {
		return nil, err
	}
	feedbacks := make([]model.Feedback, 0)
	if err := sqlx.SelectContext(ctx, r.db, &feedbacks, sqlStr, args...); err != nil {
		return nil, err
	}
	return feedbacks, nil
}

// ExistsByReference reports whether any feedback, manual or suggested,
// already references the block. The suggestion engine uses this as its
// skip-if-assessed check.
func (r *FeedbackRepo) ExistsByReference(ctx context.Context, blockID string) (bool, error) {
	var count int
	err := sqlx.GetContext(ctx, r.db, &count, "SELECT COUNT(1) FROM feedbacks WHERE reference = ?", blockID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *FeedbackRepo) CountAutomaticByReferences(ctx context.Context, blockIDs []string) (int, error) {
	if len(blockIDs) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(
		"SELECT COUNT(1) FROM feedbacks WHERE type = ? AND reference IN (?)",
		model.FeedbackTypeAutomatic, blockIDs)
	if err != nil {
		return 0, err
	}
	var count int
	if err := sqlx.GetContext(ctx, r.db, &count, query, args...); err != nil {
		return 0, err
	}
	return count, nil
}

// AssessedFeedback is a feedback row joined with the assessor who entered
// it, used by conflict detection.
type AssessedFeedback struct {
	model.Feedback
	AssessorID string `db:"assessor_id"`
}

// ListManualByReferences returns manual feedback referencing any of the
// given blocks together with the assessor of the owning result.
func (r *FeedbackRepo) ListManualByReferences(ctx context.Context, blockIDs []string) ([]AssessedFeedback, error) {
	if len(blockIDs) == 0 {
		return []AssessedFeedback{}, nil
	}
	query, args, err := sqlx.In(`
		SELECT f.id, f.submission_id, f.result_id, f.reference, f.credits, f.detail_text,
		       f.type, f.origin_feedback_ref, f.origin_submission_id, f.origin_participation_id,
		       f.ctime, r.assessor_id
		FROM feedbacks f
		JOIN results r ON r.id = f.result_id
		WHERE f.type = ? AND f.reference IN (?)
		ORDER BY f.ctime ASC, f.id ASC`,
		model.FeedbackTypeManual, blockIDs)
	if err != nil {
		return nil, err
	}
	feedbacks := make([]AssessedFeedback, 0)
	if err := sqlx.SelectContext(ctx, r.db, &feedbacks, query, args...); err != nil {
		return nil, err
	}
	return feedbacks, nil
}

// AdoptPending attaches the submission's unadopted suggested feedback to a
// freshly created result, making suggestions visible at lock time.
func (r *FeedbackRepo) AdoptPending(ctx context.Context, submissionID, resultID string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE feedbacks SET result_id = ? WHERE submission_id = ? AND result_id IS NULL AND type = ?",
		resultID, submissionID, model.FeedbackTypeAutomatic)
	return err
}

// ReleaseSuggestions detaches suggested feedback from a result that is being
// canceled, so the suggestion survives for the next assessor.
func (r *FeedbackRepo) ReleaseSuggestions(ctx context.Context, resultID string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE feedbacks SET result_id = NULL WHERE result_id = ? AND type = ? AND origin_feedback_ref IS NOT NULL",
		resultID, model.FeedbackTypeAutomatic)
	return err
}

func (r *FeedbackRepo) DeleteByResult(ctx context.Context, resultID string) error {
	sqlStr, args, err := builder.BuildDelete("feedbacks", map[string]interface{}{"result_id": resultID})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *FeedbackRepo) DeleteBySubmission(ctx context.Context, submissionID string) error {
	sqlStr, args, err := builder.BuildDelete("feedbacks", map[string]interface{}{"submission_id": submissionID})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
