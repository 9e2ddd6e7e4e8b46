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

type SubmissionRepo struct {
	db dbutil.Ext
}

func NewSubmissionRepo(db dbutil.Ext) *SubmissionRepo {
	return &SubmissionRepo{db: db}
}

const submissionFieldsSQL = "id, exercise_id, participation_id, text, submitted, ctime"

var submissionFields = []string{"id", "exercise_id", "participation_id", "text", "submitted", "ctime"}

func (r *SubmissionRepo) Create(ctx context.Context, submission *model.Submission) error {
	data := map[string]interface{}{
		"id":               submission.ID,
		"exercise_id":      submission.ExerciseID,
		"participation_id": submission.ParticipationID,
		"text":             submission.Text,
		"submitted":        submission.Submitted,
		"ctime":            submission.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("submissions", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if dbutil.IsUniqueViolation(err) {
		return appErr.ErrConflict
	}
	return err
}

func (r *SubmissionRepo) SetSubmitted(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildUpdate("submissions",
		map[string]interface{}{"id": id},
		map[string]interface{}{"submitted": true})
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *SubmissionRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("submissions", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *SubmissionRepo) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	return r.getOne(ctx, map[string]interface{}{"id": id})
}

func (r *SubmissionRepo) GetByParticipation(ctx context.Context, participationID string) (*model.Submission, error) {
	return r.getOne(ctx, map[string]interface{}{
		"participation_id": participationID,
		"_orderby":         "ctime desc",
		"_limit":           []uint{0, 1},
	})
}

func (r *SubmissionRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.Submission, error) {
	sqlStr, args, err := builder.BuildSelect("submissions", where, submissionFields)
	if err != nil {
		return nil, err
	}
	var submission model.Submission
	if err := sqlx.GetContext(ctx, r.db, &submission, sqlStr, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &submission, nil
}

func (r *SubmissionRepo) ListByIDs(ctx context.Context, ids []string) ([]model.Submission, error) {
	if len(ids) == 0 {
		return []model.Submission{}, nil
	}
	values := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		values = append(values, id)
	}
	sqlStr, args, err := builder.BuildSelect("submissions", map[string]interface{}{
		"id in":    values,
		"_orderby": "ctime asc",
	}, submissionFields)
	if err != nil {
		return nil, err
	}
	subs := make([]model.Submission, 0)
	if err := sqlx.SelectContext(ctx, r.db, &subs, sqlStr, args...); err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *SubmissionRepo) ListSubmittedByExercise(ctx context.Context, exerciseID string) ([]model.Submission, error) {
	sqlStr, args, err := builder.BuildSelect("submissions", map[string]interface{}{
		"exercise_id": exerciseID,
		"submitted":   true,
		"_orderby":    "ctime asc",
	}, submissionFields)
	if err != nil {
		return nil, err
	}
	subs := make([]model.Submission, 0)
	if err := sqlx.SelectContext(ctx, r.db, &subs, sqlStr, args...); err != nil {
		return nil, err
	}
	return subs, nil
}

// FindNextUnassessed returns the oldest submitted submission of the exercise
// that has no result for the given correction round. For rounds past the
// first, only submissions whose previous round is finalized qualify.
func (r *SubmissionRepo) FindNextUnassessed(ctx context.Context, exerciseID string, round int) (*model.Submission, error) {
	query := `SELECT ` + submissionFieldsSQL + ` FROM submissions s
		WHERE s.exercise_id = ? AND s.submitted = 1
		AND NOT EXISTS (
			SELECT 1 FROM results r WHERE r.submission_id = s.id AND r.correction_round = ?
		)`
	args := []interface{}{exerciseID, round}
	if round > 0 {
		query += `
		AND EXISTS (
			SELECT 1 FROM results p WHERE p.submission_id = s.id AND p.correction_round = ? AND p.completion_date IS NOT NULL
		)`
		args = append(args, round-1)
	}
	query += " ORDER BY s.ctime ASC, s.id ASC LIMIT 1"
	var submission model.Submission
	if err := sqlx.GetContext(ctx, r.db, &submission, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &submission, nil
}
