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

type ResultRepo struct {
	db dbutil.Ext
}

func NewResultRepo(db dbutil.Ext) *ResultRepo {
	return &ResultRepo{db: db}
}

var resultFields = []string{"id", "submission_id", "assessor_id", "correction_round", "completion_date", "ctime", "mtime"}

// Create inserts the result that locks a submission for one correction
// round. The unique index on (submission_id, correction_round) turns a
// concurrent lock attempt into ErrAlreadyLocked.
func (r *ResultRepo) Create(ctx context.Context, result *model.Result) error {
	data := map[string]interface{}{
		"id":               result.ID,
		"submission_id":    result.SubmissionID,
		"assessor_id":      result.AssessorID,
		"correction_round": result.CorrectionRound,
		"completion_date":  result.CompletionDate,
		"ctime":            result.Ctime,
		"mtime":            result.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("results", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if dbutil.IsUniqueViolation(err) {
		return appErr.ErrAlreadyLocked
	}
	return err
}

func (r *ResultRepo) GetByID(ctx context.Context, id string) (*model.Result, error) {
	return r.getOne(ctx, map[string]interface{}{"id": id})
}

func (r *ResultRepo) GetBySubmissionAndRound(ctx context.Context, submissionID string, round int) (*model.Result, error) {
	return r.getOne(ctx, map[string]interface{}{
		"submission_id":    submissionID,
		"correction_round": round,
	})
}

func (r *ResultRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.Result, error) {
	sqlStr, args, err := builder.BuildSelect("results", where, resultFields)
	if err != nil {
		return nil, err
	}
	var result model.Result
	if err := sqlx.GetContext(ctx, r.db, &result, sqlStr, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (r *ResultRepo) ListBySubmission(ctx context.Context, submissionID string) ([]model.Result, error) {
	sqlStr, args, err := builder.BuildSelect("results", map[string]interface{}{
		"submission_id": submissionID,
		"_orderby":      "correction_round asc",
	}, resultFields)
	if err != nil {
		return nil, err
	}
	results := make([]model.Result, 0)
	if err := sqlx.SelectContext(ctx, r.db, &results, sqlStr, args...); err != nil {
		return nil, err
	}
	return results, nil
}

// FindOpenBySubmission returns the uncompleted result of the submission, if
// any, preferring the lowest round.
func (r *ResultRepo) FindOpenBySubmission(ctx context.Context, submissionID string) (*model.Result, error) {
	results, err := r.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	for i := range results {
		if !results[i].Completed() {
			return &results[i], nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (r *ResultRepo) Complete(ctx context.Context, id string, completionDate, mtime int64) error {
	sqlStr, args, err := builder.BuildUpdate("results",
		map[string]interface{}{"id": id},
		map[string]interface{}{"completion_date": completionDate, "mtime": mtime})
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

func (r *ResultRepo) DeleteBySubmission(ctx context.Context, submissionID string) error {
	sqlStr, args, err := builder.BuildDelete("results", map[string]interface{}{"submission_id": submissionID})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ResultRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("results", map[string]interface{}{"id": id})
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
