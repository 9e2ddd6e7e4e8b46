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

type ConflictRepo struct {
	db dbutil.Ext
}

func NewConflictRepo(db dbutil.Ext) *ConflictRepo {
	return &ConflictRepo{db: db}
}

var conflictFields = []string{
	"id", "first_feedback_id", "second_feedback_id", "conflict", "discard",
	"created_at", "solved_at", "solved_by",
}

func (r *ConflictRepo) Create(ctx context.Context, conflict *model.FeedbackConflict) error {
	data := map[string]interface{}{
		"id":                 conflict.ID,
		"first_feedback_id":  conflict.FirstFeedbackID,
		"second_feedback_id": conflict.SecondFeedbackID,
		"conflict":           conflict.Conflict,
		"discard":            conflict.Discard,
		"created_at":         conflict.CreatedAt,
		"solved_at":          conflict.SolvedAt,
		"solved_by":          conflict.SolvedBy,
	}
	sqlStr, args, err := builder.BuildInsert("feedback_conflicts", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if dbutil.IsUniqueViolation(err) {
		return appErr.ErrConflict
	}
	return err
}

func (r *ConflictRepo) GetByID(ctx context.Context, id string) (*model.FeedbackConflict, error) {
	sqlStr, args, err := builder.BuildSelect("feedback_conflicts", map[string]interface{}{"id": id}, conflictFields)
	if err != nil {
		return nil, err
	}
	var conflict model.FeedbackConflict
	if err := sqlx.GetContext(ctx, r.db, &conflict, sqlStr, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &conflict, nil
}

// ListUnresolvedByFeedback returns the open conflicts the feedback takes
// part in, from either side.
func (r *ConflictRepo) ListUnresolvedByFeedback(ctx context.Context, feedbackID string) ([]model.FeedbackConflict, error) {
	conflicts := make([]model.FeedbackConflict, 0)
	err := sqlx.SelectContext(ctx, r.db, &conflicts, `
		SELECT id, first_feedback_id, second_feedback_id, conflict, discard, created_at, solved_at, solved_by
		FROM feedback_conflicts
		WHERE conflict = 1 AND (first_feedback_id = ? OR second_feedback_id = ?)
		ORDER BY created_at ASC, id ASC`,
		feedbackID, feedbackID)
	if err != nil {
		return nil, err
	}
	return conflicts, nil
}

// HasUnresolvedPair reports whether the two feedbacks already have an open
// conflict, in either order.
func (r *ConflictRepo) HasUnresolvedPair(ctx context.Context, firstID, secondID string) (bool, error) {
	var count int
	err := sqlx.GetContext(ctx, r.db, &count, `
		SELECT COUNT(1) FROM feedback_conflicts
		WHERE conflict = 1
		AND ((first_feedback_id = ? AND second_feedback_id = ?) OR (first_feedback_id = ? AND second_feedback_id = ?))`,
		firstID, secondID, secondID, firstID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListOpenByExercise returns all unresolved conflicts between feedbacks of
// the exercise's submissions.
func (r *ConflictRepo) ListOpenByExercise(ctx context.Context, exerciseID string) ([]model.FeedbackConflict, error) {
	conflicts := make([]model.FeedbackConflict, 0)
	err := sqlx.SelectContext(ctx, r.db, &conflicts, `
		SELECT c.id, c.first_feedback_id, c.second_feedback_id, c.conflict, c.discard, c.created_at, c.solved_at, c.solved_by
		FROM feedback_conflicts c
		JOIN feedbacks f ON f.id = c.first_feedback_id
		JOIN submissions s ON s.id = f.submission_id
		WHERE c.conflict = 1 AND s.exercise_id = ?
		ORDER BY c.created_at ASC, c.id ASC`,
		exerciseID)
	if err != nil {
		return nil, err
	}
	return conflicts, nil
}

// Solve marks the conflict as resolved. The guard on conflict = 1 makes a
// repeated resolve attempt report ErrAlreadySolved instead of succeeding
// silently.
func (r *ConflictRepo) Solve(ctx context.Context, id string, solvedAt int64, solvedBy string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE feedback_conflicts
		SET conflict = 0, discard = 1, solved_at = ?, solved_by = ?
		WHERE id = ? AND conflict = 1`,
		solvedAt, solvedBy, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return appErr.ErrAlreadySolved
	}
	return nil
}
