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

type ExerciseRepo struct {
	db dbutil.Ext
}

func NewExerciseRepo(db dbutil.Ext) *ExerciseRepo {
	return &ExerciseRepo{db: db}
}

func (r *ExerciseRepo) Create(ctx context.Context, exercise *model.Exercise) error {
	data := map[string]interface{}{
		"id":              exercise.ID,
		"title":           exercise.Title,
		"assessment_type": exercise.AssessmentType,
		"max_points":      exercise.MaxPoints,
		"ctime":           exercise.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("exercises", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if dbutil.IsUniqueViolation(err) {
		return appErr.ErrConflict
	}
	return err
}

func (r *ExerciseRepo) GetByID(ctx context.Context, id string) (*model.Exercise, error) {
	sqlStr, args, err := builder.BuildSelect("exercises", map[string]interface{}{"id": id},
		[]string{"id", "title", "assessment_type", "max_points", "ctime"})
	if err != nil {
		return nil, err
	}
	var exercise model.Exercise
	if err := sqlx.GetContext(ctx, r.db, &exercise, sqlStr, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &exercise, nil
}
