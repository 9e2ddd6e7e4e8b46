package repo

import (
	"context"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/lwald/semgrade/internal/model"
	"github.com/lwald/semgrade/internal/pkg/dbutil"
)

type IngestRunRepo struct {
	db dbutil.Ext
}

func NewIngestRunRepo(db dbutil.Ext) *IngestRunRepo {
	return &IngestRunRepo{db: db}
}

func (r *IngestRunRepo) Create(ctx context.Context, run *model.IngestRun) error {
	data := map[string]interface{}{
		"id":            run.ID,
		"exercise_id":   run.ExerciseID,
		"status":        run.Status,
		"segment_count": run.SegmentCount,
		"cluster_count": run.ClusterCount,
		"error":         run.Error,
		"archive_key":   run.ArchiveKey,
		"ctime":         run.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("ingest_runs", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *IngestRunRepo) ListByExercise(ctx context.Context, exerciseID string) ([]model.IngestRun, error) {
	sqlStr, args, err := builder.BuildSelect("ingest_runs", map[string]interface{}{
		"exercise_id": exerciseID,
		"_orderby":    "ctime desc",
	}, []string{"id", "exercise_id", "status", "segment_count", "cluster_count", "error", "archive_key", "ctime"})
	if err != nil {
		return nil, err
	}
	runs := make([]model.IngestRun, 0)
	if err := sqlx.SelectContext(ctx, r.db, &runs, sqlStr, args...); err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *IngestRunRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM ingest_runs WHERE ctime < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
