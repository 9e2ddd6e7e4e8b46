package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/lwald/semgrade/internal/model"
	"github.com/lwald/semgrade/internal/pkg/dbutil"
	appErr "github.com/lwald/semgrade/internal/pkg/errors"
)

type TextClusterRepo struct {
	db dbutil.Ext
}

func NewTextClusterRepo(db dbutil.Ext) *TextClusterRepo {
	return &TextClusterRepo{db: db}
}

var textClusterFields = []string{"id", "exercise_id", "block_ids", "distance_matrix", "disabled", "ctime"}

type textClusterRow struct {
	ID             string `db:"id"`
	ExerciseID     string `db:"exercise_id"`
	BlockIDs       string `db:"block_ids"`
	DistanceMatrix string `db:"distance_matrix"`
	Disabled       bool   `db:"disabled"`
	Ctime          int64  `db:"ctime"`
}

func (row *textClusterRow) toModel() (*model.TextCluster, error) {
	cluster := &model.TextCluster{
		ID:         row.ID,
		ExerciseID: row.ExerciseID,
		Disabled:   row.Disabled,
		Ctime:      row.Ctime,
	}
	if err := json.Unmarshal([]byte(row.BlockIDs), &cluster.BlockIDs); err != nil {
		return nil, fmt.Errorf("decode cluster %s block ids: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.DistanceMatrix), &cluster.Matrix); err != nil {
		return nil, fmt.Errorf("decode cluster %s matrix: %w", row.ID, err)
	}
	return cluster, nil
}

// Upsert persists a cluster, validating the member/matrix invariant before
// any write so a desynchronized cluster can never reach the store.
func (r *TextClusterRepo) Upsert(ctx context.Context, cluster *model.TextCluster) error {
	if err := cluster.Validate(); err != nil {
		return fmt.Errorf("%w: %v", appErr.ErrInvalid, err)
	}
	blockIDs, err := json.Marshal(cluster.BlockIDs)
	if err != nil {
		return err
	}
	matrix, err := json.Marshal(cluster.Matrix)
	if err != nil {
		return err
	}
	existing, err := r.GetByID(ctx, cluster.ID)
	if err != nil && !appErr.IsNotFound(err) {
		return err
	}
	if existing == nil {
		data := map[string]interface{}{
			"id":              cluster.ID,
			"exercise_id":     cluster.ExerciseID,
			"block_ids":       string(blockIDs),
			"distance_matrix": string(matrix),
			"disabled":        cluster.Disabled,
			"ctime":           cluster.Ctime,
		}
		sqlStr, args, err := builder.BuildInsert("text_clusters", []map[string]interface{}{data})
		if err != nil {
			return err
		}
		_, err = r.db.ExecContext(ctx, sqlStr, args...)
		if dbutil.IsUniqueViolation(err) {
			return appErr.ErrConflict
		}
		return err
	}
	sqlStr, args, err := builder.BuildUpdate("text_clusters",
		map[string]interface{}{"id": cluster.ID},
		map[string]interface{}{
			"exercise_id":     cluster.ExerciseID,
			"block_ids":       string(blockIDs),
			"distance_matrix": string(matrix),
			"disabled":        cluster.Disabled,
		})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *TextClusterRepo) GetByID(ctx context.Context, id string) (*model.TextCluster, error) {
	sqlStr, args, err := builder.BuildSelect("text_clusters", map[string]interface{}{"id": id}, textClusterFields)
	if err != nil {
		return nil, err
	}
	var row textClusterRow
	if err := sqlx.GetContext(ctx, r.db, &row, sqlStr, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return row.toModel()
}

func (r *TextClusterRepo) ListByExercise(ctx context.Context, exerciseID string) ([]*model.TextCluster, error) {
	sqlStr, args, err := builder.BuildSelect("text_clusters", map[string]interface{}{
		"exercise_id": exerciseID,
		"_orderby":    "ctime asc, id asc",
	}, textClusterFields)
	if err != nil {
		return nil, err
	}
	rows := make([]textClusterRow, 0)
	if err := sqlx.SelectContext(ctx, r.db, &rows, sqlStr, args...); err != nil {
		return nil, err
	}
	clusters := make([]*model.TextCluster, 0, len(rows))
	for i := range rows {
		cluster, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, cluster)
	}
	return clusters, nil
}

func (r *TextClusterRepo) DeleteByExercise(ctx context.Context, exerciseID string) ([]string, error) {
	clusters, err := r.ListByExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	if len(clusters) == 0 {
		return []string{}, nil
	}
	ids := make([]string, 0, len(clusters))
	for _, cluster := range clusters {
		ids = append(ids, cluster.ID)
	}
	sqlStr, args, err := builder.BuildDelete("text_clusters", map[string]interface{}{"exercise_id": exerciseID})
	if err != nil {
		return nil, err
	}
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *TextClusterRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("text_clusters", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *TextClusterRepo) SetDisabled(ctx context.Context, id string, disabled bool) error {
	sqlStr, args, err := builder.BuildUpdate("text_clusters",
		map[string]interface{}{"id": id},
		map[string]interface{}{"disabled": disabled})
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

// DisabledByExercise returns cluster id -> disabled for all of an exercise's
// clusters, consulted by ingestion to carry the flag across a re-ingest.
func (r *TextClusterRepo) DisabledByExercise(ctx context.Context, exerciseID string) (map[string]bool, error) {
	clusters, err := r.ListByExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	disabled := make(map[string]bool, len(clusters))
	for _, cluster := range clusters {
		disabled[cluster.ID] = cluster.Disabled
	}
	return disabled, nil
}
