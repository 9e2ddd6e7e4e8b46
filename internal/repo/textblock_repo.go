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

type TextBlockRepo struct {
	db dbutil.Ext
}

func NewTextBlockRepo(db dbutil.Ext) *TextBlockRepo {
	return &TextBlockRepo{db: db}
}

var textBlockFields = []string{
	"id", "submission_id", "start_index", "end_index", "text", "type",
	"cluster_id", "position_in_cluster", "added_distance", "affected_submissions",
	"ctime", "mtime",
}

// UpsertFromIngest writes a block produced by clustering ingestion. An
// existing id is updated in place (text, boundaries, type), which is what
// makes re-ingestion idempotent; cluster assignment is written separately
// once cluster membership is known.
func (r *TextBlockRepo) UpsertFromIngest(ctx context.Context, block *model.TextBlock) error {
	existing, err := r.GetByID(ctx, block.ID)
	if err != nil && !appErr.IsNotFound(err) {
		return err
	}
	if existing == nil {
		return r.insert(ctx, block)
	}
	sqlStr, args, err := builder.BuildUpdate("text_blocks",
		map[string]interface{}{"id": block.ID},
		map[string]interface{}{
			"start_index": block.StartIndex,
			"end_index":   block.EndIndex,
			"text":        block.Text,
			"type":        block.Type,
			"mtime":       block.Mtime,
		})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// UpsertManual writes a tutor-provided block along a feedback save. It never
// touches cluster_id/position_in_cluster of an existing id, so a block
// round-tripped through the client cannot lose its clustering metadata.
func (r *TextBlockRepo) UpsertManual(ctx context.Context, block *model.TextBlock) error {
	existing, err := r.GetByID(ctx, block.ID)
	if err != nil && !appErr.IsNotFound(err) {
		return err
	}
	if existing == nil {
		return r.insert(ctx, block)
	}
	sqlStr, args, err := builder.BuildUpdate("text_blocks",
		map[string]interface{}{"id": block.ID},
		map[string]interface{}{
			"text":  block.Text,
			"mtime": block.Mtime,
		})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *TextBlockRepo) insert(ctx context.Context, block *model.TextBlock) error {
	data := map[string]interface{}{
		"id":                   block.ID,
		"submission_id":        block.SubmissionID,
		"start_index":          block.StartIndex,
		"end_index":            block.EndIndex,
		"text":                 block.Text,
		"type":                 block.Type,
		"cluster_id":           block.ClusterID,
		"position_in_cluster":  block.PositionInCluster,
		"added_distance":       block.AddedDistance,
		"affected_submissions": block.NumberOfAffectedSubmissions,
		"ctime":                block.Ctime,
		"mtime":                block.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("text_blocks", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if dbutil.IsUniqueViolation(err) {
		return appErr.ErrConflict
	}
	return err
}

// AssignCluster records a block's cluster membership and the metrics
// computed from the cluster's distance matrix.
func (r *TextBlockRepo) AssignCluster(ctx context.Context, blockID, clusterID string, position int, addedDistance float64, affectedSubmissions int, mtime int64) error {
	sqlStr, args, err := builder.BuildUpdate("text_blocks",
		map[string]interface{}{"id": blockID},
		map[string]interface{}{
			"cluster_id":           clusterID,
			"position_in_cluster":  position,
			"added_distance":       addedDistance,
			"affected_submissions": affectedSubmissions,
			"mtime":                mtime,
		})
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

// ClearClusterAssignments detaches all blocks of the given clusters, used
// when an ingestion run replaces an exercise's clusters wholesale.
func (r *TextBlockRepo) ClearClusterAssignments(ctx context.Context, clusterIDs []string, mtime int64) error {
	if len(clusterIDs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(clusterIDs))
	for _, id := range clusterIDs {
		values = append(values, id)
	}
	sqlStr, args, err := builder.BuildUpdate("text_blocks",
		map[string]interface{}{"cluster_id in": values},
		map[string]interface{}{
			"cluster_id":           nil,
			"position_in_cluster":  nil,
			"added_distance":       nil,
			"affected_submissions": 0,
			"mtime":                mtime,
		})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *TextBlockRepo) GetByID(ctx context.Context, id string) (*model.TextBlock, error) {
	sqlStr, args, err := builder.BuildSelect("text_blocks", map[string]interface{}{"id": id}, textBlockFields)
	if err != nil {
		return nil, err
	}
	var block model.TextBlock
	if err := sqlx.GetContext(ctx, r.db, &block, sqlStr, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &block, nil
}

func (r *TextBlockRepo) ListByIDs(ctx context.Context, ids []string) ([]model.TextBlock, error) {
	if len(ids) == 0 {
		return []model.TextBlock{}, nil
	}
	values := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		values = append(values, id)
	}
	sqlStr, args, err := builder.BuildSelect("text_blocks", map[string]interface{}{
		"id in": values,
	}, textBlockFields)
	if err != nil {
		return nil, err
	}
	blocks := make([]model.TextBlock, 0)
	if err := sqlx.SelectContext(ctx, r.db, &blocks, sqlStr, args...); err != nil {
		return nil, err
	}
	return blocks, nil
}

// ListBySubmission returns the submission's blocks ordered by start index;
// both fetch paths rely on this ordering being stable across calls.
func (r *TextBlockRepo) ListBySubmission(ctx context.Context, submissionID string) ([]model.TextBlock, error) {
	sqlStr, args, err := builder.BuildSelect("text_blocks", map[string]interface{}{
		"submission_id": submissionID,
		"_orderby":      "start_index asc",
	}, textBlockFields)
	if err != nil {
		return nil, err
	}
	blocks := make([]model.TextBlock, 0)
	if err := sqlx.SelectContext(ctx, r.db, &blocks, sqlStr, args...); err != nil {
		return nil, err
	}
	return blocks, nil
}

func (r *TextBlockRepo) DeleteBySubmission(ctx context.Context, submissionID string) error {
	sqlStr, args, err := builder.BuildDelete("text_blocks", map[string]interface{}{"submission_id": submissionID})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
