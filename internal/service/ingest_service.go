package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/lwald/semgrade/internal/clustercache"
	"github.com/lwald/semgrade/internal/filestore"
	"github.com/lwald/semgrade/internal/model"
	appErr "github.com/lwald/semgrade/internal/pkg/errors"
	"github.com/lwald/semgrade/internal/pkg/timeutil"
	"github.com/lwald/semgrade/internal/repo"
	"github.com/lwald/semgrade/internal/segmentation"
)

// IngestService turns clustering batches from the segmentation side into
// persistent blocks and clusters. A batch is accepted or rejected as a whole;
// a rejected batch leaves the store untouched.
type IngestService struct {
	db           *sqlx.DB
	exercises    *repo.ExerciseRepo
	submissions  *repo.SubmissionRepo
	ingestRuns   *repo.IngestRunRepo
	store        filestore.Store
	cache        *clustercache.Reader
	segmentation segmentation.Client
}

func NewIngestService(
	db *sqlx.DB,
	exercises *repo.ExerciseRepo,
	submissions *repo.SubmissionRepo,
	ingestRuns *repo.IngestRunRepo,
	store filestore.Store,
	cache *clustercache.Reader,
	segClient segmentation.Client,
) *IngestService {
	return &IngestService{
		db:           db,
		exercises:    exercises,
		submissions:  submissions,
		ingestRuns:   ingestRuns,
		store:        store,
		cache:        cache,
		segmentation: segClient,
	}
}

// IngestBatch validates and applies one clustering batch for an exercise.
// Existing clusters of the exercise are replaced wholesale; the disabled flag
// of a cluster that reappears with identical membership survives because the
// cluster id is content-derived.
func (s *IngestService) IngestBatch(ctx context.Context, exerciseID string, batch *model.ClusterBatch) (*model.IngestRun, error) {
	exercise, err := s.exercises.GetByID(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	if !model.SupportsAutomaticAssessment(exercise.AssessmentType) {
		return nil, fmt.Errorf("%w: exercise %s does not support automatic assessment", appErr.ErrInvalid, exerciseID)
	}

	blocks, clusters, err := s.prepare(ctx, exerciseID, batch)
	if err != nil {
		s.recordRun(ctx, exerciseID, batch, model.IngestRunStatusRejected, err.Error(), "")
		logutil.GetLogger(ctx).Warn("clustering batch rejected",
			zap.String("exercise_id", exerciseID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", appErr.ErrInvalid, err)
	}

	if err := s.apply(ctx, exerciseID, blocks, clusters); err != nil {
		return nil, err
	}
	s.cache.Purge()

	archiveKey := s.archive(ctx, exerciseID, batch)
	run := s.recordRun(ctx, exerciseID, batch, model.IngestRunStatusOK, "", archiveKey)
	logutil.GetLogger(ctx).Info("clustering batch applied",
		zap.String("exercise_id", exerciseID),
		zap.Int("segments", len(batch.Segments)),
		zap.Int("clusters", len(batch.Clusters)))
	return run, nil
}

// TriggerClustering sends the exercise's submitted texts to the segmentation
// service and ingests the returned batch.
func (s *IngestService) TriggerClustering(ctx context.Context, user model.User, exerciseID string) (*model.IngestRun, error) {
	if !user.IsInstructor() {
		return nil, appErr.ErrForbidden
	}
	if s.segmentation == nil {
		return nil, fmt.Errorf("%w: no segmentation endpoint configured", appErr.ErrInvalid)
	}
	submissions, err := s.submissions.ListSubmittedByExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	if len(submissions) == 0 {
		return nil, fmt.Errorf("%w: exercise %s has no submitted submissions", appErr.ErrInvalid, exerciseID)
	}
	req := &segmentation.ClusterRequest{ExerciseID: exerciseID}
	for _, sub := range submissions {
		req.Submissions = append(req.Submissions, segmentation.SubmissionText{ID: sub.ID, Text: sub.Text})
	}
	batch, err := s.segmentation.Cluster(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.IngestBatch(ctx, exerciseID, batch)
}

func (s *IngestService) ListRuns(ctx context.Context, exerciseID string) ([]model.IngestRun, error) {
	return s.ingestRuns.ListByExercise(ctx, exerciseID)
}

// prepare validates the whole batch and resolves upstream segment ids into
// content-derived block ids. Any defect rejects the batch.
func (s *IngestService) prepare(ctx context.Context, exerciseID string, batch *model.ClusterBatch) ([]*model.TextBlock, []*model.TextCluster, error) {
	if len(batch.Segments) == 0 {
		return nil, nil, fmt.Errorf("batch has no segments")
	}
	submissionIDs := make([]string, 0, len(batch.Segments))
	seen := make(map[string]struct{})
	for _, seg := range batch.Segments {
		if _, ok := seen[seg.SubmissionID]; !ok {
			seen[seg.SubmissionID] = struct{}{}
			submissionIDs = append(submissionIDs, seg.SubmissionID)
		}
	}
	submissions, err := s.submissions.ListByIDs(ctx, submissionIDs)
	if err != nil {
		return nil, nil, err
	}
	submissionByID := make(map[string]*model.Submission, len(submissions))
	for i := range submissions {
		submissionByID[submissions[i].ID] = &submissions[i]
	}

	now := timeutil.NowUnix()
	blocks := make([]*model.TextBlock, 0, len(batch.Segments))
	blockBySegment := make(map[string]*model.TextBlock, len(batch.Segments))
	for _, seg := range batch.Segments {
		sub, ok := submissionByID[seg.SubmissionID]
		if !ok {
			return nil, nil, fmt.Errorf("segment %s references unknown submission %s", seg.ID, seg.SubmissionID)
		}
		if sub.ExerciseID != exerciseID {
			return nil, nil, fmt.Errorf("segment %s references submission of another exercise", seg.ID)
		}
		if seg.StartIndex < 0 || seg.EndIndex <= seg.StartIndex || seg.EndIndex > len(sub.Text) {
			return nil, nil, fmt.Errorf("segment %s has span [%d,%d) outside submission text of length %d",
				seg.ID, seg.StartIndex, seg.EndIndex, len(sub.Text))
		}
		if _, dup := blockBySegment[seg.ID]; dup {
			return nil, nil, fmt.Errorf("duplicate segment id %s", seg.ID)
		}
		block := &model.TextBlock{
			ID:           model.ComputeTextBlockID(seg.SubmissionID, seg.StartIndex, seg.EndIndex),
			SubmissionID: seg.SubmissionID,
			StartIndex:   seg.StartIndex,
			EndIndex:     seg.EndIndex,
			Text:         seg.Text,
			Type:         model.TextBlockTypeAutomatic,
			Ctime:        now,
			Mtime:        now,
		}
		blockBySegment[seg.ID] = block
		blocks = append(blocks, block)
	}

	prepared := make([]*model.TextCluster, 0, len(batch.Clusters))
	for i, bc := range batch.Clusters {
		if len(bc.MemberSegmentIDs) < 2 {
			return nil, nil, fmt.Errorf("cluster %d has %d members, want at least 2", i, len(bc.MemberSegmentIDs))
		}
		memberOf := make([]string, 0, len(bc.MemberSegmentIDs))
		memberSeen := make(map[string]struct{}, len(bc.MemberSegmentIDs))
		for _, segID := range bc.MemberSegmentIDs {
			block, ok := blockBySegment[segID]
			if !ok {
				return nil, nil, fmt.Errorf("cluster %d references unknown segment %s", i, segID)
			}
			if _, dup := memberSeen[segID]; dup {
				return nil, nil, fmt.Errorf("cluster %d lists segment %s twice", i, segID)
			}
			memberSeen[segID] = struct{}{}
			memberOf = append(memberOf, block.ID)
		}
		cluster := &model.TextCluster{
			ID:         model.ComputeTextClusterID(exerciseID, memberOf),
			ExerciseID: exerciseID,
			BlockIDs:   memberOf,
			Matrix:     bc.DistanceMatrix,
			Ctime:      now,
		}
		if err := cluster.Validate(); err != nil {
			return nil, nil, fmt.Errorf("cluster %d: %v", i, err)
		}
		prepared = append(prepared, cluster)
	}
	return blocks, prepared, nil
}

// apply writes the batch in one transaction: blocks upserted, the exercise's
// previous clusters dropped and their blocks detached, new clusters stored
// and member metrics assigned.
func (s *IngestService) apply(ctx context.Context, exerciseID string, blocks []*model.TextBlock, clusters []*model.TextCluster) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	blockRepo := repo.NewTextBlockRepo(tx)
	clusterRepo := repo.NewTextClusterRepo(tx)
	now := timeutil.NowUnix()

	disabledBefore, err := clusterRepo.DisabledByExercise(ctx, exerciseID)
	if err != nil {
		return err
	}

	for _, block := range blocks {
		if err := blockRepo.UpsertFromIngest(ctx, block); err != nil {
			return err
		}
	}

	oldIDs, err := clusterRepo.DeleteByExercise(ctx, exerciseID)
	if err != nil {
		return err
	}
	if err := blockRepo.ClearClusterAssignments(ctx, oldIDs, now); err != nil {
		return err
	}

	for _, cluster := range clusters {
		cluster.Disabled = disabledBefore[cluster.ID]
		if err := clusterRepo.Upsert(ctx, cluster); err != nil {
			return err
		}
		if err := assignClusterMembers(ctx, blockRepo, cluster, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// assignClusterMembers writes each member's cluster metrics: position ranked
// by mean distance (most central first), added distance, and the count of
// other submissions touched by the cluster.
func assignClusterMembers(ctx context.Context, blockRepo *repo.TextBlockRepo, cluster *model.TextCluster, now int64) error {
	type ranked struct {
		blockID string
		mean    float64
	}
	members := make([]ranked, 0, len(cluster.BlockIDs))
	for _, id := range cluster.BlockIDs {
		mean, _ := cluster.MeanDistance(id)
		members = append(members, ranked{blockID: id, mean: mean})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].mean != members[j].mean {
			return members[i].mean < members[j].mean
		}
		return members[i].blockID < members[j].blockID
	})

	submissionsOf := make(map[string]string, len(cluster.BlockIDs))
	blockRows, err := blockRepo.ListByIDs(ctx, cluster.BlockIDs)
	if err != nil {
		return err
	}
	for _, row := range blockRows {
		submissionsOf[row.ID] = row.SubmissionID
	}

	for position, member := range members {
		added, _ := cluster.AddedDistance(member.blockID)
		affected := countOtherSubmissions(submissionsOf, member.blockID)
		if err := blockRepo.AssignCluster(ctx, member.blockID, cluster.ID, position, added, affected, now); err != nil {
			return err
		}
	}
	return nil
}

func countOtherSubmissions(submissionsOf map[string]string, blockID string) int {
	own := submissionsOf[blockID]
	distinct := make(map[string]struct{})
	for id, sub := range submissionsOf {
		if id != blockID && sub != own {
			distinct[sub] = struct{}{}
		}
	}
	return len(distinct)
}

func (s *IngestService) archive(ctx context.Context, exerciseID string, batch *model.ClusterBatch) string {
	if s.store == nil {
		return ""
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return ""
	}
	key := fmt.Sprintf("clustering/%s/%d.json", exerciseID, timeutil.NowUnix())
	if err := s.store.Save(ctx, key, bytes.NewReader(data)); err != nil {
		logutil.GetLogger(ctx).Warn("archive clustering batch failed",
			zap.String("exercise_id", exerciseID), zap.Error(err))
		return ""
	}
	return key
}

func (s *IngestService) recordRun(ctx context.Context, exerciseID string, batch *model.ClusterBatch, status, errMsg, archiveKey string) *model.IngestRun {
	run := &model.IngestRun{
		ID:           uuid.NewString(),
		ExerciseID:   exerciseID,
		Status:       status,
		SegmentCount: len(batch.Segments),
		ClusterCount: len(batch.Clusters),
		Error:        errMsg,
		ArchiveKey:   archiveKey,
		Ctime:        timeutil.NowUnix(),
	}
	if err := s.ingestRuns.Create(ctx, run); err != nil {
		logutil.GetLogger(ctx).Error("record ingest run failed",
			zap.String("exercise_id", exerciseID), zap.Error(err))
	}
	return run
}
