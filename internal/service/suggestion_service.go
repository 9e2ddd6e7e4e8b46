package service

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/lwald/semgrade/internal/clustercache"
	"github.com/lwald/semgrade/internal/model"
	appErr "github.com/lwald/semgrade/internal/pkg/errors"
	"github.com/lwald/semgrade/internal/pkg/timeutil"
	"github.com/lwald/semgrade/internal/repo"
)

// SuggestionService propagates an assessor's referenced feedback to the most
// similar unassessed block in the same cluster, carrying provenance so the
// receiving tutor can see where the suggestion came from.
type SuggestionService struct {
	blocks      *repo.TextBlockRepo
	feedbacks   *repo.FeedbackRepo
	submissions *repo.SubmissionRepo
	results     *repo.ResultRepo
	clusters    *clustercache.Reader

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSuggestionService(
	blocks *repo.TextBlockRepo,
	feedbacks *repo.FeedbackRepo,
	submissions *repo.SubmissionRepo,
	results *repo.ResultRepo,
	clusters *clustercache.Reader,
) *SuggestionService {
	return &SuggestionService{
		blocks:      blocks,
		feedbacks:   feedbacks,
		submissions: submissions,
		results:     results,
		clusters:    clusters,
		locks:       make(map[string]*sync.Mutex),
	}
}

// clusterLock serializes suggestion generation per cluster so two concurrent
// submits cannot suggest onto the same block twice.
func (s *SuggestionService) clusterLock(clusterID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[clusterID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[clusterID] = lock
	}
	return lock
}

// Propagate creates at most one automatic feedback from the given manual
// feedback: onto the nearest cluster-mate that belongs to another submission
// and has no feedback yet. Blocks outside any cluster, disabled clusters, and
// fully covered clusters are all quiet no-ops.
func (s *SuggestionService) Propagate(ctx context.Context, origin model.Feedback) error {
	if !origin.IsManualReferenced() {
		return nil
	}
	block, err := s.blocks.GetByID(ctx, *origin.Reference)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil
		}
		return err
	}
	if block.ClusterID == nil {
		return nil
	}
	cluster, err := s.clusters.Get(ctx, *block.ClusterID)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil
		}
		return err
	}
	if cluster.Disabled {
		return nil
	}

	lock := s.clusterLock(cluster.ID)
	lock.Lock()
	defer lock.Unlock()

	target, err := s.pickTarget(ctx, cluster, block)
	if err != nil || target == nil {
		return err
	}

	originSubmission, err := s.submissions.GetByID(ctx, origin.SubmissionID)
	if err != nil {
		return err
	}

	suggestion := &model.Feedback{
		ID:                    uuid.NewString(),
		SubmissionID:          target.SubmissionID,
		Reference:             &target.ID,
		Credits:               origin.Credits,
		DetailText:            origin.DetailText,
		Type:                  model.FeedbackTypeAutomatic,
		OriginFeedbackRef:     origin.Reference,
		OriginSubmissionID:    &originSubmission.ID,
		OriginParticipationID: &originSubmission.ParticipationID,
		Ctime:                 timeutil.NowUnix(),
	}
	// An in-flight assessment of the target submission sees the suggestion
	// immediately; otherwise it waits unattached for the next lock.
	if open, err := s.results.FindOpenBySubmission(ctx, target.SubmissionID); err == nil {
		suggestion.ResultID = &open.ID
	} else if !appErr.IsNotFound(err) {
		return err
	}

	if err := s.feedbacks.Create(ctx, suggestion); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("feedback suggestion created",
		zap.String("cluster_id", cluster.ID),
		zap.String("origin_block", *origin.Reference),
		zap.String("target_block", target.ID),
		zap.String("target_submission", target.SubmissionID))
	return nil
}

// pickTarget returns the cluster-mate closest to the origin block that sits
// on a different submission and carries no feedback, ties broken by block id.
func (s *SuggestionService) pickTarget(ctx context.Context, cluster *model.TextCluster, origin *model.TextBlock) (*model.TextBlock, error) {
	type candidate struct {
		blockID  string
		distance float64
	}
	candidates := make([]candidate, 0, cluster.Size())
	for _, memberID := range cluster.BlockIDs {
		if memberID == origin.ID {
			continue
		}
		distance, ok := cluster.Distance(origin.ID, memberID)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{blockID: memberID, distance: distance})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].blockID < candidates[j].blockID
	})

	for _, cand := range candidates {
		member, err := s.blocks.GetByID(ctx, cand.blockID)
		if err != nil {
			if appErr.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if member.SubmissionID == origin.SubmissionID {
			continue
		}
		assessed, err := s.feedbacks.ExistsByReference(ctx, member.ID)
		if err != nil {
			return nil, err
		}
		if assessed {
			continue
		}
		return member, nil
	}
	return nil, nil
}
