package service

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/lwald/semgrade/internal/clustercache"
	"github.com/lwald/semgrade/internal/model"
	appErr "github.com/lwald/semgrade/internal/pkg/errors"
	"github.com/lwald/semgrade/internal/repo"
)

// ClusterService serves cluster statistics and the per-cluster kill switch.
type ClusterService struct {
	clusters  *repo.TextClusterRepo
	feedbacks *repo.FeedbackRepo
	exercises *repo.ExerciseRepo
	cache     *clustercache.Reader
}

func NewClusterService(
	clusters *repo.TextClusterRepo,
	feedbacks *repo.FeedbackRepo,
	exercises *repo.ExerciseRepo,
	cache *clustercache.Reader,
) *ClusterService {
	return &ClusterService{
		clusters:  clusters,
		feedbacks: feedbacks,
		exercises: exercises,
		cache:     cache,
	}
}

// Statistics reports, per cluster, its size and how many automatic feedbacks
// its members have produced. Disabled clusters stay in the listing so
// instructors can re-enable them, but report zero since they no longer
// generate anything.
func (s *ClusterService) Statistics(ctx context.Context, user model.User, exerciseID string) ([]model.ClusterStatistics, error) {
	if !user.CanAssess() {
		return nil, appErr.ErrForbidden
	}
	if _, err := s.exercises.GetByID(ctx, exerciseID); err != nil {
		return nil, err
	}
	clusters, err := s.clusters.ListByExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	stats := make([]model.ClusterStatistics, 0, len(clusters))
	for _, cluster := range clusters {
		entry := model.ClusterStatistics{
			ClusterID:   cluster.ID,
			ClusterSize: cluster.Size(),
			Disabled:    cluster.Disabled,
		}
		if !cluster.Disabled {
			count, err := s.feedbacks.CountAutomaticByReferences(ctx, cluster.BlockIDs)
			if err != nil {
				return nil, err
			}
			entry.NumberOfAutomaticFeedbacks = count
		}
		stats = append(stats, entry)
	}
	return stats, nil
}

// SetDisabled flips a cluster's suggestion switch. Instructor only; existing
// suggestions are untouched, the cluster just stops producing new ones.
func (s *ClusterService) SetDisabled(ctx context.Context, user model.User, clusterID string, disabled bool) error {
	if !user.IsInstructor() {
		return appErr.ErrForbidden
	}
	if err := s.clusters.SetDisabled(ctx, clusterID, disabled); err != nil {
		return err
	}
	s.cache.Invalidate(clusterID)
	logutil.GetLogger(ctx).Info("cluster disabled flag changed",
		zap.String("cluster_id", clusterID), zap.Bool("disabled", disabled))
	return nil
}
