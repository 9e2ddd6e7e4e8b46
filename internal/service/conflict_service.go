package service

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/lwald/semgrade/internal/clustercache"
	"github.com/lwald/semgrade/internal/model"
	appErr "github.com/lwald/semgrade/internal/pkg/errors"
	"github.com/lwald/semgrade/internal/pkg/timeutil"
	"github.com/lwald/semgrade/internal/repo"
)

// ConflictService flags pairs of manual feedback that score semantically
// equivalent blocks inconsistently, and lets tutors resolve those flags.
type ConflictService struct {
	feedbacks       *repo.FeedbackRepo
	blocks          *repo.TextBlockRepo
	conflicts       *repo.ConflictRepo
	exercises       *repo.ExerciseRepo
	submissions     *repo.SubmissionRepo
	clusters        *clustercache.Reader
	creditThreshold float64
}

func NewConflictService(
	feedbacks *repo.FeedbackRepo,
	blocks *repo.TextBlockRepo,
	conflicts *repo.ConflictRepo,
	exercises *repo.ExerciseRepo,
	submissions *repo.SubmissionRepo,
	clusters *clustercache.Reader,
	creditThreshold float64,
) *ConflictService {
	return &ConflictService{
		feedbacks:       feedbacks,
		blocks:          blocks,
		conflicts:       conflicts,
		exercises:       exercises,
		submissions:     submissions,
		clusters:        clusters,
		creditThreshold: creditThreshold,
	}
}

// inconsistent reports whether two credit values disagree enough to flag:
// opposite signs, or a gap reaching the configured threshold.
func (s *ConflictService) inconsistent(a, b float64) bool {
	if (a > 0 && b < 0) || (a < 0 && b > 0) {
		return true
	}
	return math.Abs(a-b) >= s.creditThreshold
}

// Detect compares the given manual feedback against every other assessor's
// manual feedback on the same cluster and records a conflict per inconsistent
// pair. An existing open conflict for a pair is never duplicated.
func (s *ConflictService) Detect(ctx context.Context, feedback model.Feedback, assessorID string) error {
	if !feedback.IsManualReferenced() {
		return nil
	}
	block, err := s.blocks.GetByID(ctx, *feedback.Reference)
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

	otherIDs := make([]string, 0, cluster.Size())
	for _, memberID := range cluster.BlockIDs {
		if memberID != block.ID {
			otherIDs = append(otherIDs, memberID)
		}
	}
	others, err := s.feedbacks.ListManualByReferences(ctx, otherIDs)
	if err != nil {
		return err
	}

	for _, other := range others {
		if other.AssessorID == assessorID || other.ID == feedback.ID {
			continue
		}
		if !s.inconsistent(feedback.Credits, other.Credits) {
			continue
		}
		exists, err := s.conflicts.HasUnresolvedPair(ctx, feedback.ID, other.ID)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		conflict := &model.FeedbackConflict{
			ID:               uuid.NewString(),
			FirstFeedbackID:  feedback.ID,
			SecondFeedbackID: other.ID,
			Conflict:         true,
			CreatedAt:        timeutil.NowUnix(),
		}
		if err := s.conflicts.Create(ctx, conflict); err != nil {
			return err
		}
		logutil.GetLogger(ctx).Info("feedback conflict detected",
			zap.String("cluster_id", cluster.ID),
			zap.String("first_feedback", feedback.ID),
			zap.String("second_feedback", other.ID),
			zap.Float64("first_credits", feedback.Credits),
			zap.Float64("second_credits", other.Credits))
	}
	return nil
}

// ConflictDetail is one open conflict expanded with both feedbacks and their
// submissions, enough for a tutor to review the disagreement.
type ConflictDetail struct {
	Conflict         model.FeedbackConflict `json:"conflict"`
	FirstFeedback    model.Feedback         `json:"first_feedback"`
	SecondFeedback   model.Feedback         `json:"second_feedback"`
	FirstSubmission  string                 `json:"first_submission_id"`
	SecondSubmission string                 `json:"second_submission_id"`
}

// ListOpenConflicts returns the exercise's unresolved conflicts. Exercises
// without automatic assessment cannot have conflicts; asking for them is an
// error rather than an empty list.
func (s *ConflictService) ListOpenConflicts(ctx context.Context, user model.User, exerciseID string) ([]ConflictDetail, error) {
	if !user.CanAssess() {
		return nil, appErr.ErrForbidden
	}
	exercise, err := s.exercises.GetByID(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	if !model.SupportsAutomaticAssessment(exercise.AssessmentType) {
		return nil, fmt.Errorf("%w: exercise %s does not support automatic assessment", appErr.ErrInvalid, exerciseID)
	}
	conflicts, err := s.conflicts.ListOpenByExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	details := make([]ConflictDetail, 0, len(conflicts))
	for _, conflict := range conflicts {
		first, err := s.feedbacks.GetByID(ctx, conflict.FirstFeedbackID)
		if err != nil {
			return nil, err
		}
		second, err := s.feedbacks.GetByID(ctx, conflict.SecondFeedbackID)
		if err != nil {
			return nil, err
		}
		details = append(details, ConflictDetail{
			Conflict:         conflict,
			FirstFeedback:    *first,
			SecondFeedback:   *second,
			FirstSubmission:  first.SubmissionID,
			SecondSubmission: second.SubmissionID,
		})
	}
	return details, nil
}

// ConflictingSubmissions returns the submissions on the other side of the
// feedback's unresolved conflicts, so a tutor can review the disagreeing
// assessments side by side. Only meaningful on exercises with automatic
// assessment; asking elsewhere is a validation error.
func (s *ConflictService) ConflictingSubmissions(ctx context.Context, user model.User, submissionID, feedbackID string) ([]model.Submission, error) {
	if !user.CanAssess() {
		return nil, appErr.ErrForbidden
	}
	feedback, err := s.feedbacks.GetByID(ctx, feedbackID)
	if err != nil {
		return nil, err
	}
	if feedback.SubmissionID != submissionID {
		return nil, fmt.Errorf("%w: feedback %s does not belong to submission %s", appErr.ErrInvalid, feedbackID, submissionID)
	}
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	exercise, err := s.exercises.GetByID(ctx, submission.ExerciseID)
	if err != nil {
		return nil, err
	}
	if !model.SupportsAutomaticAssessment(exercise.AssessmentType) {
		return nil, fmt.Errorf("%w: exercise %s does not support automatic assessment", appErr.ErrInvalid, exercise.ID)
	}

	conflicts, err := s.conflicts.ListUnresolvedByFeedback(ctx, feedbackID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	submissions := make([]model.Submission, 0, len(conflicts))
	for _, conflict := range conflicts {
		otherID := conflict.FirstFeedbackID
		if otherID == feedbackID {
			otherID = conflict.SecondFeedbackID
		}
		other, err := s.feedbacks.GetByID(ctx, otherID)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[other.SubmissionID]; dup {
			continue
		}
		seen[other.SubmissionID] = struct{}{}
		otherSubmission, err := s.submissions.GetByID(ctx, other.SubmissionID)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, *otherSubmission)
	}
	return submissions, nil
}

// Solve marks a conflict as reviewed. Any assessor may resolve it, not just
// the two involved; resolving twice reports the conflict as already solved.
func (s *ConflictService) Solve(ctx context.Context, user model.User, conflictID string) (*model.FeedbackConflict, error) {
	if !user.CanAssess() {
		return nil, appErr.ErrForbidden
	}
	if err := s.conflicts.Solve(ctx, conflictID, timeutil.NowUnix(), user.ID); err != nil {
		return nil, err
	}
	return s.conflicts.GetByID(ctx, conflictID)
}
