package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lwald/semgrade/internal/clustercache"
	"github.com/lwald/semgrade/internal/model"
	appErr "github.com/lwald/semgrade/internal/pkg/errors"
	"github.com/lwald/semgrade/internal/pkg/timeutil"
	"github.com/lwald/semgrade/internal/repo"
)

// CourseService covers the thin intake surface around the assessment core:
// registering exercises, accepting submission texts, and withdrawing
// submissions together with everything derived from them.
type CourseService struct {
	db          *sqlx.DB
	exercises   *repo.ExerciseRepo
	submissions *repo.SubmissionRepo
	blocks      *repo.TextBlockRepo
	cache       *clustercache.Reader
}

func NewCourseService(
	db *sqlx.DB,
	exercises *repo.ExerciseRepo,
	submissions *repo.SubmissionRepo,
	blocks *repo.TextBlockRepo,
	cache *clustercache.Reader,
) *CourseService {
	return &CourseService{
		db:          db,
		exercises:   exercises,
		submissions: submissions,
		blocks:      blocks,
		cache:       cache,
	}
}

func (s *CourseService) CreateExercise(ctx context.Context, user model.User, title, assessmentType string, maxPoints float64) (*model.Exercise, error) {
	if !user.IsInstructor() {
		return nil, appErr.ErrForbidden
	}
	switch assessmentType {
	case model.AssessmentTypeManual, model.AssessmentTypeSemiAutomatic, model.AssessmentTypeAutomatic:
	default:
		return nil, fmt.Errorf("%w: unknown assessment type %s", appErr.ErrInvalid, assessmentType)
	}
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", appErr.ErrInvalid)
	}
	exercise := &model.Exercise{
		ID:             uuid.NewString(),
		Title:          title,
		AssessmentType: assessmentType,
		MaxPoints:      maxPoints,
		Ctime:          timeutil.NowUnix(),
	}
	if err := s.exercises.Create(ctx, exercise); err != nil {
		return nil, err
	}
	return exercise, nil
}

func (s *CourseService) GetExercise(ctx context.Context, id string) (*model.Exercise, error) {
	return s.exercises.GetByID(ctx, id)
}

func (s *CourseService) CreateSubmission(ctx context.Context, exerciseID, participationID, text string) (*model.Submission, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", appErr.ErrInvalid)
	}
	if _, err := s.exercises.GetByID(ctx, exerciseID); err != nil {
		return nil, err
	}
	submission := &model.Submission{
		ID:              uuid.NewString(),
		ExerciseID:      exerciseID,
		ParticipationID: participationID,
		Text:            text,
		Ctime:           timeutil.NowUnix(),
	}
	if err := s.submissions.Create(ctx, submission); err != nil {
		return nil, err
	}
	return submission, nil
}

func (s *CourseService) SubmitSubmission(ctx context.Context, submissionID string) error {
	return s.submissions.SetSubmitted(ctx, submissionID)
}

// DeleteSubmission withdraws a submission: its results, feedback, and blocks
// go with it, and each cluster the blocks belonged to shrinks in place. A
// cluster left with fewer than two members is dropped entirely.
func (s *CourseService) DeleteSubmission(ctx context.Context, user model.User, submissionID string) error {
	if !user.IsInstructor() {
		return appErr.ErrForbidden
	}
	if _, err := s.submissions.GetByID(ctx, submissionID); err != nil {
		return err
	}
	blocks, err := s.blocks.ListBySubmission(ctx, submissionID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	blockRepo := repo.NewTextBlockRepo(tx)
	clusterRepo := repo.NewTextClusterRepo(tx)
	feedbackRepo := repo.NewFeedbackRepo(tx)
	resultRepo := repo.NewResultRepo(tx)
	submissionRepo := repo.NewSubmissionRepo(tx)
	now := timeutil.NowUnix()

	touched := make([]string, 0, len(blocks))
	for _, block := range blocks {
		if block.ClusterID == nil {
			continue
		}
		cluster, err := clusterRepo.GetByID(ctx, *block.ClusterID)
		if err != nil {
			if appErr.IsNotFound(err) {
				continue
			}
			return err
		}
		if err := cluster.RemoveMember(block.ID); err != nil {
			return err
		}
		if cluster.Size() < 2 {
			if err := clusterRepo.Delete(ctx, cluster.ID); err != nil {
				return err
			}
			if err := blockRepo.ClearClusterAssignments(ctx, []string{cluster.ID}, now); err != nil {
				return err
			}
		} else {
			if err := clusterRepo.Upsert(ctx, cluster); err != nil {
				return err
			}
			if err := assignClusterMembers(ctx, blockRepo, cluster, now); err != nil {
				return err
			}
		}
		touched = append(touched, cluster.ID)
	}

	if err := feedbackRepo.DeleteBySubmission(ctx, submissionID); err != nil {
		return err
	}
	if err := resultRepo.DeleteBySubmission(ctx, submissionID); err != nil {
		return err
	}
	if err := blockRepo.DeleteBySubmission(ctx, submissionID); err != nil {
		return err
	}
	if err := submissionRepo.Delete(ctx, submissionID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for _, id := range touched {
		s.cache.Invalidate(id)
	}
	return nil
}
