package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lwald/semgrade/internal/model"
	appErr "github.com/lwald/semgrade/internal/pkg/errors"
)

// submitManual locks the submission and submits one manual feedback on the
// given block.
func submitManual(t *testing.T, env *testEnv, user model.User, submissionID, blockID string, credits float64) {
	t.Helper()
	ctx := context.Background()
	bundle, err := env.assessments.Lock(ctx, user, submissionID, 0)
	require.NoError(t, err)
	_, err = env.assessments.Submit(ctx, user, bundle.Result.ID, &SaveFeedbackRequest{
		Feedbacks: []FeedbackInput{
			{Reference: &blockID, Credits: credits, DetailText: "graded", Type: model.FeedbackTypeManual},
		},
	})
	require.NoError(t, err)
}

func TestConflictDetection_SymmetricAndResolvable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	a, b, blockA, blockB := clusteredPair(t, env, exercise.ID)

	submitManual(t, env, tutor("tutor-1"), a.ID, blockA, 1)
	submitManual(t, env, tutor("tutor-2"), b.ID, blockB, 2)

	details, err := env.conflictSvc.ListOpenConflicts(ctx, tutor("tutor-3"), exercise.ID)
	require.NoError(t, err)
	require.Len(t, details, 1)
	detail := details[0]
	require.ElementsMatch(t,
		[]string{a.ID, b.ID},
		[]string{detail.FirstSubmission, detail.SecondSubmission})
	require.True(t, detail.Conflict.Conflict)
	require.Nil(t, detail.Conflict.SolvedAt)

	// Any assessor may resolve, not only the two involved.
	solved, err := env.conflictSvc.Solve(ctx, tutor("tutor-3"), detail.Conflict.ID)
	require.NoError(t, err)
	require.False(t, solved.Conflict)
	require.True(t, solved.Discard)
	require.NotNil(t, solved.SolvedAt)
	require.NotNil(t, solved.SolvedBy)
	require.Equal(t, "tutor-3", *solved.SolvedBy)

	_, err = env.conflictSvc.Solve(ctx, tutor("tutor-3"), detail.Conflict.ID)
	require.Error(t, err)
	require.True(t, errors.Is(err, appErr.ErrAlreadySolved))

	open, err := env.conflictSvc.ListOpenConflicts(ctx, tutor("tutor-3"), exercise.ID)
	require.NoError(t, err)
	require.Empty(t, open)
}

func TestConflictDetection_SameAssessorNoConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	a, b, blockA, blockB := clusteredPair(t, env, exercise.ID)

	submitManual(t, env, tutor("tutor-1"), a.ID, blockA, 1)
	submitManual(t, env, tutor("tutor-1"), b.ID, blockB, 2)

	details, err := env.conflictSvc.ListOpenConflicts(ctx, tutor("tutor-1"), exercise.ID)
	require.NoError(t, err)
	require.Empty(t, details)
}

func TestConflictDetection_WithinThresholdNoConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	a, b, blockA, blockB := clusteredPair(t, env, exercise.ID)

	submitManual(t, env, tutor("tutor-1"), a.ID, blockA, 1)
	submitManual(t, env, tutor("tutor-2"), b.ID, blockB, 1.5)

	details, err := env.conflictSvc.ListOpenConflicts(ctx, tutor("tutor-1"), exercise.ID)
	require.NoError(t, err)
	require.Empty(t, details)
}

func TestConflictDetection_SignMismatchConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	a, b, blockA, blockB := clusteredPair(t, env, exercise.ID)

	submitManual(t, env, tutor("tutor-1"), a.ID, blockA, 0.2)
	submitManual(t, env, tutor("tutor-2"), b.ID, blockB, -0.2)

	details, err := env.conflictSvc.ListOpenConflicts(ctx, tutor("tutor-1"), exercise.ID)
	require.NoError(t, err)
	require.Len(t, details, 1)
}

func TestConflictDetection_NoDuplicatePairs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	a, b, blockA, blockB := clusteredPair(t, env, exercise.ID)

	submitManual(t, env, tutor("tutor-1"), a.ID, blockA, 1)
	submitManual(t, env, tutor("tutor-2"), b.ID, blockB, 2)

	// Re-running detection on either side must not double-flag the pair.
	feedbacksA, err := env.feedbacks.ListBySubmission(ctx, a.ID)
	require.NoError(t, err)
	for _, feedback := range feedbacksA {
		if feedback.Type == model.FeedbackTypeManual {
			require.NoError(t, env.conflictSvc.Detect(ctx, feedback, "tutor-1"))
		}
	}
	details, err := env.conflictSvc.ListOpenConflicts(ctx, tutor("tutor-1"), exercise.ID)
	require.NoError(t, err)
	require.Len(t, details, 1)
}

func TestConflictingSubmissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	a, b, blockA, blockB := clusteredPair(t, env, exercise.ID)

	submitManual(t, env, tutor("tutor-1"), a.ID, blockA, 1)
	submitManual(t, env, tutor("tutor-2"), b.ID, blockB, 2)

	feedbacksA, err := env.feedbacks.ListBySubmission(ctx, a.ID)
	require.NoError(t, err)
	var manualA model.Feedback
	for _, feedback := range feedbacksA {
		if feedback.Type == model.FeedbackTypeManual {
			manualA = feedback
		}
	}
	require.NotEmpty(t, manualA.ID)

	conflicting, err := env.conflictSvc.ConflictingSubmissions(ctx, tutor("tutor-1"), a.ID, manualA.ID)
	require.NoError(t, err)
	require.Len(t, conflicting, 1)
	require.Equal(t, b.ID, conflicting[0].ID)

	// Feedback and submission must belong together.
	_, err = env.conflictSvc.ConflictingSubmissions(ctx, tutor("tutor-1"), b.ID, manualA.ID)
	require.Error(t, err)
	require.True(t, appErr.IsInvalid(err))

	// Resolving the conflict empties the view.
	details, err := env.conflictSvc.ListOpenConflicts(ctx, tutor("tutor-1"), exercise.ID)
	require.NoError(t, err)
	require.Len(t, details, 1)
	_, err = env.conflictSvc.Solve(ctx, tutor("tutor-1"), details[0].Conflict.ID)
	require.NoError(t, err)

	conflicting, err = env.conflictSvc.ConflictingSubmissions(ctx, tutor("tutor-1"), a.ID, manualA.ID)
	require.NoError(t, err)
	require.Empty(t, conflicting)
}

func TestListOpenConflicts_ManualExerciseRejected(t *testing.T) {
	env := newTestEnv(t)
	exercise := mustExercise(t, env, model.AssessmentTypeManual)

	_, err := env.conflictSvc.ListOpenConflicts(context.Background(), tutor("tutor-1"), exercise.ID)
	require.Error(t, err)
	require.True(t, appErr.IsInvalid(err))
}
