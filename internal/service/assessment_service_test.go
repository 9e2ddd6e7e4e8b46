package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lwald/semgrade/internal/model"
	appErr "github.com/lwald/semgrade/internal/pkg/errors"
)

func TestLock_AlreadyLocked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	sub := mustSubmission(t, env, exercise.ID, "p0")

	bundle, err := env.assessments.Lock(ctx, tutor("tutor-1"), sub.ID, 0)
	require.NoError(t, err)
	require.NotNil(t, bundle.Result)
	require.Equal(t, "tutor-1", bundle.Result.AssessorID)
	require.False(t, bundle.Result.Completed())

	_, err = env.assessments.Lock(ctx, tutor("tutor-2"), sub.ID, 0)
	require.Error(t, err)
	require.True(t, errors.Is(err, appErr.ErrAlreadyLocked))
}

func TestLockNext_SkipsLockedSubmissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	first := mustSubmission(t, env, exercise.ID, "p0")
	second := mustSubmission(t, env, exercise.ID, "p1")

	bundle, err := env.assessments.LockNext(ctx, tutor("tutor-1"), exercise.ID, 0)
	require.NoError(t, err)
	require.Equal(t, first.ID, bundle.Submission.ID)

	bundle, err = env.assessments.LockNext(ctx, tutor("tutor-2"), exercise.ID, 0)
	require.NoError(t, err)
	require.Equal(t, second.ID, bundle.Submission.ID)

	_, err = env.assessments.LockNext(ctx, tutor("tutor-3"), exercise.ID, 0)
	require.Error(t, err)
	require.True(t, appErr.IsNotFound(err))
}

func TestLock_SecondRoundRequiresCompletedFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	sub := mustSubmission(t, env, exercise.ID, "p0")

	_, err := env.assessments.Lock(ctx, tutor("tutor-1"), sub.ID, 1)
	require.Error(t, err)
	require.True(t, appErr.IsConflict(err))

	bundle, err := env.assessments.Lock(ctx, tutor("tutor-1"), sub.ID, 0)
	require.NoError(t, err)
	_, err = env.assessments.Submit(ctx, tutor("tutor-1"), bundle.Result.ID, &SaveFeedbackRequest{})
	require.NoError(t, err)

	bundle, err = env.assessments.Lock(ctx, tutor("tutor-2"), sub.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 1, bundle.Result.CorrectionRound)
}

func TestBlockIdentityStableAcrossFetchPaths(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	sub := mustSubmission(t, env, exercise.ID, "p0")

	batch := &model.ClusterBatch{
		Segments: []model.BatchSegment{
			{ID: "s0", SubmissionID: sub.ID, Text: sub.Text[0:15], StartIndex: 0, EndIndex: 15},
			{ID: "s1", SubmissionID: sub.ID, Text: sub.Text[16:35], StartIndex: 16, EndIndex: 35},
			{ID: "s2", SubmissionID: sub.ID, Text: sub.Text[36:57], StartIndex: 36, EndIndex: 57},
		},
	}
	_, err := env.ingest.IngestBatch(ctx, exercise.ID, batch)
	require.NoError(t, err)

	assessorView, err := env.assessments.GetForAssessment(ctx, tutor("tutor-1"), sub.ID, 0)
	require.NoError(t, err)
	participationView, err := env.assessments.GetParticipationSubmission(ctx, sub.ParticipationID)
	require.NoError(t, err)

	require.Len(t, assessorView.Blocks, 3)
	require.Len(t, participationView.Blocks, 3)
	for i := range assessorView.Blocks {
		require.Equal(t, assessorView.Blocks[i].ID, participationView.Blocks[i].ID)
	}
	require.Equal(t, model.ComputeTextBlockID(sub.ID, 0, 15), assessorView.Blocks[0].ID)
	require.Equal(t, model.ComputeTextBlockID(sub.ID, 16, 35), assessorView.Blocks[1].ID)
	require.Equal(t, model.ComputeTextBlockID(sub.ID, 36, 57), assessorView.Blocks[2].ID)
}

func TestSaveFeedback_PreservesClusterMetadata(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	a, _, blockA, _ := clusteredPair(t, env, exercise.ID)

	snapshot, err := env.blocks.GetByID(ctx, blockA)
	require.NoError(t, err)
	require.NotNil(t, snapshot.ClusterID)
	require.NotNil(t, snapshot.PositionInCluster)

	bundle, err := env.assessments.Lock(ctx, tutor("tutor-1"), a.ID, 0)
	require.NoError(t, err)

	// A feedback save round-trips the block through the client.
	req := &SaveFeedbackRequest{
		Blocks: []BlockInput{
			{StartIndex: 0, EndIndex: 15, Text: a.Text[0:15]},
		},
		Feedbacks: []FeedbackInput{
			{Reference: &blockA, Credits: 1.5, DetailText: "solid intro", Type: model.FeedbackTypeManual},
		},
	}
	_, err = env.assessments.Save(ctx, tutor("tutor-1"), bundle.Result.ID, req)
	require.NoError(t, err)

	refetched, err := env.assessments.GetForAssessment(ctx, tutor("tutor-1"), a.ID, 0)
	require.NoError(t, err)
	var found *model.TextBlock
	for i := range refetched.Blocks {
		if refetched.Blocks[i].ID == blockA {
			found = &refetched.Blocks[i]
		}
	}
	require.NotNil(t, found)
	require.NotNil(t, found.ClusterID)
	require.Equal(t, *snapshot.ClusterID, *found.ClusterID)
	require.Equal(t, *snapshot.PositionInCluster, *found.PositionInCluster)
	require.Equal(t, snapshot.StartIndex, found.StartIndex)
	require.Equal(t, snapshot.EndIndex, found.EndIndex)
	require.Len(t, refetched.Feedbacks, 1)
	require.Equal(t, 1.5, refetched.Feedbacks[0].Credits)
}

func TestSaveFeedback_UnknownReferenceRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	sub := mustSubmission(t, env, exercise.ID, "p0")

	bundle, err := env.assessments.Lock(ctx, tutor("tutor-1"), sub.ID, 0)
	require.NoError(t, err)

	unknown := "not-a-block"
	_, err = env.assessments.Save(ctx, tutor("tutor-1"), bundle.Result.ID, &SaveFeedbackRequest{
		Feedbacks: []FeedbackInput{{Reference: &unknown, Credits: 1}},
	})
	require.Error(t, err)
	require.True(t, appErr.IsInvalid(err))

	feedbacks, err := env.feedbacks.ListByResult(ctx, bundle.Result.ID)
	require.NoError(t, err)
	require.Empty(t, feedbacks)
}

func TestSaveFeedback_SubmittedResultRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	sub := mustSubmission(t, env, exercise.ID, "p0")

	bundle, err := env.assessments.Lock(ctx, tutor("tutor-1"), sub.ID, 0)
	require.NoError(t, err)
	_, err = env.assessments.Submit(ctx, tutor("tutor-1"), bundle.Result.ID, &SaveFeedbackRequest{})
	require.NoError(t, err)

	_, err = env.assessments.Save(ctx, tutor("tutor-1"), bundle.Result.ID, &SaveFeedbackRequest{})
	require.Error(t, err)
	require.True(t, appErr.IsConflict(err))
}

func TestCancel_ReleasesLockAndDropsFeedback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	sub := mustSubmission(t, env, exercise.ID, "p0")

	bundle, err := env.assessments.Lock(ctx, tutor("tutor-1"), sub.ID, 0)
	require.NoError(t, err)
	_, err = env.assessments.Save(ctx, tutor("tutor-1"), bundle.Result.ID, &SaveFeedbackRequest{
		Feedbacks: []FeedbackInput{{Credits: 0, DetailText: "overall ok"}},
	})
	require.NoError(t, err)

	err = env.assessments.Cancel(ctx, tutor("tutor-2"), bundle.Result.ID)
	require.Error(t, err)
	require.ErrorIs(t, err, appErr.ErrForbidden)

	require.NoError(t, env.assessments.Cancel(ctx, tutor("tutor-1"), bundle.Result.ID))

	feedbacks, err := env.feedbacks.ListBySubmission(ctx, sub.ID)
	require.NoError(t, err)
	require.Empty(t, feedbacks)

	// The lock is free again.
	_, err = env.assessments.Lock(ctx, tutor("tutor-2"), sub.ID, 0)
	require.NoError(t, err)

	// The submission+round form resolves to the same open result.
	require.NoError(t, env.assessments.CancelBySubmission(ctx, tutor("tutor-2"), sub.ID, 0))
	err = env.assessments.CancelBySubmission(ctx, tutor("tutor-2"), sub.ID, 0)
	require.True(t, appErr.IsNotFound(err))
}
